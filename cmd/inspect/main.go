// Command inspect dumps the gateway's Badger store, or serves it in the
// browser, without stopping the gateway.
package main

import (
	"chat-gateway/repositories"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "", "Prefix to scan, e.g. room: or msg:general:")
	serve := flag.Int("serve", 0, "Serve the inspector on this port instead of printing")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	if *serve > 0 {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Println(color.New(color.FgGreen).Render(fmt.Sprintf("Inspector started at http://localhost:%d/inspect", *serve)))
		database.StartDebugServer(db, *serve, "/inspect", repositories.InspectMapper)
		<-ctx.Done()
		return
	}

	rows, err := repositories.ScanRecords(db, *prefix)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(
		fmt.Sprintf("  ====== %s (%d records) ======", *dbPath, len(rows))))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, row := range rows {
		table.Append([]string{row.Key, row.Type, row.Detail})
	}
	table.Render()
}

// openDB opens read-only; a store left dirty by a crash is replayed once in
// write mode first.
func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil && strings.Contains(err.Error(), "Log truncate required") {
		repair, repairErr := badger.Open(badger.DefaultOptions(path).WithLogger(nil).WithBypassLockGuard(true))
		if repairErr != nil {
			return nil, fmt.Errorf("repair failed: %w", repairErr)
		}
		_ = repair.Close()
		return badger.Open(opts)
	}
	return db, err
}
