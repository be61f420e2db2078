package repositories

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
)

// InspectMapper labels rooms and messages for the Badger debug inspector.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	row.Key = key
	row.Type, row.Detail = DescribeRecord(key, val)
	return row
}

// ScanRecords walks every key under prefix in key order.
// Keys that cannot be described are still listed, typed UNKNOWN.
func ScanRecords(db *badger.DB, prefix string) ([]database.InspectRow, error) {
	var rows []database.InspectRow
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			if err := item.Value(func(v []byte) error {
				rows = append(rows, InspectMapper(key, v))
				return nil
			}); err != nil {
				return fmt.Errorf("reading %s: %w", key, err)
			}
		}
		return nil
	})
	return rows, err
}
