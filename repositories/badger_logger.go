package repositories

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// badgerLogger routes Badger's printf-style logs into the gateway logger.
type badgerLogger struct {
	log *slog.Logger
}

func NewBadgerLogger(log *slog.Logger) badger.Logger {
	return badgerLogger{log: log.With("component", "badger")}
}

// Badger terminates most lines with a newline.
func line(format string, args ...any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Errorf(format string, args ...any)   { b.log.Error(line(format, args...)) }
func (b badgerLogger) Warningf(format string, args ...any) { b.log.Warn(line(format, args...)) }
func (b badgerLogger) Infof(format string, args ...any)    { b.log.Info(line(format, args...)) }
func (b badgerLogger) Debugf(format string, args ...any)   { b.log.Debug(line(format, args...)) }
