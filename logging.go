package cachez

import (
	"os"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

var activeLogger atomic.Pointer[log.Logger]

func init() {
	activeLogger.Store(newDefaultLogger(log.InfoLevel))
}

func newDefaultLogger(level log.Level) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "cachez",
		Level:  level,
	})
}

// SetLogger replaces the package logger. Nil restores the default stderr logger.
func SetLogger(l *log.Logger) {
	if l == nil {
		l = newDefaultLogger(log.InfoLevel)
	}
	activeLogger.Store(l)
}

// Logger returns the package logger.
func Logger() *log.Logger {
	return activeLogger.Load()
}
