// Package logging holds the *slog.Logger shared by every pdfsizeopt package.
//
// Library code never writes to stderr on its own. Warnings about recovered
// input problems (a broken xref table, a wrong /Length, a dangling
// reference) go through Logger(), which discards everything until a host
// program installs a logger with SetLogger.
package logging

import (
	"io"
	"log/slog"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
}

// SetLogger installs sl as the package-level logger. A nil sl restores the
// discarding logger.
//
// SetLogger is safe for concurrent use.
//
//	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
func SetLogger(sl *slog.Logger) {
	if sl == nil {
		sl = discardLogger()
	}
	logger.Store(sl)
}

// Logger returns the package-level logger. It is safe for concurrent use.
func Logger() *slog.Logger {
	l := logger.Load()
	if l == nil {
		l = discardLogger()
		if !logger.CompareAndSwap(nil, l) {
			l = logger.Load()
		}
	}
	return l
}
