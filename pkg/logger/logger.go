package logger

import (
	"log"
	"log/slog"
)

// New returns a stdlib *log.Logger that forwards to slog with a component
// attribute, for libraries that only accept Printf-style loggers.
func New(base *slog.Logger, component string, level slog.Level) *log.Logger {
	if base == nil {
		base = slog.Default()
	}
	return slog.NewLogLogger(base.With("component", component).Handler(), level)
}
