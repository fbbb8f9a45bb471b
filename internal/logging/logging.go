// Package logging provides the process-wide structured logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mdobak/go-xerrors"
)

var (
	level  = new(slog.LevelVar)
	once   sync.Once
	logger *slog.Logger
)

// Logger returns the shared logger, writing text to stderr.
func Logger() *slog.Logger {
	once.Do(func() {
		logger = New(os.Stderr)
	})
	return logger
}

// New creates a text logger on w that follows the shared level.
func New(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetLevel changes the shared level. Accepts debug, info, warn or error.
func SetLevel(name string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return fmt.Errorf("unknown log level %q", name)
	}
	level.Set(l)
	return nil
}

// Error logs err at error level with a stack trace attached.
func Error(ctx context.Context, l *slog.Logger, msg string, err error, attrs ...any) {
	args := append([]any{slog.Any("error", xerrors.New(err))}, attrs...)
	l.ErrorContext(ctx, msg, args...)
}
