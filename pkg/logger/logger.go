// Package logger builds the slog loggers used across the server.
package logger

import (
	"io"
	"log/slog"
	"path/filepath"
)

// New returns a text logger that reports the source of each record by its
// file base name.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   true,
		ReplaceAttr: trimSource,
	}))
}

func trimSource(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		source, _ := a.Value.Any().(*slog.Source)
		if source != nil {
			source.File = filepath.Base(source.File)
		}
	}
	return a
}

