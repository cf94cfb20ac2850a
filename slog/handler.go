// Package slog builds the crawl's log handlers and wraps domain services
// with logging.
package slog

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fwojciec/sitecrawl"
)

// Log output formats.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// NewHandler returns a handler writing to w in the named format at level and
// above. LevelTrace records are labelled TRACE.
func NewHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel}

	switch format {
	case FormatText, "":
		return slog.NewTextHandler(w, opts), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, opts), nil
	case FormatPretty:
		logger := log.NewWithOptions(w, log.Options{
			Level:           log.Level(level),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		})
		return logger, nil
	default:
		return nil, sitecrawl.Errorf(sitecrawl.EINVALID, "unknown log format %q", format)
	}
}

// ParseLevel parses a level name. It accepts "trace" in addition to the
// names understood by slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	if strings.EqualFold(s, "trace") {
		return sitecrawl.LevelTrace, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, sitecrawl.Errorf(sitecrawl.EINVALID, "unknown log level %q", s)
	}
	return level, nil
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if level, ok := a.Value.Any().(slog.Level); ok && level == sitecrawl.LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
