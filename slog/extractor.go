package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/sitecrawl"
)

// Ensure LoggingExtractor implements sitecrawl.Extractor.
var _ sitecrawl.Extractor = (*LoggingExtractor)(nil)

// LoggingExtractor wraps an Extractor with logging of each extraction.
type LoggingExtractor struct {
	next   sitecrawl.Extractor
	name   string
	logger *slog.Logger
}

// NewLoggingExtractor creates a new LoggingExtractor. name identifies the
// wrapped extractor in log records.
func NewLoggingExtractor(next sitecrawl.Extractor, name string, logger *slog.Logger) *LoggingExtractor {
	return &LoggingExtractor{next: next, name: name, logger: logger}
}

// Matches delegates to the wrapped extractor.
func (e *LoggingExtractor) Matches(url string) bool {
	return e.next.Matches(url)
}

// Extract delegates to the wrapped extractor and logs the result.
func (e *LoggingExtractor) Extract(ctx context.Context, url string, body []byte) (links []string, err error) {
	defer func(begin time.Time) {
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelError
		}
		e.logger.Log(ctx, level, "extract",
			"extractor", e.name,
			"url", url,
			"bytes", len(body),
			"links", len(links),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return e.next.Extract(ctx, url, body)
}

// Ensure LoggingPageSink implements sitecrawl.PageSink.
var _ sitecrawl.PageSink = (*LoggingPageSink)(nil)

// LoggingPageSink wraps a PageSink with logging of each save.
type LoggingPageSink struct {
	next   sitecrawl.PageSink
	logger *slog.Logger
}

// NewLoggingPageSink creates a new LoggingPageSink.
func NewLoggingPageSink(next sitecrawl.PageSink, logger *slog.Logger) *LoggingPageSink {
	return &LoggingPageSink{next: next, logger: logger}
}

// SavePage delegates to the wrapped sink and logs the operation.
func (s *LoggingPageSink) SavePage(ctx context.Context, page *sitecrawl.Page) (err error) {
	defer func(begin time.Time) {
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "page saved",
			"url", page.URL,
			"extractor", page.Extractor,
			"title", page.Title,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.SavePage(ctx, page)
}
