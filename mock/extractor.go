package mock

import (
	"context"

	"github.com/fwojciec/sitecrawl"
)

var (
	_ sitecrawl.Extractor        = (*Extractor)(nil)
	_ sitecrawl.ContentExtractor = (*ContentExtractor)(nil)
	_ sitecrawl.Converter        = (*Converter)(nil)
)

// Extractor is a mock implementation of sitecrawl.Extractor.
type Extractor struct {
	MatchesFn func(url string) bool
	ExtractFn func(ctx context.Context, url string, body []byte) ([]string, error)
}

func (e *Extractor) Matches(url string) bool {
	return e.MatchesFn(url)
}

func (e *Extractor) Extract(ctx context.Context, url string, body []byte) ([]string, error) {
	return e.ExtractFn(ctx, url, body)
}

// ContentExtractor is a mock implementation of sitecrawl.ContentExtractor.
type ContentExtractor struct {
	ExtractFn func(html string) (*sitecrawl.ExtractResult, error)
}

func (e *ContentExtractor) Extract(html string) (*sitecrawl.ExtractResult, error) {
	return e.ExtractFn(html)
}

// Converter is a mock implementation of sitecrawl.Converter.
type Converter struct {
	ConvertFn func(html string) (string, error)
}

func (c *Converter) Convert(html string) (string, error) {
	return c.ConvertFn(html)
}

// PageBuilder is a mock implementation of sitecrawl.PageBuilder.
type PageBuilder struct {
	BuildPageFn func(ctx context.Context, url string, body []byte) (*sitecrawl.Page, error)
}

var _ sitecrawl.PageBuilder = (*PageBuilder)(nil)

func (b *PageBuilder) BuildPage(ctx context.Context, url string, body []byte) (*sitecrawl.Page, error) {
	return b.BuildPageFn(ctx, url, body)
}
