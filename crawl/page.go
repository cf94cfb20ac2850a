package crawl

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/sitecrawl"
	"golang.org/x/sync/errgroup"
)

var _ sitecrawl.PageBuilder = (*PageBuilder)(nil)

// PageBuilder builds pages from fetched bodies. Content and Converter are
// optional; without them the page carries the raw body only.
type PageBuilder struct {
	Content   sitecrawl.ContentExtractor
	Converter sitecrawl.Converter

	// Now returns the fetch timestamp. Defaults to time.Now.
	Now func() time.Time
}

// BuildPage extracts the main content of body and converts it to Markdown.
func (b *PageBuilder) BuildPage(ctx context.Context, url string, body []byte) (*sitecrawl.Page, error) {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	page := &sitecrawl.Page{
		URL:       url,
		Body:      string(body),
		FetchedAt: now().UTC(),
	}

	if b.Content == nil {
		page.ContentHash = ComputeHash(page.Body)
		return page, nil
	}

	extracted, err := b.Content.Extract(page.Body)
	if err != nil {
		return nil, fmt.Errorf("extract content from %s: %w", url, err)
	}
	page.Title = extracted.Title
	page.Content = extracted.ContentHTML

	if b.Converter != nil {
		markdown, err := b.Converter.Convert(extracted.ContentHTML)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", url, err)
		}
		page.Content = markdown
	}

	page.ContentHash = ComputeHash(page.Content)
	return page, nil
}

// ComputeHash computes a hash of the content using xxhash.
func ComputeHash(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(content))
}

var _ sitecrawl.PageSink = FanoutSink(nil)

// FanoutSink saves each page to every sink concurrently. It fails if any
// sink fails.
type FanoutSink []sitecrawl.PageSink

// SavePage implements sitecrawl.PageSink.
func (f FanoutSink) SavePage(ctx context.Context, page *sitecrawl.Page) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range f {
		g.Go(func() error {
			return sink.SavePage(gctx, page)
		})
	}
	return g.Wait()
}
