package sitecrawl

import (
	"context"
	"errors"
)

// Extractor handles fetched pages of a particular shape. It may persist
// domain data as a side effect; only the returned links matter to the crawl.
type Extractor interface {
	// Matches reports whether the extractor handles url.
	Matches(url string) bool

	// Extract processes the page body and returns raw discovered link
	// strings. Links are normalized by the caller. Links returned alongside
	// an error are still followed.
	Extract(ctx context.Context, url string, body []byte) ([]string, error)
}

// Extractors is an ordered extractor registry.
type Extractors []Extractor

// Find returns the first extractor matching url in registration order, or
// nil when none matches.
func (e Extractors) Find(url string) Extractor {
	for _, x := range e {
		if x.Matches(url) {
			return x
		}
	}
	return nil
}

// ExtractResult holds the extracted content from an HTML page.
type ExtractResult struct {
	// Title is the page title extracted from metadata.
	Title string

	// ContentHTML is the main content as clean HTML.
	// Boilerplate (nav, footer, sidebar, ads) has been removed.
	ContentHTML string
}

// ContentExtractor extracts main content from HTML pages, removing boilerplate.
type ContentExtractor interface {
	Extract(html string) (*ExtractResult, error)
}

// ContentExtractors tries each extractor in order and returns the first
// successful result with non-empty content.
type ContentExtractors []ContentExtractor

// Extract implements ContentExtractor.
func (c ContentExtractors) Extract(html string) (*ExtractResult, error) {
	var errs []error
	for _, x := range c {
		result, err := x.Extract(html)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if result != nil && result.ContentHTML != "" {
			return result, nil
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, Errorf(ENOTFOUND, "no content extracted")
}
