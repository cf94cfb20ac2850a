// Package readability adapts go-readability to sitecrawl.ContentExtractor.
package readability

import (
	"net/url"
	"strings"

	"github.com/fwojciec/sitecrawl"
	"github.com/go-shiori/go-readability"
)

var _ sitecrawl.ContentExtractor = (*Extractor)(nil)

// Extractor extracts the main article of a page using go-readability.
type Extractor struct {
	baseURL *url.URL
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBaseURL resolves relative links and images in the content against u.
func WithBaseURL(u *url.URL) Option {
	return func(e *Extractor) { e.baseURL = u }
}

// NewExtractor creates a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract processes raw HTML and returns the main content.
func (e *Extractor) Extract(rawHTML string) (*sitecrawl.ExtractResult, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, sitecrawl.Errorf(sitecrawl.EINVALID, "empty HTML input")
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), e.baseURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(article.Content) == "" {
		return nil, sitecrawl.Errorf(sitecrawl.ENOTFOUND, "no readable content")
	}

	return &sitecrawl.ExtractResult{
		Title:       article.Title,
		ContentHTML: article.Content,
	}, nil
}
