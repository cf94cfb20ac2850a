// Package trafilatura adapts go-trafilatura to sitecrawl.ContentExtractor.
package trafilatura

import (
	"bytes"
	"strings"

	"github.com/fwojciec/sitecrawl"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
)

var _ sitecrawl.ContentExtractor = (*Extractor)(nil)

// Extractor extracts the main content of a page using go-trafilatura.
// Forum replies are usually marked up as comments, so comments are kept
// unless ExcludeComments is set.
type Extractor struct {
	ExcludeComments bool
	IncludeLinks    bool
}

// NewExtractor creates an Extractor that keeps comments and links.
func NewExtractor() *Extractor {
	return &Extractor{IncludeLinks: true}
}

// Extract processes raw HTML and returns the main content.
func (e *Extractor) Extract(rawHTML string) (*sitecrawl.ExtractResult, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, sitecrawl.Errorf(sitecrawl.EINVALID, "empty HTML input")
	}

	result, err := trafilatura.Extract(strings.NewReader(rawHTML), trafilatura.Options{
		EnableFallback:  true,
		ExcludeComments: e.ExcludeComments,
		IncludeLinks:    e.IncludeLinks,
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if result.ContentNode != nil {
		if err := html.Render(&buf, result.ContentNode); err != nil {
			return nil, err
		}
	}
	if result.CommentsNode != nil && !e.ExcludeComments {
		if err := html.Render(&buf, result.CommentsNode); err != nil {
			return nil, err
		}
	}

	return &sitecrawl.ExtractResult{
		Title:       result.Metadata.Title,
		ContentHTML: buf.String(),
	}, nil
}
