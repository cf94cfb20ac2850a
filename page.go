package sitecrawl

import (
	"context"
	"time"
)

// Page is a fetched page handed to a PageSink by an extractor.
type Page struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Extractor   string    `json:"extractor"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Content     string    `json:"content"` // Markdown
	ContentHash string    `json:"contentHash"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// Validate returns an error if the page contains invalid fields.
func (p *Page) Validate() error {
	if p.URL == "" {
		return Errorf(EINVALID, "page URL required")
	}
	return nil
}

// PageSink persists pages.
type PageSink interface {
	SavePage(ctx context.Context, page *Page) error
}

// PageBuilder turns a fetched body into a Page with its main content
// extracted and converted to Markdown.
type PageBuilder interface {
	BuildPage(ctx context.Context, url string, body []byte) (*Page, error)
}

// Converter converts HTML to Markdown.
type Converter interface {
	// Convert transforms HTML content into Markdown.
	Convert(html string) (string, error)
}

// PageFilter narrows a page listing.
type PageFilter struct {
	Extractor *string
	URLPrefix string

	Limit  int
	Offset int
}
