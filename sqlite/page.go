package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/sitecrawl"
	"github.com/google/uuid"
)

var _ sitecrawl.PageSink = (*PageService)(nil)

// PageService stores pages in SQLite. A page saved again for the same URL
// replaces the stored row and keeps its ID.
type PageService struct {
	db *DB

	// Now returns the fetch time for pages saved without one.
	Now func() time.Time
}

// NewPageService creates a new PageService.
func NewPageService(db *DB) *PageService {
	return &PageService{db: db, Now: time.Now}
}

// hashContent computes xxHash of content and returns hex string.
func hashContent(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(content))
}

// SavePage inserts or replaces the page for page.URL.
func (s *PageService) SavePage(ctx context.Context, page *sitecrawl.Page) error {
	if err := page.Validate(); err != nil {
		return err
	}

	if page.ID == "" {
		page.ID = uuid.New().String()
	}
	if page.FetchedAt.IsZero() {
		page.FetchedAt = s.Now()
	}
	page.FetchedAt = page.FetchedAt.UTC()
	if page.ContentHash == "" {
		if page.Content != "" {
			page.ContentHash = hashContent(page.Content)
		} else {
			page.ContentHash = hashContent(page.Body)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, url, extractor, title, body, content, content_hash, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			extractor = excluded.extractor,
			title = excluded.title,
			body = excluded.body,
			content = excluded.content,
			content_hash = excluded.content_hash,
			fetched_at = excluded.fetched_at
	`, page.ID, page.URL, page.Extractor, page.Title, page.Body, page.Content, page.ContentHash,
		page.FetchedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}

	// Re-read the ID in case the row already existed.
	return s.db.QueryRowContext(ctx, "SELECT id FROM pages WHERE url = ?", page.URL).Scan(&page.ID)
}

// FindPageByURL retrieves the page stored for url.
func (s *PageService) FindPageByURL(ctx context.Context, url string) (*sitecrawl.Page, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, extractor, title, body, content, content_hash, fetched_at
		FROM pages
		WHERE url = ?
	`, url)

	page, err := scanPage(row)
	if err == sql.ErrNoRows {
		return nil, sitecrawl.Errorf(sitecrawl.ENOTFOUND, "page not found")
	}
	return page, err
}

// FindPages lists pages matching the filter, most recently fetched first.
func (s *PageService) FindPages(ctx context.Context, filter sitecrawl.PageFilter) ([]*sitecrawl.Page, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT id, url, extractor, title, body, content, content_hash, fetched_at FROM pages WHERE 1=1")

	if filter.Extractor != nil {
		query.WriteString(" AND extractor = ?")
		args = append(args, *filter.Extractor)
	}
	if filter.URLPrefix != "" {
		query.WriteString(" AND substr(url, 1, ?) = ?")
		args = append(args, len(filter.URLPrefix), filter.URLPrefix)
	}

	query.WriteString(" ORDER BY fetched_at DESC, url ASC")
	if filter.Limit > 0 || filter.Offset > 0 {
		// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, max(filter.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*sitecrawl.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}

	return pages, rows.Err()
}

// CountPages returns the number of stored pages.
func (s *PageService) CountPages(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages").Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(row scanner) (*sitecrawl.Page, error) {
	var page sitecrawl.Page
	var fetchedAt string

	if err := row.Scan(&page.ID, &page.URL, &page.Extractor, &page.Title, &page.Body,
		&page.Content, &page.ContentHash, &fetchedAt); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339, fetchedAt)
	if err != nil {
		return nil, sitecrawl.Errorf(sitecrawl.EINTERNAL, "page %s has a malformed fetched_at %q", page.URL, fetchedAt)
	}
	page.FetchedAt = t

	return &page, nil
}
