// Package fs stores crawl state and pages as files.
package fs

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fwojciec/sitecrawl"
)

var queryReplacer = strings.NewReplacer("/", "_", "\\", "_", "?", "_")

// URLToPath converts a page URL to a relative file path.
// Example: http://forum.example/forum/viewtopic.php?t=1 → forum/viewtopic.php_t=1.md
func URLToPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", sitecrawl.Errorf(sitecrawl.EINVALID, "invalid page URL %q: %v", rawURL, err)
	}

	path := u.Path
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return "", sitecrawl.Errorf(sitecrawl.EINVALID, "path traversal in %q", rawURL)
		}
	}

	// Remove leading slash
	path = strings.TrimPrefix(path, "/")

	// Root and trailing slash become index in that directory
	if path == "" || strings.HasSuffix(path, "/") {
		path += "index"
	}

	if u.RawQuery != "" {
		path += "_" + queryReplacer.Replace(u.RawQuery)
	}

	return path + ".md", nil
}

// FormatPage formats a page with YAML frontmatter.
func FormatPage(page *sitecrawl.Page) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("source: ")
	b.WriteString(page.URL)
	b.WriteString("\ntitle: ")
	b.WriteString(page.Title)
	if page.Extractor != "" {
		b.WriteString("\nextractor: ")
		b.WriteString(page.Extractor)
	}
	b.WriteString("\ncrawled: ")
	b.WriteString(page.FetchedAt.Format("2006-01-02"))
	b.WriteString("\n---\n\n")
	if page.Content != "" {
		b.WriteString(page.Content)
	} else {
		b.WriteString(page.Body)
	}
	return b.String()
}

var _ sitecrawl.PageSink = (*PageWriter)(nil)

// PageWriter writes pages as markdown files to a directory.
type PageWriter struct {
	baseDir string

	// Now returns the crawl date for pages saved without one.
	Now func() time.Time
}

// NewPageWriter creates a new PageWriter that writes to the given base directory.
func NewPageWriter(baseDir string) *PageWriter {
	return &PageWriter{baseDir: baseDir, Now: time.Now}
}

// SavePage writes a page to disk, replacing any earlier copy.
func (w *PageWriter) SavePage(ctx context.Context, page *sitecrawl.Page) error {
	if err := page.Validate(); err != nil {
		return err
	}
	if page.FetchedAt.IsZero() {
		page.FetchedAt = w.Now()
	}

	relPath, err := URLToPath(page.URL)
	if err != nil {
		return err
	}

	fullPath := filepath.Join(w.baseDir, filepath.FromSlash(relPath))

	// Create parent directories
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	return writeFileAtomic(fullPath, []byte(FormatPage(page)))
}
