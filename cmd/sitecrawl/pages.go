package main

import (
	"fmt"

	"github.com/fwojciec/sitecrawl"
	"github.com/fwojciec/sitecrawl/crawl"
)

// Run executes the pages command.
func (c *PagesCmd) Run(deps *Dependencies) error {
	filter := sitecrawl.PageFilter{
		URLPrefix: c.Prefix,
		Limit:     c.Limit,
	}
	if c.Extractor != "" {
		filter.Extractor = &c.Extractor
	}

	pages, err := deps.Pages.FindPages(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sitecrawl.ErrorMessage(err))
		return err
	}

	if len(pages) == 0 {
		fmt.Fprintln(deps.Stdout, "No pages found. Use 'sitecrawl crawl --db' to save some.")
		return nil
	}

	for _, p := range pages {
		size := len(p.Content)
		if size == 0 {
			size = len(p.Body)
		}
		fmt.Fprintf(deps.Stdout, "%s  %-8s  %8s  %s\n",
			p.FetchedAt.Format("2006-01-02 15:04"), p.Extractor, crawl.FormatBytes(size), crawl.TruncateURL(p.URL, 80))
	}

	return nil
}
