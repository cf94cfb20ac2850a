// Package goquery implements rule-based page extractors on top of goquery.
package goquery

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/sitecrawl"
)

// DefaultLinkSelector selects every anchor with an href.
const DefaultLinkSelector = "a[href]"

var _ sitecrawl.Extractor = (*RuleExtractor)(nil)

// RuleExtractor handles pages whose URL matches a pattern. It returns the raw
// href of every selected anchor that passes its link filter and optionally
// saves the page to a sink.
type RuleExtractor struct {
	// Name identifies the rule on saved pages and in logs.
	Name string

	// Match selects the URLs the rule handles. Nil matches every URL.
	Match *regexp.Regexp

	// Links filters raw hrefs. Nil keeps every link.
	Links *sitecrawl.URLFilter

	// Selector selects link anchors. Defaults to DefaultLinkSelector.
	Selector string

	// Pages builds the saved page. Without it only the raw body and the
	// document title are saved.
	Pages sitecrawl.PageBuilder

	// Sink, if set, receives a page for every extracted URL.
	Sink sitecrawl.PageSink
}

// NewRuleExtractor compiles a rule from its patterns. An empty match pattern
// matches every URL.
func NewRuleExtractor(name, match string, allow, reject []string) (*RuleExtractor, error) {
	r := &RuleExtractor{Name: name}
	if match != "" {
		re, err := regexp.Compile(match)
		if err != nil {
			return nil, sitecrawl.Errorf(sitecrawl.EINVALID, "rule %q: invalid match pattern %q: %v", name, match, err)
		}
		r.Match = re
	}
	if len(allow) > 0 || len(reject) > 0 {
		f, err := sitecrawl.NewURLFilter(allow, reject)
		if err != nil {
			return nil, sitecrawl.Errorf(sitecrawl.EINVALID, "rule %q: %s", name, sitecrawl.ErrorMessage(err))
		}
		r.Links = f
	}
	return r, nil
}

// Matches reports whether the rule handles url.
func (r *RuleExtractor) Matches(url string) bool {
	return r.Match == nil || r.Match.MatchString(url)
}

// Extract returns the filtered links of the page in document order without
// duplicates. Links are returned even when saving the page fails.
func (r *RuleExtractor) Extract(ctx context.Context, url string, body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, sitecrawl.Errorf(sitecrawl.EINVALID, "failed to parse HTML: %v", err)
	}

	links := r.links(doc)

	if r.Sink == nil {
		return links, nil
	}
	page, err := r.page(ctx, doc, url, body)
	if err != nil {
		return links, err
	}
	if err := r.Sink.SavePage(ctx, page); err != nil {
		return links, fmt.Errorf("save page %s: %w", url, err)
	}
	return links, nil
}

func (r *RuleExtractor) links(doc *goquery.Document) []string {
	selector := r.Selector
	if selector == "" {
		selector = DefaultLinkSelector
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || seen[href] {
			return
		}
		if !r.Links.Match(href) {
			return
		}
		seen[href] = true
		links = append(links, href)
	})
	return links
}

func (r *RuleExtractor) page(ctx context.Context, doc *goquery.Document, url string, body []byte) (*sitecrawl.Page, error) {
	if r.Pages == nil {
		return &sitecrawl.Page{
			URL:       url,
			Extractor: r.Name,
			Title:     strings.TrimSpace(doc.Find("title").First().Text()),
			Body:      string(body),
			FetchedAt: time.Now().UTC(),
		}, nil
	}

	page, err := r.Pages.BuildPage(ctx, url, body)
	if err != nil {
		return nil, err
	}
	page.Extractor = r.Name
	if page.Title == "" {
		page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return page, nil
}
