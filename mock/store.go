package mock

import (
	"context"

	"github.com/fwojciec/sitecrawl"
)

var (
	_ sitecrawl.StateStore     = (*StateStore)(nil)
	_ sitecrawl.PageSink       = (*PageSink)(nil)
	_ sitecrawl.SitemapService = (*SitemapService)(nil)
)

// StateStore is a mock implementation of sitecrawl.StateStore.
type StateStore struct {
	SaveQueueFn   func(ctx context.Context, reqs []sitecrawl.QueuedRequest) error
	LoadQueueFn   func(ctx context.Context) ([]sitecrawl.QueuedRequest, error)
	SaveVisitedFn func(ctx context.Context, entries []sitecrawl.VisitedEntry) error
	LoadVisitedFn func(ctx context.Context) ([]sitecrawl.VisitedEntry, error)
	ResetFn       func(ctx context.Context) error
}

func (s *StateStore) SaveQueue(ctx context.Context, reqs []sitecrawl.QueuedRequest) error {
	return s.SaveQueueFn(ctx, reqs)
}

func (s *StateStore) LoadQueue(ctx context.Context) ([]sitecrawl.QueuedRequest, error) {
	return s.LoadQueueFn(ctx)
}

func (s *StateStore) SaveVisited(ctx context.Context, entries []sitecrawl.VisitedEntry) error {
	return s.SaveVisitedFn(ctx, entries)
}

func (s *StateStore) LoadVisited(ctx context.Context) ([]sitecrawl.VisitedEntry, error) {
	return s.LoadVisitedFn(ctx)
}

func (s *StateStore) Reset(ctx context.Context) error {
	return s.ResetFn(ctx)
}

// PageSink is a mock implementation of sitecrawl.PageSink.
type PageSink struct {
	SavePageFn func(ctx context.Context, page *sitecrawl.Page) error
}

func (s *PageSink) SavePage(ctx context.Context, page *sitecrawl.Page) error {
	return s.SavePageFn(ctx, page)
}

// SitemapService is a mock implementation of sitecrawl.SitemapService.
type SitemapService struct {
	DiscoverURLsFn func(ctx context.Context, baseURL string, filter *sitecrawl.URLFilter) ([]string, error)
}

func (s *SitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *sitecrawl.URLFilter) ([]string, error) {
	return s.DiscoverURLsFn(ctx, baseURL, filter)
}
