// Package crawl drives a single-domain crawl: it deduplicates URLs, admits
// fetches within a run limit and rate budget, retries server failures and
// persists resumable queue state.
package crawl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/fwojciec/sitecrawl"
	"github.com/fwojciec/sitecrawl/bloom"
)

// Crawler orchestrates a crawl of one domain. Fetched pages are routed to the
// first matching extractor and the links it returns are fed back into the
// scheduler.
type Crawler struct {
	// Domain is the scheme and host every crawled URL belongs to,
	// e.g. "http://forum.example".
	Domain     string
	Scheduler  *Scheduler
	Visited    *VisitedSet
	Extractors sitecrawl.Extractors

	// State, if set, stores visited URLs between runs.
	State sitecrawl.VisitedStore

	// ForgetVisited skips loading URLs visited by earlier runs.
	ForgetVisited bool

	// Sitemaps, if set, seeds the crawl with URLs from the domain's sitemap.
	Sitemaps      sitecrawl.SitemapService
	SitemapFilter *sitecrawl.URLFilter

	Logger *slog.Logger

	ctx        context.Context
	fetched    atomic.Int64
	retried    atomic.Int64
	rejected   atomic.Int64
	extracted  atomic.Int64
	discovered atomic.Int64
}

// Stats holds crawl counters.
type Stats struct {
	Fetched    int
	Retried    int
	Rejected   int
	Extracted  int
	Discovered int
}

// Stats returns the current counters.
func (c *Crawler) Stats() Stats {
	return Stats{
		Fetched:    int(c.fetched.Load()),
		Retried:    int(c.retried.Load()),
		Rejected:   int(c.rejected.Load()),
		Extracted:  int(c.extracted.Load()),
		Discovered: int(c.discovered.Load()),
	}
}

// Run restores persisted state, seeds the crawl and drives the scheduler
// until the queue drains or the crawl is interrupted. Visited state is saved
// on both paths.
func (c *Crawler) Run(ctx context.Context, seeds ...string) error {
	c.ctx = context.WithoutCancel(ctx)
	logger := c.logger()

	if c.State != nil && !c.ForgetVisited {
		n, err := c.Visited.LoadPrior(ctx, c.State, bloom.DefaultFalsePositiveRate)
		if err != nil {
			return err
		}
		logger.Info("visited state loaded", "used", n)
	}

	_, err := c.Scheduler.Restore(ctx, func(t *sitecrawl.Transfer) bool {
		if !c.Visited.Adopt(t) {
			logger.Warn("duplicate restored transfer skipped", "url", t.URL)
			return false
		}
		t.Register(c.onComplete)
		return true
	})
	if err != nil {
		return err
	}

	c.Add(seeds, false)

	if c.Sitemaps != nil {
		urls, err := c.Sitemaps.DiscoverURLs(ctx, c.Domain, c.SitemapFilter)
		if err != nil {
			logger.Warn("sitemap discovery failed", "err", err)
		} else {
			c.Add(urls, false)
		}
	}

	runErr := c.Scheduler.Run(ctx)

	if c.State != nil {
		if err := c.Visited.Save(context.WithoutCancel(ctx), c.State); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

// Interrupt stops admission of new fetches. Run returns after in-flight
// fetches complete and state is persisted.
func (c *Crawler) Interrupt() {
	c.Scheduler.Interrupt()
}

// Add normalizes links and enqueues every URL not seen before. Priority links
// go to the head of the queue. Returns the number of URLs enqueued.
func (c *Crawler) Add(links []string, priority bool) int {
	var n int
	for _, raw := range links {
		url, ok := c.Normalize(raw)
		if !ok {
			continue
		}
		if c.enqueue(url, priority) {
			n++
		}
	}
	c.discovered.Add(int64(n))
	return n
}

func (c *Crawler) enqueue(url string, priority bool) bool {
	t := c.Visited.Claim(url)
	if t == nil {
		return false
	}
	t.Register(c.onComplete)
	c.Scheduler.Enqueue(t, priority)
	return true
}

func (c *Crawler) onComplete(t *sitecrawl.Transfer) {
	c.fetched.Add(1)
	logger := c.logger()

	switch {
	case sitecrawl.ErrorCode(t.Err) == sitecrawl.EINVALID:
		logger.Error("request rejected", "url", t.URL, "err", t.Err)
		c.rejected.Add(1)
		c.Visited.MarkUsed(t.URL)

	case t.Failed() || t.StatusCode >= 500:
		logger.Warn("retrying",
			"url", t.URL,
			"status", t.StatusCode,
			"err", t.Err,
		)
		c.retried.Add(1)
		c.Visited.Release(t.URL)
		c.enqueue(t.URL, true)

	case t.StatusCode >= 400:
		logger.Info("ignored", "url", t.URL, "status", t.StatusCode)
		c.rejected.Add(1)
		c.Visited.MarkUsed(t.URL)

	default:
		c.extract(t)
		c.Visited.MarkUsed(t.URL)
	}
}

func (c *Crawler) extract(t *sitecrawl.Transfer) {
	logger := c.logger()

	ex := c.Extractors.Find(t.URL)
	if ex == nil {
		logger.Debug("no extractor", "url", t.URL)
		return
	}

	links, err := ex.Extract(c.context(), t.URL, t.Body)
	if err != nil {
		logger.Error("extract failed", "url", t.URL, "err", err)
	} else {
		c.extracted.Add(1)
	}

	n := c.Add(links, false)
	logger.Debug("extracted", "url", t.URL, "links", len(links), "new", n)
}

func (c *Crawler) context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *Crawler) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}
