package crawl_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fwojciec/sitecrawl"
	"github.com/fwojciec/sitecrawl/crawl"
	"github.com/fwojciec/sitecrawl/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDomain = "http://forum.example"

// site is a scripted forum: status per URL and links found on each page.
type site struct {
	mu     sync.Mutex
	status map[string][]int
	links  map[string][]string
}

func (s *site) respond(url string) mock.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes, ok := s.status[url]
	if !ok {
		return mock.Response{Status: 200}
	}
	code := codes[0]
	if len(codes) > 1 {
		s.status[url] = codes[1:]
	}
	if code == 0 {
		return mock.Response{Err: errors.New("connection reset")}
	}
	return mock.Response{Status: code}
}

func (s *site) extractor() *mock.Extractor {
	return &mock.Extractor{
		MatchesFn: func(string) bool { return true },
		ExtractFn: func(_ context.Context, url string, _ []byte) ([]string, error) {
			return s.links[url], nil
		},
	}
}

func newCrawler(tr sitecrawl.Transport, extractors sitecrawl.Extractors, opts ...crawl.SchedulerOption) *crawl.Crawler {
	return &crawl.Crawler{
		Domain:     testDomain,
		Scheduler:  crawl.NewScheduler(tr, append([]crawl.SchedulerOption{crawl.WithRunLimit(1)}, opts...)...),
		Visited:    crawl.NewVisitedSet(sitecrawl.RequestOptions{FollowRedirects: true}),
		Extractors: extractors,
	}
}

func TestCrawler_Run(t *testing.T) {
	t.Parallel()

	t.Run("fetches every linked page exactly once", func(t *testing.T) {
		t.Parallel()

		s := &site{links: map[string][]string{
			testDomain + "/":  {"/a", "/b", "/a#reply"},
			testDomain + "/a": {"/", "/b", "http://forum.example/c"},
			testDomain + "/b": {"/a", "/c"},
			testDomain + "/c": {"/"},
		}}
		tr := &mock.InstantTransport{Respond: s.respond}
		c := newCrawler(tr, sitecrawl.Extractors{s.extractor()})

		require.NoError(t, c.Run(context.Background(), "/"))

		assert.Equal(t, []string{
			testDomain + "/",
			testDomain + "/a",
			testDomain + "/b",
			testDomain + "/c",
		}, tr.Started())
		assert.Equal(t, crawl.Stats{Fetched: 4, Extracted: 4, Discovered: 4}, c.Stats())
		for _, u := range tr.Started() {
			assert.Equal(t, sitecrawl.VisitUsed, c.Visited.State(u))
		}
	})

	t.Run("never leaves the configured domain", func(t *testing.T) {
		t.Parallel()

		s := &site{links: map[string][]string{
			testDomain + "/": {"http://other.example/x", "//cdn.example/app.js", "relative.html", "/in"},
		}}
		tr := &mock.InstantTransport{Respond: s.respond}
		c := newCrawler(tr, sitecrawl.Extractors{s.extractor()})

		require.NoError(t, c.Run(context.Background(), "/"))

		assert.Equal(t, []string{testDomain + "/", testDomain + "/in"}, tr.Started())
	})

	t.Run("retries server errors at the head of the queue", func(t *testing.T) {
		t.Parallel()

		s := &site{
			status: map[string][]int{testDomain + "/a": {503, 200}},
			links:  map[string][]string{testDomain + "/": {"/a", "/b"}},
		}
		tr := &mock.InstantTransport{Respond: s.respond}
		c := newCrawler(tr, sitecrawl.Extractors{s.extractor()})

		require.NoError(t, c.Run(context.Background(), "/"))

		assert.Equal(t, []string{
			testDomain + "/",
			testDomain + "/a",
			testDomain + "/a",
			testDomain + "/b",
		}, tr.Started())
		assert.Equal(t, 1, c.Stats().Retried)
		assert.Equal(t, sitecrawl.VisitUsed, c.Visited.State(testDomain+"/a"))
	})

	t.Run("retries transport errors", func(t *testing.T) {
		t.Parallel()

		s := &site{status: map[string][]int{testDomain + "/": {0, 0, 200}}}
		tr := &mock.InstantTransport{Respond: s.respond}
		c := newCrawler(tr, sitecrawl.Extractors{s.extractor()})

		require.NoError(t, c.Run(context.Background(), "/"))

		assert.Len(t, tr.Started(), 3)
		assert.Equal(t, 2, c.Stats().Retried)
	})

	t.Run("drops client errors without retrying", func(t *testing.T) {
		t.Parallel()

		s := &site{
			status: map[string][]int{testDomain + "/missing": {404}},
			links:  map[string][]string{testDomain + "/": {"/missing"}},
		}
		tr := &mock.InstantTransport{Respond: s.respond}
		var extracted []string
		ex := &mock.Extractor{
			MatchesFn: func(string) bool { return true },
			ExtractFn: func(_ context.Context, url string, _ []byte) ([]string, error) {
				extracted = append(extracted, url)
				return s.links[url], nil
			},
		}
		c := newCrawler(tr, sitecrawl.Extractors{ex})

		require.NoError(t, c.Run(context.Background(), "/"))

		assert.Equal(t, []string{testDomain + "/", testDomain + "/missing"}, tr.Started())
		assert.Equal(t, []string{testDomain + "/"}, extracted)
		assert.Equal(t, sitecrawl.VisitUsed, c.Visited.State(testDomain+"/missing"))
		assert.Equal(t, 1, c.Stats().Rejected)
	})

	t.Run("drops requests the transport rejects as invalid", func(t *testing.T) {
		t.Parallel()

		var starts int
		tr := &mock.Transport{
			StartFn: func(*sitecrawl.Transfer) error {
				starts++
				return sitecrawl.Errorf(sitecrawl.EINVALID, "bad URL")
			},
		}
		c := newCrawler(tr, nil)

		require.NoError(t, c.Run(context.Background(), "/%zz"))

		assert.Equal(t, 1, starts)
		assert.Equal(t, 1, c.Stats().Rejected)
	})

	t.Run("routes pages to the first matching extractor", func(t *testing.T) {
		t.Parallel()

		s := &site{links: map[string][]string{testDomain + "/": {"/topic/1"}}}
		tr := &mock.InstantTransport{Respond: s.respond}
		var topics, fallback []string
		topic := &mock.Extractor{
			MatchesFn: func(url string) bool { return url == testDomain+"/topic/1" },
			ExtractFn: func(_ context.Context, url string, _ []byte) ([]string, error) {
				topics = append(topics, url)
				return nil, nil
			},
		}
		all := &mock.Extractor{
			MatchesFn: func(string) bool { return true },
			ExtractFn: func(_ context.Context, url string, _ []byte) ([]string, error) {
				fallback = append(fallback, url)
				return s.links[url], nil
			},
		}
		c := newCrawler(tr, sitecrawl.Extractors{topic, all})

		require.NoError(t, c.Run(context.Background(), "/"))

		assert.Equal(t, []string{testDomain + "/topic/1"}, topics)
		assert.Equal(t, []string{testDomain + "/"}, fallback)
	})

	t.Run("continues after extractor errors", func(t *testing.T) {
		t.Parallel()

		tr := &mock.InstantTransport{Respond: okResponder}
		ex := &mock.Extractor{
			MatchesFn: func(string) bool { return true },
			ExtractFn: func(context.Context, string, []byte) ([]string, error) {
				return nil, errors.New("malformed page")
			},
		}
		c := newCrawler(tr, sitecrawl.Extractors{ex})

		require.NoError(t, c.Run(context.Background(), "/", "/other"))

		assert.Len(t, tr.Started(), 2)
		assert.Equal(t, sitecrawl.VisitUsed, c.Visited.State(testDomain+"/"))
		assert.Zero(t, c.Stats().Extracted)
	})

	t.Run("follows links returned with an extractor error", func(t *testing.T) {
		t.Parallel()

		tr := &mock.InstantTransport{Respond: okResponder}
		ex := &mock.Extractor{
			MatchesFn: func(string) bool { return true },
			ExtractFn: func(_ context.Context, url string, _ []byte) ([]string, error) {
				if url == testDomain+"/" {
					return []string{"/next"}, errors.New("save page: database is locked")
				}
				return nil, nil
			},
		}
		c := newCrawler(tr, sitecrawl.Extractors{ex})

		require.NoError(t, c.Run(context.Background(), "/"))

		assert.Equal(t, []string{testDomain + "/", testDomain + "/next"}, tr.Started())
		assert.Equal(t, 1, c.Stats().Extracted)
	})

	t.Run("marks pages used when no extractor matches", func(t *testing.T) {
		t.Parallel()

		tr := &mock.InstantTransport{Respond: okResponder}
		c := newCrawler(tr, nil)

		require.NoError(t, c.Run(context.Background(), "/"))

		assert.Equal(t, sitecrawl.VisitUsed, c.Visited.State(testDomain+"/"))
	})

	t.Run("resumes the stored queue in order before seeds", func(t *testing.T) {
		t.Parallel()

		queue := &queueRecorder{loaded: []sitecrawl.QueuedRequest{
			{URL: testDomain + "/A"},
			{URL: testDomain + "/B"},
			{URL: testDomain + "/C"},
		}}
		s := &site{}
		tr := &mock.InstantTransport{Respond: s.respond}
		c := newCrawler(tr, sitecrawl.Extractors{s.extractor()}, crawl.WithQueueStore(queue))

		require.NoError(t, c.Run(context.Background(), "/A", "/D"))

		assert.Equal(t, []string{
			testDomain + "/A",
			testDomain + "/B",
			testDomain + "/C",
			testDomain + "/D",
		}, tr.Started())
		assert.Empty(t, queue.last())
	})

	t.Run("fetches a URL stored twice in the queue once", func(t *testing.T) {
		t.Parallel()

		queue := &queueRecorder{loaded: []sitecrawl.QueuedRequest{
			{URL: testDomain + "/a"},
			{URL: testDomain + "/a"},
		}}
		s := &site{}
		tr := &mock.InstantTransport{Respond: s.respond}
		c := newCrawler(tr, sitecrawl.Extractors{s.extractor()}, crawl.WithQueueStore(queue))

		require.NoError(t, c.Run(context.Background()))

		assert.Equal(t, []string{testDomain + "/a"}, tr.Started())
		assert.Equal(t, 1, c.Stats().Fetched)
	})

	t.Run("skips pages used by an earlier run", func(t *testing.T) {
		t.Parallel()

		var saved []sitecrawl.VisitedEntry
		state := &mock.StateStore{
			LoadVisitedFn: func(context.Context) ([]sitecrawl.VisitedEntry, error) {
				return []sitecrawl.VisitedEntry{{URL: testDomain + "/old", State: sitecrawl.VisitUsed}}, nil
			},
			SaveVisitedFn: func(_ context.Context, entries []sitecrawl.VisitedEntry) error {
				saved = entries
				return nil
			},
		}
		s := &site{links: map[string][]string{testDomain + "/": {"/old", "/new"}}}
		tr := &mock.InstantTransport{Respond: s.respond}
		c := newCrawler(tr, sitecrawl.Extractors{s.extractor()})
		c.State = state

		require.NoError(t, c.Run(context.Background(), "/"))

		assert.Equal(t, []string{testDomain + "/", testDomain + "/new"}, tr.Started())
		assert.Equal(t, []sitecrawl.VisitedEntry{
			{URL: testDomain + "/", State: sitecrawl.VisitUsed},
			{URL: testDomain + "/new", State: sitecrawl.VisitUsed},
		}, saved)
	})

	t.Run("ignores earlier runs when told to forget", func(t *testing.T) {
		t.Parallel()

		state := &mock.StateStore{
			LoadVisitedFn: func(context.Context) ([]sitecrawl.VisitedEntry, error) {
				t.Fatal("visited state should not be loaded")
				return nil, nil
			},
			SaveVisitedFn: func(context.Context, []sitecrawl.VisitedEntry) error { return nil },
		}
		tr := &mock.InstantTransport{Respond: okResponder}
		c := newCrawler(tr, nil)
		c.State = state
		c.ForgetVisited = true

		require.NoError(t, c.Run(context.Background(), "/"))

		assert.Len(t, tr.Started(), 1)
	})

	t.Run("persists remaining work when interrupted", func(t *testing.T) {
		t.Parallel()

		queue := &queueRecorder{}
		var saved []sitecrawl.VisitedEntry
		state := &mock.StateStore{
			LoadVisitedFn: func(context.Context) ([]sitecrawl.VisitedEntry, error) { return nil, nil },
			SaveVisitedFn: func(_ context.Context, entries []sitecrawl.VisitedEntry) error {
				saved = entries
				return nil
			},
		}
		tr := &mock.InstantTransport{Respond: okResponder}
		var c *crawl.Crawler
		ex := &mock.Extractor{
			MatchesFn: func(string) bool { return true },
			ExtractFn: func(context.Context, string, []byte) ([]string, error) {
				c.Interrupt()
				return []string{"/a", "/b"}, nil
			},
		}
		c = newCrawler(tr, sitecrawl.Extractors{ex}, crawl.WithQueueStore(queue))
		c.State = state

		require.NoError(t, c.Run(context.Background(), "/"))

		assert.Equal(t, []string{testDomain + "/"}, tr.Started())
		assert.Equal(t, []string{testDomain + "/a", testDomain + "/b"}, urlsOf(queue.last()))
		assert.Equal(t, []sitecrawl.VisitedEntry{
			{URL: testDomain + "/", State: sitecrawl.VisitUsed},
			{URL: testDomain + "/a", State: sitecrawl.VisitClaimed},
			{URL: testDomain + "/b", State: sitecrawl.VisitClaimed},
		}, saved)
	})

	t.Run("seeds from the sitemap", func(t *testing.T) {
		t.Parallel()

		sitemaps := &mock.SitemapService{
			DiscoverURLsFn: func(_ context.Context, baseURL string, _ *sitecrawl.URLFilter) ([]string, error) {
				assert.Equal(t, testDomain, baseURL)
				return []string{testDomain + "/from-sitemap", "http://other.example/x"}, nil
			},
		}
		tr := &mock.InstantTransport{Respond: okResponder}
		c := newCrawler(tr, nil)
		c.Sitemaps = sitemaps

		require.NoError(t, c.Run(context.Background(), "/"))

		assert.Equal(t, []string{testDomain + "/", testDomain + "/from-sitemap"}, tr.Started())
	})

	t.Run("returns restore failures", func(t *testing.T) {
		t.Parallel()

		queue := &mock.StateStore{
			LoadQueueFn: func(context.Context) ([]sitecrawl.QueuedRequest, error) {
				return nil, errors.New("corrupt queue")
			},
		}
		tr := &mock.InstantTransport{Respond: okResponder}
		c := newCrawler(tr, nil, crawl.WithQueueStore(queue))

		err := c.Run(context.Background(), "/")

		assert.ErrorContains(t, err, "corrupt queue")
		assert.Empty(t, tr.Started())
	})
}

func TestCrawler_Add(t *testing.T) {
	t.Parallel()

	c := newCrawler(&mock.InstantTransport{Respond: okResponder}, nil)

	n := c.Add([]string{"/a", "/a", "http://forum.example/a#x", "http://other.example/a", "/b"}, false)

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, c.Stats().Discovered)
	assert.Equal(t, []string{testDomain + "/a", testDomain + "/b"}, urlsOf(c.Scheduler.Pending()))
}
