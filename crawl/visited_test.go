package crawl_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fwojciec/sitecrawl"
	"github.com/fwojciec/sitecrawl/crawl"
	"github.com/fwojciec/sitecrawl/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitedSet_Claim(t *testing.T) {
	t.Parallel()

	t.Run("returns a pending transfer built from the option template", func(t *testing.T) {
		t.Parallel()

		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{UserAgent: "test-agent", FollowRedirects: true})

		tr := v.Claim("http://forum.example/a")

		require.NotNil(t, tr)
		assert.Equal(t, "http://forum.example/a", tr.URL)
		assert.Equal(t, "test-agent", tr.Options.UserAgent)
		assert.True(t, tr.Options.FollowRedirects)
		assert.Equal(t, sitecrawl.TransferPending, tr.State())
		assert.Equal(t, sitecrawl.VisitClaimed, v.State("http://forum.example/a"))
	})

	t.Run("returns nil for a claimed URL", func(t *testing.T) {
		t.Parallel()

		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})
		require.NotNil(t, v.Claim("http://forum.example/a"))

		assert.Nil(t, v.Claim("http://forum.example/a"))
	})

	t.Run("returns nil for a used URL", func(t *testing.T) {
		t.Parallel()

		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})
		v.Claim("http://forum.example/a")
		v.MarkUsed("http://forum.example/a")

		assert.Nil(t, v.Claim("http://forum.example/a"))
	})

	t.Run("grants exactly one claim under contention", func(t *testing.T) {
		t.Parallel()

		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})
		var granted atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if v.Claim("http://forum.example/a") != nil {
					granted.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), granted.Load())
	})
}

func TestVisitedSet_MarkUsed(t *testing.T) {
	t.Parallel()

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()

		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})
		v.Claim("http://forum.example/a")

		v.MarkUsed("http://forum.example/a")
		v.MarkUsed("http://forum.example/a")

		assert.Equal(t, sitecrawl.VisitUsed, v.State("http://forum.example/a"))
		assert.Equal(t, 1, v.Len())
	})
}

func TestVisitedSet_Release(t *testing.T) {
	t.Parallel()

	t.Run("permits exactly one future claim", func(t *testing.T) {
		t.Parallel()

		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})
		v.Claim("http://forum.example/a")

		v.Release("http://forum.example/a")

		assert.Equal(t, sitecrawl.VisitState(0), v.State("http://forum.example/a"))
		assert.NotNil(t, v.Claim("http://forum.example/a"))
		assert.Nil(t, v.Claim("http://forum.example/a"))
	})
}

func TestVisitedSet_Adopt(t *testing.T) {
	t.Parallel()

	t.Run("marks a restored transfer claimed", func(t *testing.T) {
		t.Parallel()

		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})
		tr := sitecrawl.NewTransfer("http://forum.example/a", sitecrawl.RequestOptions{})

		assert.True(t, v.Adopt(tr))
		assert.Nil(t, v.Claim("http://forum.example/a"))
	})

	t.Run("rejects a URL already known", func(t *testing.T) {
		t.Parallel()

		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})
		v.Claim("http://forum.example/a")

		assert.False(t, v.Adopt(sitecrawl.NewTransfer("http://forum.example/a", sitecrawl.RequestOptions{})))
	})
}

func TestVisitedSet_Entries(t *testing.T) {
	t.Parallel()

	v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})
	v.Claim("http://forum.example/b")
	v.Claim("http://forum.example/a")
	v.MarkUsed("http://forum.example/a")

	assert.Equal(t, []sitecrawl.VisitedEntry{
		{URL: "http://forum.example/a", State: sitecrawl.VisitUsed},
		{URL: "http://forum.example/b", State: sitecrawl.VisitClaimed},
	}, v.Entries())
}

func TestVisitedSet_Save(t *testing.T) {
	t.Parallel()

	t.Run("stores every entry", func(t *testing.T) {
		t.Parallel()

		var saved []sitecrawl.VisitedEntry
		store := &mock.StateStore{
			SaveVisitedFn: func(_ context.Context, entries []sitecrawl.VisitedEntry) error {
				saved = entries
				return nil
			},
		}
		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})
		v.Claim("http://forum.example/a")

		require.NoError(t, v.Save(context.Background(), store))

		assert.Equal(t, []sitecrawl.VisitedEntry{
			{URL: "http://forum.example/a", State: sitecrawl.VisitClaimed},
		}, saved)
	})

	t.Run("wraps store errors", func(t *testing.T) {
		t.Parallel()

		store := &mock.StateStore{
			SaveVisitedFn: func(context.Context, []sitecrawl.VisitedEntry) error {
				return errors.New("disk full")
			},
		}
		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})

		err := v.Save(context.Background(), store)

		assert.ErrorContains(t, err, "disk full")
	})
}

func TestVisitedSet_LoadPrior(t *testing.T) {
	t.Parallel()

	t.Run("treats previously used URLs as used", func(t *testing.T) {
		t.Parallel()

		store := &mock.StateStore{
			LoadVisitedFn: func(context.Context) ([]sitecrawl.VisitedEntry, error) {
				return []sitecrawl.VisitedEntry{
					{URL: "http://forum.example/a", State: sitecrawl.VisitUsed},
					{URL: "http://forum.example/b", State: sitecrawl.VisitClaimed},
				}, nil
			},
		}
		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})

		n, err := v.LoadPrior(context.Background(), store, 0.0001)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Nil(t, v.Claim("http://forum.example/a"))
		assert.Equal(t, sitecrawl.VisitUsed, v.State("http://forum.example/a"))
		assert.NotNil(t, v.Claim("http://forum.example/b"))
	})

	t.Run("does not report prior URLs as entries of this run", func(t *testing.T) {
		t.Parallel()

		urls := make([]sitecrawl.VisitedEntry, 0, 100)
		for i := 0; i < 100; i++ {
			urls = append(urls, sitecrawl.VisitedEntry{
				URL:   fmt.Sprintf("http://forum.example/t%d", i),
				State: sitecrawl.VisitUsed,
			})
		}
		store := &mock.StateStore{
			LoadVisitedFn: func(context.Context) ([]sitecrawl.VisitedEntry, error) {
				return urls, nil
			},
		}
		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})

		_, err := v.LoadPrior(context.Background(), store, 0.0001)

		require.NoError(t, err)
		assert.Zero(t, v.Len())
	})

	t.Run("never refuses a fresh URL", func(t *testing.T) {
		t.Parallel()

		prior := make([]sitecrawl.VisitedEntry, 0, 2000)
		for i := 0; i < 2000; i++ {
			prior = append(prior, sitecrawl.VisitedEntry{
				URL:   fmt.Sprintf("http://forum.example/old%d", i),
				State: sitecrawl.VisitUsed,
			})
		}
		store := &mock.StateStore{
			LoadVisitedFn: func(context.Context) ([]sitecrawl.VisitedEntry, error) {
				return prior, nil
			},
		}
		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})

		// A loose filter makes false positives certain over this many URLs.
		_, err := v.LoadPrior(context.Background(), store, 0.5)
		require.NoError(t, err)

		var refused []string
		for i := 0; i < 10000; i++ {
			url := fmt.Sprintf("http://forum.example/new%d", i)
			if v.Claim(url) == nil {
				refused = append(refused, url)
			}
		}
		assert.Empty(t, refused)
		for _, e := range prior {
			assert.Nil(t, v.Claim(e.URL))
		}
	})

	t.Run("returns store errors", func(t *testing.T) {
		t.Parallel()

		store := &mock.StateStore{
			LoadVisitedFn: func(context.Context) ([]sitecrawl.VisitedEntry, error) {
				return nil, errors.New("corrupt")
			},
		}
		v := crawl.NewVisitedSet(sitecrawl.RequestOptions{})

		_, err := v.LoadPrior(context.Background(), store, 0.0001)

		assert.ErrorContains(t, err, "corrupt")
	})
}
