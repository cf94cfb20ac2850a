package http_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/fwojciec/sitecrawl"
	sitecrawlhttp "github.com/fwojciec/sitecrawl/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pollAll polls tr until n transfers have completed or the deadline passes.
func pollAll(t *testing.T, tr sitecrawl.Transport, n int) []*sitecrawl.Transfer {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	var out []*sitecrawl.Transfer
	for len(out) < n && time.Now().Before(deadline) {
		out = append(out, tr.Poll(100*time.Millisecond)...)
	}
	require.Len(t, out, n)
	return out
}

func newTransport(t *testing.T, opts ...sitecrawlhttp.Option) *sitecrawlhttp.Transport {
	t.Helper()

	tr, err := sitecrawlhttp.NewTransport(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTransport_Start(t *testing.T) {
	t.Parallel()

	t.Run("completes with status, body and effective URL", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html><body>Board index</body></html>"))
		}))
		defer srv.Close()

		tr := newTransport(t)
		x := sitecrawl.NewTransfer(srv.URL+"/index.php", sitecrawl.RequestOptions{FollowRedirects: true})

		require.NoError(t, tr.Start(x))
		assert.Equal(t, sitecrawl.TransferInFlight, x.State())

		done := pollAll(t, tr, 1)

		assert.Same(t, x, done[0])
		assert.Equal(t, sitecrawl.TransferCompleted, x.State())
		assert.Equal(t, 200, x.StatusCode)
		assert.Equal(t, "<html><body>Board index</body></html>", string(x.Body))
		assert.Equal(t, srv.URL+"/index.php", x.EffectiveURL)
		assert.NoError(t, x.Err)
		x.Close()
	})

	t.Run("reports server errors as completed transfers", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		tr := newTransport(t)
		x := sitecrawl.NewTransfer(srv.URL, sitecrawl.RequestOptions{})
		require.NoError(t, tr.Start(x))

		pollAll(t, tr, 1)

		assert.Equal(t, 503, x.StatusCode)
		assert.False(t, x.Failed())
	})

	t.Run("reports connection failures with status zero", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		tr := newTransport(t)
		x := sitecrawl.NewTransfer(addr, sitecrawl.RequestOptions{})
		require.NoError(t, tr.Start(x))

		pollAll(t, tr, 1)

		assert.True(t, x.Failed())
		assert.Error(t, x.Err)
	})

	t.Run("follows redirects only when asked", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/old" {
				http.Redirect(w, r, "/new", http.StatusMovedPermanently)
				return
			}
			_, _ = w.Write([]byte("new"))
		}))
		defer srv.Close()

		tr := newTransport(t)
		follow := sitecrawl.NewTransfer(srv.URL+"/old", sitecrawl.RequestOptions{FollowRedirects: true})
		stay := sitecrawl.NewTransfer(srv.URL+"/old", sitecrawl.RequestOptions{})
		require.NoError(t, tr.Start(follow))
		require.NoError(t, tr.Start(stay))

		pollAll(t, tr, 2)

		assert.Equal(t, 200, follow.StatusCode)
		assert.Equal(t, srv.URL+"/new", follow.EffectiveURL)
		assert.Equal(t, 301, stay.StatusCode)
		assert.Equal(t, srv.URL+"/old", stay.EffectiveURL)
	})

	t.Run("sends method, form, headers and user agent", func(t *testing.T) {
		t.Parallel()

		type seen struct {
			method, ua, header, form, contentType string
		}
		got := make(chan seen, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			got <- seen{
				method:      r.Method,
				ua:          r.UserAgent(),
				header:      r.Header.Get("X-Forum"),
				form:        r.PostForm.Get("keywords"),
				contentType: r.Header.Get("Content-Type"),
			}
		}))
		defer srv.Close()

		tr := newTransport(t, sitecrawlhttp.WithUserAgent("default-agent"))
		x := sitecrawl.NewTransfer(srv.URL+"/search.php", sitecrawl.RequestOptions{
			Method:    "post",
			Headers:   map[string]string{"X-Forum": "1"},
			Form:      map[string]string{"keywords": "carburettor"},
			UserAgent: "custom-agent",
		})
		require.NoError(t, tr.Start(x))
		pollAll(t, tr, 1)

		s := <-got
		assert.Equal(t, http.MethodPost, s.method)
		assert.Equal(t, "custom-agent", s.ua)
		assert.Equal(t, "1", s.header)
		assert.Equal(t, "carburettor", s.form)
		assert.Equal(t, "application/x-www-form-urlencoded", s.contentType)
	})

	t.Run("encodes form fields in the query of GET requests", func(t *testing.T) {
		t.Parallel()

		got := make(chan url.Values, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got <- r.URL.Query()
		}))
		defer srv.Close()

		tr := newTransport(t)
		x := sitecrawl.NewTransfer(srv.URL+"/viewforum.php?f=2", sitecrawl.RequestOptions{
			Form: map[string]string{"start": "50"},
		})
		require.NoError(t, tr.Start(x))
		pollAll(t, tr, 1)

		q := <-got
		assert.Equal(t, "2", q.Get("f"))
		assert.Equal(t, "50", q.Get("start"))
	})

	t.Run("uses the default user agent", func(t *testing.T) {
		t.Parallel()

		got := make(chan string, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got <- r.UserAgent()
		}))
		defer srv.Close()

		tr := newTransport(t)
		require.NoError(t, tr.Start(sitecrawl.NewTransfer(srv.URL, sitecrawl.RequestOptions{})))
		pollAll(t, tr, 1)

		assert.Equal(t, sitecrawlhttp.DefaultUserAgent, <-got)
	})

	t.Run("decodes legacy charsets to UTF-8", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=windows-1251")
			// "Привет" in windows-1251.
			_, _ = w.Write([]byte{0xcf, 0xf0, 0xe8, 0xe2, 0xe5, 0xf2})
		}))
		defer srv.Close()

		tr := newTransport(t)
		x := sitecrawl.NewTransfer(srv.URL, sitecrawl.RequestOptions{})
		require.NoError(t, tr.Start(x))
		pollAll(t, tr, 1)

		assert.Equal(t, "Привет", string(x.Body))
	})

	t.Run("caps the body size", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(make([]byte, 1024))
		}))
		defer srv.Close()

		tr := newTransport(t, sitecrawlhttp.WithMaxBodySize(100))
		x := sitecrawl.NewTransfer(srv.URL, sitecrawl.RequestOptions{})
		require.NoError(t, tr.Start(x))
		pollAll(t, tr, 1)

		assert.Len(t, x.Body, 100)
	})

	t.Run("times out slow requests", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		tr := newTransport(t, sitecrawlhttp.WithTimeout(50*time.Millisecond))
		x := sitecrawl.NewTransfer(srv.URL, sitecrawl.RequestOptions{})
		require.NoError(t, tr.Start(x))
		pollAll(t, tr, 1)

		assert.True(t, x.Failed())
	})

	t.Run("rejects requests that cannot be built", func(t *testing.T) {
		t.Parallel()

		tr := newTransport(t)
		x := sitecrawl.NewTransfer("http://forum.example/%zz", sitecrawl.RequestOptions{})

		err := tr.Start(x)

		require.Error(t, err)
		assert.Equal(t, sitecrawl.EINVALID, sitecrawl.ErrorCode(err))
		assert.Equal(t, sitecrawl.TransferPending, x.State())
	})

	t.Run("rejects starts after close", func(t *testing.T) {
		t.Parallel()

		tr, err := sitecrawlhttp.NewTransport()
		require.NoError(t, err)
		require.NoError(t, tr.Close())

		err = tr.Start(sitecrawl.NewTransfer("http://forum.example/", sitecrawl.RequestOptions{}))

		assert.Equal(t, sitecrawl.ECONFLICT, sitecrawl.ErrorCode(err))
	})

	t.Run("shares cookies between transfers", func(t *testing.T) {
		t.Parallel()

		got := make(chan string, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/login" {
				http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
				return
			}
			c, err := r.Cookie("sid")
			if err != nil {
				got <- ""
				return
			}
			got <- c.Value
		}))
		defer srv.Close()

		tr := newTransport(t)
		require.NoError(t, tr.Start(sitecrawl.NewTransfer(srv.URL+"/login", sitecrawl.RequestOptions{})))
		pollAll(t, tr, 1)
		require.NoError(t, tr.Start(sitecrawl.NewTransfer(srv.URL+"/index.php", sitecrawl.RequestOptions{})))
		pollAll(t, tr, 1)

		assert.Equal(t, "abc", <-got)
	})
}

func TestTransport_Poll(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when nothing completes before the timeout", func(t *testing.T) {
		t.Parallel()

		tr := newTransport(t)

		start := time.Now()
		assert.Nil(t, tr.Poll(20*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})
}

func TestTransport_Client(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tr := newTransport(t)
	resp, err := tr.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}
