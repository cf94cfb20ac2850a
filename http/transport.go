// Package http implements sitecrawl.Transport on net/http. Each started
// transfer runs on its own goroutine; completions are collected on a shared
// channel and handed out by Poll.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/sitecrawl"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
)

// Transport defaults.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxBodySize = 10 << 20
	DefaultUserAgent   = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// maxRedirects matches the net/http default.
const maxRedirects = 10

var _ sitecrawl.Transport = (*Transport)(nil)

// Transport runs transfers concurrently over a shared HTTP client and cookie
// jar.
type Transport struct {
	follow    *http.Client
	noFollow  *http.Client
	jar       http.CookieJar
	rt        http.RoundTripper
	timeout   time.Duration
	maxBody   int64
	userAgent string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan *sitecrawl.Transfer
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(tr *Transport) {
		if d > 0 {
			tr.timeout = d
		}
	}
}

// WithUserAgent sets the user agent used when a transfer does not set one.
func WithUserAgent(ua string) Option {
	return func(tr *Transport) {
		if ua != "" {
			tr.userAgent = ua
		}
	}
}

// WithMaxBodySize caps the number of body bytes read per response.
func WithMaxBodySize(n int64) Option {
	return func(tr *Transport) {
		if n > 0 {
			tr.maxBody = n
		}
	}
}

// WithCookieJar sets the cookie jar shared by all transfers.
func WithCookieJar(jar http.CookieJar) Option {
	return func(tr *Transport) { tr.jar = jar }
}

// WithRoundTripper sets the underlying round tripper.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(tr *Transport) { tr.rt = rt }
}

// NewTransport creates a Transport. Without WithCookieJar a fresh in-memory
// jar is used.
func NewTransport(opts ...Option) (*Transport, error) {
	tr := &Transport{
		timeout:   DefaultTimeout,
		maxBody:   DefaultMaxBodySize,
		userAgent: DefaultUserAgent,
		done:      make(chan *sitecrawl.Transfer, 64),
	}
	for _, opt := range opts {
		opt(tr)
	}

	if tr.jar == nil {
		jar, err := NewCookieJar()
		if err != nil {
			return nil, err
		}
		tr.jar = jar
	}
	if tr.rt == nil {
		tr.rt = http.DefaultTransport
	}

	tr.follow = &http.Client{
		Transport: tr.rt,
		Jar:       tr.jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	tr.noFollow = &http.Client{
		Transport: tr.rt,
		Jar:       tr.jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	tr.ctx, tr.cancel = context.WithCancel(context.Background())
	return tr, nil
}

// NewCookieJar returns an in-memory cookie jar using the public suffix list.
func NewCookieJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return jar, nil
}

// Client returns an HTTP client that follows redirects and shares the
// transport's cookie jar.
func (tr *Transport) Client() *http.Client {
	return tr.follow
}

// Jar returns the shared cookie jar.
func (tr *Transport) Jar() http.CookieJar {
	return tr.jar
}

// Start begins the request for t in the background. Requests that cannot be
// built fail with EINVALID and are not started.
func (tr *Transport) Start(t *sitecrawl.Transfer) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.closed {
		return sitecrawl.Errorf(sitecrawl.ECONFLICT, "transport is closed")
	}

	ctx, cancel := context.WithTimeout(tr.ctx, tr.timeout)
	req, err := tr.newRequest(ctx, t)
	if err != nil {
		cancel()
		return sitecrawl.Errorf(sitecrawl.EINVALID, "build request for %s: %v", t.URL, err)
	}
	t.Attach(cancel)

	tr.wg.Add(1)
	go func() {
		defer tr.wg.Done()
		tr.do(req, t)
		tr.done <- t
	}()
	return nil
}

// Poll waits up to timeout for a completion and returns all completed
// transfers without blocking further.
func (tr *Transport) Poll(timeout time.Duration) []*sitecrawl.Transfer {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var out []*sitecrawl.Transfer
	select {
	case t := <-tr.done:
		out = append(out, t)
	case <-timer.C:
		return nil
	}
	for {
		select {
		case t := <-tr.done:
			out = append(out, t)
		default:
			return out
		}
	}
}

// Close cancels outstanding requests and waits for their goroutines.
// Completions not yet polled are discarded.
func (tr *Transport) Close() error {
	tr.mu.Lock()
	if tr.closed {
		tr.mu.Unlock()
		return nil
	}
	tr.closed = true
	tr.mu.Unlock()

	tr.cancel()

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-tr.done:
			case <-stop:
				return
			}
		}
	}()
	tr.wg.Wait()
	close(stop)
	return nil
}

func (tr *Transport) newRequest(ctx context.Context, t *sitecrawl.Transfer) (*http.Request, error) {
	method := strings.ToUpper(t.Options.Method)
	if method == "" {
		method = http.MethodGet
	}

	target := t.URL
	var body io.Reader
	if len(t.Options.Form) > 0 {
		form := url.Values{}
		for k, v := range t.Options.Form {
			form.Set(k, v)
		}
		if method == http.MethodGet || method == http.MethodHead {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + form.Encode()
		} else {
			body = strings.NewReader(form.Encode())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range t.Options.Headers {
		req.Header.Set(k, v)
	}
	ua := t.Options.UserAgent
	if ua == "" {
		ua = tr.userAgent
	}
	req.Header.Set("User-Agent", ua)
	return req, nil
}

func (tr *Transport) do(req *http.Request, t *sitecrawl.Transfer) {
	start := time.Now()
	client := tr.noFollow
	if t.Options.FollowRedirects {
		client = tr.follow
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Duration = time.Since(start)
		t.Complete(0, "", nil, err)
		return
	}
	defer resp.Body.Close()

	body, err := tr.readBody(resp)
	t.Duration = time.Since(start)
	if err != nil {
		t.Complete(0, "", nil, fmt.Errorf("read body of %s: %w", t.URL, err))
		return
	}
	t.Complete(resp.StatusCode, resp.Request.URL.String(), body, nil)
}

// readBody reads at most maxBody bytes and converts text bodies to UTF-8.
func (tr *Transport) readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = io.LimitReader(resp.Body, tr.maxBody)

	contentType := resp.Header.Get("Content-Type")
	if isText(contentType) {
		if cr, err := charset.NewReader(r, contentType); err == nil {
			r = cr
		}
	}
	return io.ReadAll(r)
}

func isText(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.HasPrefix(ct, "text/") || strings.Contains(ct, "html") || strings.Contains(ct, "xml")
}
