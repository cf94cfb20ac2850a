package mock

import (
	"sync"
	"time"

	"github.com/fwojciec/sitecrawl"
)

var _ sitecrawl.Transport = (*Transport)(nil)

// Transport is a mock implementation of sitecrawl.Transport.
type Transport struct {
	StartFn func(t *sitecrawl.Transfer) error
	PollFn  func(timeout time.Duration) []*sitecrawl.Transfer
	CloseFn func() error
}

func (tr *Transport) Start(t *sitecrawl.Transfer) error {
	return tr.StartFn(t)
}

func (tr *Transport) Poll(timeout time.Duration) []*sitecrawl.Transfer {
	return tr.PollFn(timeout)
}

func (tr *Transport) Close() error {
	return tr.CloseFn()
}

// Response is a scripted transport outcome.
type Response struct {
	Status int
	Body   string
	Err    error
}

// InstantTransport completes every started transfer immediately using a
// responder and reports it on the next Poll. It records the order in which
// URLs were started.
type InstantTransport struct {
	Respond func(url string) Response

	mu       sync.Mutex
	ready    []*sitecrawl.Transfer
	started  []string
	released int
}

var _ sitecrawl.Transport = (*InstantTransport)(nil)

func (tr *InstantTransport) Start(t *sitecrawl.Transfer) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.started = append(tr.started, t.URL)
	t.Attach(func() {
		tr.mu.Lock()
		tr.released++
		tr.mu.Unlock()
	})
	r := tr.Respond(t.URL)
	t.Complete(r.Status, t.URL, []byte(r.Body), r.Err)
	tr.ready = append(tr.ready, t)
	return nil
}

func (tr *InstantTransport) Poll(time.Duration) []*sitecrawl.Transfer {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	out := tr.ready
	tr.ready = nil
	return out
}

func (tr *InstantTransport) Close() error { return nil }

// Started returns the URLs in the order they were started.
func (tr *InstantTransport) Started() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.started...)
}

// Released returns how many transport handles were released.
func (tr *InstantTransport) Released() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.released
}
