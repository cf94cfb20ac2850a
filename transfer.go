package sitecrawl

import (
	"sync"
	"time"
)

// TransferState is the lifecycle state of a Transfer.
type TransferState uint8

// Transfer lifecycle states. A Transfer only moves forward.
const (
	TransferPending TransferState = iota
	TransferInFlight
	TransferCompleted
	TransferClosed
)

func (s TransferState) String() string {
	switch s {
	case TransferPending:
		return "pending"
	case TransferInFlight:
		return "in-flight"
	case TransferCompleted:
		return "completed"
	case TransferClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RequestOptions describes how a URL is requested. It is persisted alongside
// the URL so a resumed crawl issues the same request.
type RequestOptions struct {
	Method          string            `json:"method,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Form            map[string]string `json:"form,omitempty"`
	UserAgent       string            `json:"userAgent,omitempty"`
	FollowRedirects bool              `json:"followRedirects"`
}

// Clone returns a deep copy of the options.
func (o RequestOptions) Clone() RequestOptions {
	c := o
	if o.Headers != nil {
		c.Headers = make(map[string]string, len(o.Headers))
		for k, v := range o.Headers {
			c.Headers[k] = v
		}
	}
	if o.Form != nil {
		c.Form = make(map[string]string, len(o.Form))
		for k, v := range o.Form {
			c.Form[k] = v
		}
	}
	return c
}

// QueuedRequest is the durable part of a Transfer.
type QueuedRequest struct {
	URL     string         `json:"url"`
	Options RequestOptions `json:"options"`
}

// CompletionFunc is invoked once when a Transfer completes. The callee owns
// the Transfer for the duration of the call only.
type CompletionFunc func(t *Transfer)

// Transfer is one outstanding request/response unit. It owns a single
// transport handle from Start until Close.
type Transfer struct {
	URL     string
	Options RequestOptions

	// Populated by Complete.
	StatusCode   int
	EffectiveURL string
	Body         []byte
	Err          error
	Duration     time.Duration

	mu         sync.Mutex
	state      TransferState
	onComplete CompletionFunc
	release    func()
	finished   bool
}

// NewTransfer returns a pending Transfer for url.
func NewTransfer(url string, opts RequestOptions) *Transfer {
	return &Transfer{URL: url, Options: opts.Clone()}
}

// NewTransferFromRequest rebuilds a pending Transfer from its durable form.
func NewTransferFromRequest(req QueuedRequest) *Transfer {
	return NewTransfer(req.URL, req.Options)
}

// Request returns the durable part of the transfer.
func (t *Transfer) Request() QueuedRequest {
	return QueuedRequest{URL: t.URL, Options: t.Options.Clone()}
}

// State returns the current lifecycle state.
func (t *Transfer) State() TransferState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Register sets the completion callback.
func (t *Transfer) Register(fn CompletionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onComplete = fn
}

// Attach marks the transfer in flight and binds the function that releases
// its transport handle.
func (t *Transfer) Attach(release func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.release = release
	if t.state == TransferPending {
		t.state = TransferInFlight
	}
}

// Complete records the outcome of the request. A transport-level failure is
// recorded with a zero status code and a non-nil err.
func (t *Transfer) Complete(status int, effectiveURL string, body []byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state >= TransferCompleted {
		return
	}
	t.StatusCode = status
	t.EffectiveURL = effectiveURL
	t.Body = body
	t.Err = err
	t.state = TransferCompleted
}

// Failed reports whether the transfer ended without an HTTP response.
func (t *Transfer) Failed() bool {
	return t.StatusCode == 0
}

// Finish invokes the completion callback. Only the first call has an effect.
func (t *Transfer) Finish() {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	fn := t.onComplete
	t.mu.Unlock()

	if fn != nil {
		fn(t)
	}
}

// Close releases the transport handle. The transfer must not be reused.
func (t *Transfer) Close() {
	t.mu.Lock()
	release := t.release
	t.release = nil
	t.state = TransferClosed
	t.mu.Unlock()

	if release != nil {
		release()
	}
}

// Transport runs transfers against a shared multiplexer.
type Transport interface {
	// Start begins the request in the background. The transfer is reported by
	// Poll once it completes, whether it succeeded or not.
	Start(t *Transfer) error

	// Poll waits up to timeout for at least one completion and returns every
	// transfer that is ready. It returns nil when the timeout elapses first.
	Poll(timeout time.Duration) []*Transfer

	// Close releases the multiplexer.
	Close() error
}
