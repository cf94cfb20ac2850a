package crawl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fwojciec/sitecrawl"
	"github.com/fwojciec/sitecrawl/bloom"
)

// VisitedSet is the deduplication authority. It issues at most one Transfer
// per URL unless the URL is explicitly released for retry.
// It is safe for concurrent use by multiple goroutines.
type VisitedSet struct {
	mu      sync.Mutex
	entries map[string]sitecrawl.VisitState
	options sitecrawl.RequestOptions

	// priorFilter answers most misses for URLs of earlier runs without a
	// map lookup; prior is the exact set it is confirmed against.
	priorFilter *bloom.Filter
	prior       map[string]struct{}
}

// NewVisitedSet creates an empty VisitedSet. Claimed transfers are built
// with opts.
func NewVisitedSet(opts sitecrawl.RequestOptions) *VisitedSet {
	return &VisitedSet{
		entries: make(map[string]sitecrawl.VisitState),
		options: opts.Clone(),
	}
}

// Claim marks url claimed and returns a new pending Transfer for it.
// Returns nil if the URL is already claimed or used.
func (v *VisitedSet) Claim(url string) *sitecrawl.Transfer {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.entries[url]; ok {
		return nil
	}
	if v.usedBefore(url) {
		return nil
	}
	v.entries[url] = sitecrawl.VisitClaimed
	return sitecrawl.NewTransfer(url, v.options)
}

// Adopt registers a transfer rebuilt from persisted queue state as claimed.
// Returns false if its URL is already known to this run.
func (v *VisitedSet) Adopt(t *sitecrawl.Transfer) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.entries[t.URL]; ok {
		return false
	}
	v.entries[t.URL] = sitecrawl.VisitClaimed
	return true
}

// MarkUsed marks url as processed. Calling it again is a no-op.
func (v *VisitedSet) MarkUsed(url string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries[url] = sitecrawl.VisitUsed
}

// Release forgets url so that it can be claimed exactly once more.
func (v *VisitedSet) Release(url string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.entries, url)
}

// State returns the state of url. URLs remembered from earlier runs report
// VisitUsed.
func (v *VisitedSet) State(url string) sitecrawl.VisitState {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.entries[url]; ok {
		return s
	}
	if v.usedBefore(url) {
		return sitecrawl.VisitUsed
	}
	return 0
}

// usedBefore reports whether url was used by an earlier run. Callers hold mu.
func (v *VisitedSet) usedBefore(url string) bool {
	if v.priorFilter == nil || !v.priorFilter.Test(url) {
		return false
	}
	_, ok := v.prior[url]
	return ok
}

// Len returns the number of URLs claimed or used in this run.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// Entries returns this run's entries sorted by URL.
func (v *VisitedSet) Entries() []sitecrawl.VisitedEntry {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]sitecrawl.VisitedEntry, 0, len(v.entries))
	for url, state := range v.entries {
		out = append(out, sitecrawl.VisitedEntry{URL: url, State: state})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Save records this run's entries in store.
func (v *VisitedSet) Save(ctx context.Context, store sitecrawl.VisitedStore) error {
	if err := store.SaveVisited(ctx, v.Entries()); err != nil {
		return fmt.Errorf("save visited state: %w", err)
	}
	return nil
}

// LoadPrior loads URLs marked used by earlier runs so they are never claimed
// again. Claimed-but-unused entries are ignored; those URLs come back through
// the pending queue. Returns the number of URLs loaded.
func (v *VisitedSet) LoadPrior(ctx context.Context, store sitecrawl.VisitedStore, fpRate float64) (int, error) {
	entries, err := store.LoadVisited(ctx)
	if err != nil {
		return 0, fmt.Errorf("load visited state: %w", err)
	}

	var used []string
	prior := make(map[string]struct{})
	for _, e := range entries {
		if e.State != sitecrawl.VisitUsed {
			continue
		}
		if _, ok := prior[e.URL]; ok {
			continue
		}
		prior[e.URL] = struct{}{}
		used = append(used, e.URL)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.priorFilter = bloom.FromURLs(used, fpRate)
	v.prior = prior
	return len(used), nil
}
