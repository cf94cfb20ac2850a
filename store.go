package sitecrawl

import "context"

// VisitState is the dedup state of a URL.
type VisitState uint8

// URL states. Absence from the set means unclaimed.
const (
	VisitClaimed VisitState = iota + 1
	VisitUsed
)

func (s VisitState) String() string {
	switch s {
	case VisitClaimed:
		return "claimed"
	case VisitUsed:
		return "used"
	default:
		return "unclaimed"
	}
}

// ParseVisitState parses the String form of a VisitState.
func ParseVisitState(s string) (VisitState, error) {
	switch s {
	case "claimed":
		return VisitClaimed, nil
	case "used":
		return VisitUsed, nil
	default:
		return 0, Errorf(EINVALID, "unknown visit state %q", s)
	}
}

// MarshalText encodes the state by name.
func (s VisitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *VisitState) UnmarshalText(b []byte) error {
	v, err := ParseVisitState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// VisitedEntry is one persisted visited-set record.
type VisitedEntry struct {
	URL   string     `json:"url"`
	State VisitState `json:"state"`
}

// QueueStore persists the pending queue between runs.
type QueueStore interface {
	// SaveQueue replaces the stored queue with reqs, preserving order.
	SaveQueue(ctx context.Context, reqs []QueuedRequest) error

	// LoadQueue returns the stored queue in order.
	// Returns an empty slice when nothing is stored.
	LoadQueue(ctx context.Context) ([]QueuedRequest, error)
}

// VisitedStore persists visited-set entries between runs.
type VisitedStore interface {
	// SaveVisited merges entries into the stored set. An entry replaces any
	// stored entry for the same URL.
	SaveVisited(ctx context.Context, entries []VisitedEntry) error

	// LoadVisited returns every stored entry.
	LoadVisited(ctx context.Context) ([]VisitedEntry, error)
}

// StateStore persists all resumable crawl state.
type StateStore interface {
	QueueStore
	VisitedStore

	// Reset removes all stored state.
	Reset(ctx context.Context) error
}
