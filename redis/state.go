// Package redis stores the crawl state of a single crawler process in Redis.
// Keys are prefixed per domain. One crawler at a time may use a prefix:
// SaveQueue replaces the stored queue.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fwojciec/sitecrawl"
	"github.com/redis/go-redis/v9"
)

var _ sitecrawl.StateStore = (*StateStore)(nil)

// StateStore implements sitecrawl.StateStore. The queue is a list of JSON
// requests at <prefix>queue and the visited set a hash of URL to state name
// at <prefix>visited.
type StateStore struct {
	client redis.UniversalClient
	prefix string
}

// NewStateStore connects to the Redis server at addr.
func NewStateStore(addr, prefix string) *StateStore {
	return NewStateStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}), prefix)
}

// NewStateStoreWithClient builds a StateStore over an existing client.
func NewStateStoreWithClient(client redis.UniversalClient, prefix string) *StateStore {
	return &StateStore{client: client, prefix: prefix}
}

// KeyPrefix returns the conventional key prefix for a crawled domain.
func KeyPrefix(host string) string {
	return "sitecrawl:" + host + ":"
}

// Close closes the Redis client.
func (s *StateStore) Close() error {
	return s.client.Close()
}

// Ping checks that the server is reachable.
func (s *StateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *StateStore) queueKey() string   { return s.prefix + "queue" }
func (s *StateStore) visitedKey() string { return s.prefix + "visited" }

// SaveQueue replaces the stored queue atomically.
func (s *StateStore) SaveQueue(ctx context.Context, reqs []sitecrawl.QueuedRequest) error {
	values := make([]any, 0, len(reqs))
	for _, req := range reqs {
		payload, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", req.URL, err)
		}
		values = append(values, payload)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.queueKey())
		if len(values) > 0 {
			pipe.RPush(ctx, s.queueKey(), values...)
		}
		return nil
	})
	return err
}

// LoadQueue returns the stored queue in order.
func (s *StateStore) LoadQueue(ctx context.Context) ([]sitecrawl.QueuedRequest, error) {
	vals, err := s.client.LRange(ctx, s.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	reqs := make([]sitecrawl.QueuedRequest, 0, len(vals))
	for _, val := range vals {
		var req sitecrawl.QueuedRequest
		if err := json.Unmarshal([]byte(val), &req); err != nil {
			return nil, sitecrawl.Errorf(sitecrawl.EINVALID, "corrupt queued request: %v", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// SaveVisited sets a hash field per entry, leaving other fields in place.
func (s *StateStore) SaveVisited(ctx context.Context, entries []sitecrawl.VisitedEntry) error {
	if len(entries) == 0 {
		return nil
	}

	fields := make(map[string]any, len(entries))
	for _, e := range entries {
		fields[e.URL] = e.State.String()
	}
	return s.client.HSet(ctx, s.visitedKey(), fields).Err()
}

// LoadVisited returns every stored entry ordered by URL.
func (s *StateStore) LoadVisited(ctx context.Context) ([]sitecrawl.VisitedEntry, error) {
	fields, err := s.client.HGetAll(ctx, s.visitedKey()).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]sitecrawl.VisitedEntry, 0, len(fields))
	for u, name := range fields {
		state, err := sitecrawl.ParseVisitState(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, sitecrawl.VisitedEntry{URL: u, State: state})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].URL < entries[j].URL })
	return entries, nil
}

// Reset deletes both keys.
func (s *StateStore) Reset(ctx context.Context) error {
	return s.client.Del(ctx, s.queueKey(), s.visitedKey()).Err()
}
