package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fwojciec/sitecrawl"
)

var _ sitecrawl.StateStore = (*StateStore)(nil)

// StateStore implements sitecrawl.StateStore using SQLite.
type StateStore struct {
	db *DB
}

// NewStateStore creates a new StateStore.
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db}
}

// SaveQueue replaces the stored queue in a single transaction.
func (s *StateStore) SaveQueue(ctx context.Context, reqs []sitecrawl.QueuedRequest) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM pending_queue"); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO pending_queue (position, url, options) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, req := range reqs {
		opts, err := json.Marshal(req.Options)
		if err != nil {
			return fmt.Errorf("failed to encode options for %s: %w", req.URL, err)
		}
		if _, err := stmt.ExecContext(ctx, i, req.URL, string(opts)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadQueue returns the stored queue ordered by position.
func (s *StateStore) LoadQueue(ctx context.Context) ([]sitecrawl.QueuedRequest, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT url, options FROM pending_queue ORDER BY position ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs := []sitecrawl.QueuedRequest{}
	for rows.Next() {
		var req sitecrawl.QueuedRequest
		var opts string
		if err := rows.Scan(&req.URL, &opts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(opts), &req.Options); err != nil {
			return nil, sitecrawl.Errorf(sitecrawl.EINVALID, "queued request %s: %v", req.URL, err)
		}
		reqs = append(reqs, req)
	}

	return reqs, rows.Err()
}

// SaveVisited upserts entries by URL.
func (s *StateStore) SaveVisited(ctx context.Context, entries []sitecrawl.VisitedEntry) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO visited (url, state) VALUES (?, ?)
		ON CONFLICT(url) DO UPDATE SET state = excluded.state
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.URL, e.State.String()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadVisited returns every stored entry ordered by URL.
func (s *StateStore) LoadVisited(ctx context.Context) ([]sitecrawl.VisitedEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT url, state FROM visited ORDER BY url ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []sitecrawl.VisitedEntry{}
	for rows.Next() {
		var e sitecrawl.VisitedEntry
		var state string
		if err := rows.Scan(&e.URL, &state); err != nil {
			return nil, err
		}
		if e.State, err = sitecrawl.ParseVisitState(state); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Reset deletes the stored queue and visited set. Saved pages are kept.
func (s *StateStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"pending_queue", "visited"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}

	return tx.Commit()
}
