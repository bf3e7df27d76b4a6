// Package paging turns the cursors of listing responses into the parameters
// of the next request.
package paging

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/alphabot-ai/threadline/internal/model"
	"github.com/alphabot-ai/threadline/internal/store"
)

type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Tracker is the cursor state of one listing. Before and After always come
// from the last applied page; Count accumulates across pages.
type Tracker struct {
	Before string
	After  string
	Count  int
	Loaded bool
}

func (t *Tracker) UpdateForward(p model.Page) {
	t.Before, t.After = p.Before, p.After
	t.Count += p.Dist
	t.Loaded = true
}

func (t *Tracker) UpdateBackward(p model.Page) {
	t.Before, t.After = p.Before, p.After
	t.Count -= p.Dist
	t.Loaded = true
}

// HasMore reports whether a page exists in the given direction. A tracker
// that has seen no page yet always has a first page to load.
func (t *Tracker) HasMore(dir Direction) bool {
	if !t.Loaded {
		return dir == Forward
	}
	if dir == Backward {
		return t.Before != ""
	}
	return t.After != ""
}

// Next returns the query parameters for the next page in dir. limit <= 0
// leaves the server default.
func (t *Tracker) Next(dir Direction, limit int) url.Values {
	q := url.Values{}
	switch dir {
	case Forward:
		if t.After != "" {
			q.Set("after", t.After)
		}
	case Backward:
		if t.Before != "" {
			q.Set("before", t.Before)
		}
	}
	if t.Loaded {
		q.Set("count", strconv.Itoa(t.Count))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

func (t *Tracker) Reset() {
	*t = Tracker{}
}

// Set holds one tracker per listing key, e.g. "r/golang/hot".
type Set struct {
	trackers map[string]*Tracker
}

func NewSet() *Set {
	return &Set{trackers: make(map[string]*Tracker)}
}

// Tracker returns the tracker for key, creating an empty one on first use.
func (s *Set) Tracker(key string) *Tracker {
	t, ok := s.trackers[key]
	if !ok {
		t = &Tracker{}
		s.trackers[key] = t
	}
	return t
}

func (s *Set) Lookup(key string) (*Tracker, bool) {
	t, ok := s.trackers[key]
	return t, ok
}

func (s *Set) Discard(key string) {
	delete(s.trackers, key)
}

func (s *Set) Keys() []string {
	keys := make([]string, 0, len(s.trackers))
	for k := range s.trackers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Cursor snapshots the tracker for key in its persisted form.
func (s *Set) Cursor(key string) (store.Cursor, bool) {
	t, ok := s.trackers[key]
	if !ok {
		return store.Cursor{}, false
	}
	return store.Cursor{
		Key:       key,
		Before:    t.Before,
		After:     t.After,
		Count:     t.Count,
		UpdatedAt: time.Now().UTC(),
	}, true
}

// Restore loads the tracker for key from cs. A key that was never saved
// leaves a fresh tracker and is not an error.
func (s *Set) Restore(ctx context.Context, cs store.CursorStore, key string) (*Tracker, error) {
	c, err := cs.GetCursor(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return s.Tracker(key), nil
	}
	if err != nil {
		return nil, fmt.Errorf("restore tracker %q: %w", key, err)
	}
	t := &Tracker{Before: c.Before, After: c.After, Count: c.Count, Loaded: true}
	s.trackers[key] = t
	return t, nil
}

// Forget drops the tracker for key and its persisted cursor.
func (s *Set) Forget(ctx context.Context, cs store.CursorStore, key string) error {
	s.Discard(key)
	if err := cs.DeleteCursor(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("forget tracker %q: %w", key, err)
	}
	return nil
}
