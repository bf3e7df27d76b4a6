package session

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alphabot-ai/threadline/internal/model"
	"github.com/alphabot-ai/threadline/internal/paging"
	"github.com/alphabot-ai/threadline/internal/store"
)

// LoadListing fetches the next page of the listing at path in dir and
// advances its tracker. Concurrent loads of the same page share one fetch.
// The returned links are shared with the cache and must not be modified.
func (s *Session) LoadListing(ctx context.Context, path string, dir paging.Direction) ([]*model.Link, error) {
	v, err, _ := s.flight.Do("listing:"+dir.String()+":"+path, func() (any, error) {
		return s.loadListing(ctx, path, dir)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.Link), nil
}

func (s *Session) loadListing(ctx context.Context, path string, dir paging.Direction) ([]*model.Link, error) {
	var (
		q    url.Values
		more bool
	)
	if err := s.call(ctx, func() {
		tr := s.pages.Tracker(path)
		more = tr.HasMore(dir)
		q = tr.Next(dir, s.opts.PageLimit)
	}); err != nil {
		return nil, err
	}
	if !more {
		return nil, ErrExhausted
	}

	body, err := s.fetch(ctx, func(ctx context.Context) ([]byte, error) {
		return s.fetcher.Listing(ctx, path, q)
	})
	if err != nil {
		return nil, err
	}
	listing, err := s.decoder.LinkListing(body)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}

	var cursor store.Cursor
	if err := s.call(ctx, func() {
		for _, l := range listing.Children {
			s.caches.Links.Put(l)
		}
		tr := s.pages.Tracker(path)
		if dir == paging.Backward {
			tr.UpdateBackward(listing.Page())
		} else {
			tr.UpdateForward(listing.Page())
		}
		cursor, _ = s.pages.Cursor(path)
	}); err != nil {
		return nil, err
	}
	if s.store != nil {
		if err := s.store.SaveCursor(ctx, cursor); err != nil {
			s.logger.Warn("failed to persist cursor", "listing", path, "error", err)
		}
	}
	return listing.Children, nil
}

// RestoreListing loads the persisted cursor of path, if any.
func (s *Session) RestoreListing(ctx context.Context, path string) (paging.Tracker, error) {
	var (
		tr  paging.Tracker
		err error
	)
	if s.store == nil {
		return tr, nil
	}
	if cerr := s.call(ctx, func() {
		var restored *paging.Tracker
		if restored, err = s.pages.Restore(ctx, s.store, path); err == nil {
			tr = *restored
		}
	}); cerr != nil {
		return tr, cerr
	}
	return tr, err
}

// ResetListing forgets the position in the listing at path.
func (s *Session) ResetListing(ctx context.Context, path string) error {
	var err error
	if cerr := s.call(ctx, func() {
		if s.store != nil {
			err = s.pages.Forget(ctx, s.store, path)
			return
		}
		s.pages.Discard(path)
	}); cerr != nil {
		return cerr
	}
	return err
}

// Tracker returns a copy of the tracker of path.
func (s *Session) Tracker(ctx context.Context, path string) (paging.Tracker, error) {
	var tr paging.Tracker
	err := s.call(ctx, func() {
		if t, ok := s.pages.Lookup(path); ok {
			tr = *t
		}
	})
	return tr, err
}

// Link returns a cached link by fullname.
func (s *Session) Link(ctx context.Context, fullname string) (*model.Link, bool, error) {
	var (
		l  *model.Link
		ok bool
	)
	err := s.call(ctx, func() {
		l, ok = s.caches.Links.Get(fullname)
	})
	return l, ok, err
}
