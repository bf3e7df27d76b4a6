package session

import (
	"context"
	"fmt"
	"net/url"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/alphabot-ai/threadline/internal/model"
	"github.com/alphabot-ai/threadline/internal/tree"
)

const maxParallelChunks = 4

// Row is a copy of one line of the comment view, safe to read outside the
// session.
type Row struct {
	Kind     model.Kind
	Fullname string
	Author   string
	Body     string
	Score    int
	Depth    int
	// Count is the number of hidden comments behind a placeholder.
	Count    int
	Expanded bool
	Orphan   bool
	Stub     bool
}

// OpenThread fetches a link with its comments and replaces the tree.
func (s *Session) OpenThread(ctx context.Context, article string) (*model.Link, []Row, error) {
	q := url.Values{}
	if s.opts.Sort != "" {
		q.Set("sort", s.opts.Sort)
	}
	body, err := s.fetch(ctx, func(ctx context.Context) ([]byte, error) {
		return s.fetcher.Thread(ctx, article, q)
	})
	if err != nil {
		return nil, nil, err
	}
	thread, err := s.decoder.Thread(body)
	if err != nil {
		return nil, nil, fmt.Errorf("thread %s: %w", article, err)
	}

	var rows []Row
	err = s.call(ctx, func() {
		if thread.Link != nil {
			s.caches.Links.Put(thread.Link)
		}
		s.thread = thread
		s.tree.Load(thread)
		rows = s.rows()
	})
	return thread.Link, rows, err
}

func (s *Session) Rows(ctx context.Context) ([]Row, error) {
	var rows []Row
	err := s.call(ctx, func() { rows = s.rows() })
	return rows, err
}

// Toggle expands or collapses the comment at pos and returns the new view.
func (s *Session) Toggle(ctx context.Context, pos int) ([]Row, error) {
	return s.mutate(ctx, func() { s.tree.Toggle(pos) })
}

func (s *Session) Expand(ctx context.Context, pos int) ([]Row, error) {
	return s.mutate(ctx, func() { s.tree.Expand(pos) })
}

func (s *Session) Collapse(ctx context.Context, pos int) ([]Row, error) {
	return s.mutate(ctx, func() { s.tree.Collapse(pos) })
}

func (s *Session) Remove(ctx context.Context, pos int) ([]Row, error) {
	return s.mutate(ctx, func() { s.tree.Remove(pos) })
}

func (s *Session) mutate(ctx context.Context, fn func()) ([]Row, error) {
	var rows []Row
	err := s.call(ctx, func() {
		fn()
		rows = s.rows()
	})
	return rows, err
}

// LoadMore starts fetching the comments behind the placeholder at pos. The
// result is applied in the background and announced with a MoreResolved
// event.
func (s *Session) LoadMore(ctx context.Context, pos int) error {
	var err error
	if cerr := s.call(ctx, func() {
		m, ok := s.tree.More(pos)
		switch {
		case s.thread == nil || s.thread.Link == nil:
			err = ErrNoThread
		case !ok:
			err = fmt.Errorf("row %d: %w", pos, ErrNotMore)
		default:
			s.resolveMore(m, s.thread.Link)
		}
	}); cerr != nil {
		return cerr
	}
	return err
}

// resolveMore is called on the loop.
func (s *Session) resolveMore(m *model.More, link *model.Link) {
	children := append([]string(nil), m.Children...)
	continuation, parent := m.IsContinuation(), m.ParentID
	article, linkFullname := link.LocalID(), link.Fullname()
	s.spawn(func(ctx context.Context) {
		var (
			fetched []model.Reply
			err     error
		)
		if continuation {
			fetched, err = s.continuation(ctx, article, parent)
		} else {
			fetched, err = s.moreChildren(ctx, linkFullname, children)
		}
		s.post(func() {
			if err != nil {
				s.logger.Warn("failed to load more comments", "more", m.Fullname(), "error", err)
				s.emit(Event{Type: FetchFailed, Fullname: m.Fullname(), Err: err})
				return
			}
			res, ok := s.tree.ResolveMore(m, fetched)
			s.emit(Event{Type: MoreResolved, Fullname: m.Fullname(), Position: res.Position, Count: res.Inserted, Stale: !ok})
		})
	})
}

// moreChildren requests ids in chunks and returns the replies in the order
// the chunks were sent.
func (s *Session) moreChildren(ctx context.Context, linkFullname string, ids []string) ([]model.Reply, error) {
	chunks := lo.Chunk(ids, s.opts.MoreChunk)
	results := make([][]model.Reply, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelChunks)
	for i, chunk := range chunks {
		g.Go(func() error {
			body, err := s.fetch(gctx, func(ctx context.Context) ([]byte, error) {
				return s.fetcher.MoreChildren(ctx, linkFullname, chunk, s.opts.Sort)
			})
			if err != nil {
				return err
			}
			replies, err := s.decoder.MoreChildren(body)
			if err != nil {
				return err
			}
			results[i] = replies
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lo.Flatten(results), nil
}

// continuation loads the subtree of parent for a "continue this thread"
// marker and returns the parent's replies.
func (s *Session) continuation(ctx context.Context, article, parent string) ([]model.Reply, error) {
	_, id, _ := model.SplitFullname(parent)
	q := url.Values{}
	q.Set("comment", id)
	if s.opts.Sort != "" {
		q.Set("sort", s.opts.Sort)
	}
	body, err := s.fetch(ctx, func(ctx context.Context) ([]byte, error) {
		return s.fetcher.Thread(ctx, article, q)
	})
	if err != nil {
		return nil, err
	}
	thread, err := s.decoder.Thread(body)
	if err != nil {
		return nil, err
	}
	for _, r := range thread.Replies {
		focus, ok := r.(*model.Comment)
		if !ok || focus.Fullname() != parent {
			continue
		}
		replies := append([]model.Reply(nil), focus.Replies...)
		for _, child := range replies {
			focus.Detach(child)
		}
		return replies, nil
	}
	return nil, nil
}

// requestComment is the tree's requester. It runs on the loop.
func (s *Session) requestComment(fullname string) {
	s.spawn(func(ctx context.Context) {
		v, err, _ := s.flight.Do(fullname, func() (any, error) {
			body, err := s.fetch(ctx, func(ctx context.Context) ([]byte, error) {
				return s.fetcher.Info(ctx, fullname)
			})
			if err != nil {
				return nil, err
			}
			return s.decoder.Info(body)
		})
		s.post(func() {
			if err != nil {
				s.logger.Warn("failed to load parent comment", "fullname", fullname, "error", err)
				s.emit(Event{Type: FetchFailed, Fullname: fullname, Err: err})
				return
			}
			for _, t := range v.(*model.Listing[model.Thing]).Children {
				if c, ok := t.(*model.Comment); ok {
					s.tree.Reconcile(c)
				} else {
					s.caches.Put(t)
				}
			}
			s.emit(Event{Type: CommentLoaded, Fullname: fullname})
		})
	})
}

// rows is called on the loop.
func (s *Session) rows() []Row {
	return lo.Map(s.tree.Rows(), func(r tree.Row, _ int) Row {
		row := Row{
			Kind:     r.Reply.Kind(),
			Fullname: r.Reply.Fullname(),
			Depth:    r.Depth,
			Orphan:   r.Orphan,
		}
		switch v := r.Reply.(type) {
		case *model.Comment:
			row.Author = v.Author
			row.Body = v.Body
			row.Score = v.Score
			row.Expanded = v.Expanded
			row.Stub = v.Stub
		case *model.More:
			row.Count = v.Count
		}
		return row
	})
}
