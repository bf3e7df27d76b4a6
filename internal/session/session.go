// Package session serializes every mutation of one browsing session's
// caches, pagination trackers, comment tree and token.
//
// A single goroutine owns that state. Public methods hand closures to it and
// wait for them to run. Network fetches run on their own goroutines and feed
// their results back through the same loop, so a result that arrives after
// Close is dropped and one whose target is gone has no effect.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/alphabot-ai/threadline/internal/auth"
	"github.com/alphabot-ai/threadline/internal/cache"
	"github.com/alphabot-ai/threadline/internal/decode"
	"github.com/alphabot-ai/threadline/internal/model"
	"github.com/alphabot-ai/threadline/internal/paging"
	"github.com/alphabot-ai/threadline/internal/store"
	"github.com/alphabot-ai/threadline/internal/tree"
)

var (
	ErrClosed    = errors.New("session closed")
	ErrExhausted = errors.New("no more pages")
	ErrNoThread  = errors.New("no thread open")
	ErrNotMore   = errors.New("not a placeholder")
)

// Fetcher returns raw API bodies.
type Fetcher interface {
	Listing(ctx context.Context, path string, q url.Values) ([]byte, error)
	Thread(ctx context.Context, article string, q url.Values) ([]byte, error)
	MoreChildren(ctx context.Context, linkFullname string, children []string, sort string) ([]byte, error)
	Info(ctx context.Context, fullnames ...string) ([]byte, error)
}

// TokenSetter is implemented by fetchers that send a bearer token.
type TokenSetter interface {
	SetToken(auth.Token)
}

// Refresher is implemented by fetchers that can renew an expired token.
type Refresher interface {
	Refresh(ctx context.Context, tok auth.Token) (auth.Token, error)
}

type Options struct {
	Caches    cache.Capacities
	Tree      tree.Options
	Decode    decode.Options
	PageLimit int
	// MoreChunk bounds the ids sent in one morechildren request.
	MoreChunk int
	// Sort is passed to thread and morechildren requests when set.
	Sort string
	// Account names the persisted token.
	Account string
}

type Session struct {
	id      string
	opts    Options
	fetcher Fetcher
	store   store.Store
	decoder *decode.Decoder
	logger  *slog.Logger

	// Owned by the loop.
	caches *cache.Set
	pages  *paging.Set
	tree   *tree.Tree
	thread *model.Thread
	token  auth.Token

	flight singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cmds    chan func()
	events  chan Event
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New starts a session. st may be nil, in which case nothing is persisted.
func New(fetcher Fetcher, st store.Store, opts Options, logger *slog.Logger) (*Session, error) {
	if opts.PageLimit <= 0 {
		opts.PageLimit = 25
	}
	if opts.MoreChunk <= 0 {
		opts.MoreChunk = 100
	}
	if opts.Caches == (cache.Capacities{}) {
		opts.Caches = cache.DefaultCapacities()
	}
	if opts.Account == "" {
		opts.Account = "default"
	}
	if logger == nil {
		logger = slog.Default()
	}

	caches, err := cache.NewSet(opts.Caches)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger = logger.With("component", "session.Session", "session", id)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      id,
		opts:    opts,
		fetcher: fetcher,
		store:   st,
		decoder: decode.New(opts.Decode, logger),
		logger:  logger,
		caches:  caches,
		pages:   paging.NewSet(),
		ctx:     ctx,
		cancel:  cancel,
		cmds:    make(chan func(), 64),
		events:  make(chan Event, 256),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.tree = tree.New(caches.Comments, tree.RequesterFunc(s.requestComment), opts.Tree, logger)

	go s.run()
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Events delivers notifications about results that arrived in the
// background. Events are dropped when the buffer is full. The channel is
// closed by Close.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.stopCh:
			return
		case cmd := <-s.cmds:
			cmd()
		}
	}
}

// Close stops the loop and waits for in-flight fetches to give up.
func (s *Session) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.cancel()
		close(s.stopCh)
		<-s.stopped
		s.wg.Wait()
		close(s.events)
	}
	<-s.stopped
	return nil
}

// call runs fn on the loop and waits for it.
func (s *Session) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}
	select {
	case s.cmds <- cmd:
	case <-s.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrClosed
	}
}

// post queues fn on the loop without waiting. It is dropped after Close.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.stopCh:
	}
}

// spawn runs fn on a tracked goroutine with the session context. It is
// called on the loop only, so it never races with the Wait in Close.
func (s *Session) spawn(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// emit is called on the loop only.
func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.logger.Debug("event dropped", "type", e.Type, "fullname", e.Fullname)
	}
}

type EventType string

const (
	CommentLoaded EventType = "comment.loaded"
	MoreResolved  EventType = "more.resolved"
	FetchFailed   EventType = "fetch.failed"
)

type Event struct {
	Type     EventType
	Fullname string
	// Position and Count describe rows inserted into the flat view.
	Position int
	Count    int
	// Stale is set when the target was no longer displayed.
	Stale bool
	Err   error
}
