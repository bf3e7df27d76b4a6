package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/threadline/internal/auth"
	"github.com/alphabot-ai/threadline/internal/cache"
	"github.com/alphabot-ai/threadline/internal/client"
	"github.com/alphabot-ai/threadline/internal/paging"
	"github.com/alphabot-ai/threadline/internal/store"
	"github.com/alphabot-ai/threadline/internal/store/sqlite"
	"github.com/alphabot-ai/threadline/internal/tree"
)

type fakeFetcher struct {
	mu       sync.Mutex
	listing  func(path string, q url.Values) ([]byte, error)
	thread   func(article string, q url.Values) ([]byte, error)
	more     func(ctx context.Context, link string, children []string) ([]byte, error)
	info     func(ctx context.Context, names []string) ([]byte, error)
	refresh  func(tok auth.Token) (auth.Token, error)
	token    auth.Token
	infoHits int
	moreHits [][]string
}

func (f *fakeFetcher) Listing(_ context.Context, path string, q url.Values) ([]byte, error) {
	return f.listing(path, q)
}

func (f *fakeFetcher) Thread(_ context.Context, article string, q url.Values) ([]byte, error) {
	return f.thread(article, q)
}

func (f *fakeFetcher) MoreChildren(ctx context.Context, link string, children []string, _ string) ([]byte, error) {
	f.mu.Lock()
	f.moreHits = append(f.moreHits, children)
	f.mu.Unlock()
	return f.more(ctx, link, children)
}

func (f *fakeFetcher) Info(ctx context.Context, names ...string) ([]byte, error) {
	f.mu.Lock()
	f.infoHits++
	f.mu.Unlock()
	return f.info(ctx, names)
}

func (f *fakeFetcher) SetToken(tok auth.Token) {
	f.mu.Lock()
	f.token = tok
	f.mu.Unlock()
}

func (f *fakeFetcher) currentToken() auth.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeFetcher) Refresh(_ context.Context, tok auth.Token) (auth.Token, error) {
	return f.refresh(tok)
}

func commentJSON(id, parent string, depth int, replies ...string) string {
	r := `""`
	if len(replies) > 0 {
		r = `{"kind":"Listing","data":{"children":[` + strings.Join(replies, ",") + `]}}`
	}
	return fmt.Sprintf(`{"kind":"t1","data":{"id":%q,"parent_id":%q,"depth":%d,"body":"body of %s","replies":%s}}`, id, parent, depth, id, r)
}

func moreJSON(id, parent string, depth int, children ...string) string {
	return fmt.Sprintf(`{"kind":"more","data":{"id":%q,"parent_id":%q,"depth":%d,"count":%d,"children":["%s"]}}`,
		id, parent, depth, len(children), strings.Join(children, `","`))
}

func threadJSON(comments ...string) []byte {
	return []byte(`[{"kind":"Listing","data":{"children":[{"kind":"t3","data":{"id":"l","title":"T"}}]}},` +
		`{"kind":"Listing","data":{"children":[` + strings.Join(comments, ",") + `]}}]`)
}

func newSession(t *testing.T, f *fakeFetcher, opts Options) *Session {
	t.Helper()
	if opts.Caches == (cache.Capacities{}) {
		opts.Caches = cache.DefaultCapacities()
	}
	s, err := New(f, nil, opts, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitEvent(t *testing.T, s *Session, typ EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-s.Events():
			require.True(t, ok, "events closed while waiting for %s", typ)
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func fullnames(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Fullname
	}
	return out
}

func TestOrphanParentIsFetchedAndReconciled(t *testing.T) {
	f := &fakeFetcher{
		thread: func(article string, _ url.Values) ([]byte, error) {
			require.Equal(t, "l", article)
			return threadJSON(commentJSON("a", "t3_l", 0), commentJSON("x", "t1_p", 1)), nil
		},
		info: func(_ context.Context, names []string) ([]byte, error) {
			require.Equal(t, []string{"t1_p"}, names)
			return []byte(`{"kind":"Listing","data":{"children":[` + commentJSON("p", "t3_l", 0) + `]}}`), nil
		},
	}
	s := newSession(t, f, Options{})
	ctx := context.Background()

	link, rows, err := s.OpenThread(ctx, "l")
	require.NoError(t, err)
	require.Equal(t, "t3_l", link.Fullname())
	require.Equal(t, []string{"t1_a", "t1_x"}, fullnames(rows))
	require.True(t, rows[1].Orphan)

	e := waitEvent(t, s, CommentLoaded)
	require.Equal(t, "t1_p", e.Fullname)

	rows, err = s.Rows(ctx)
	require.NoError(t, err)
	require.False(t, rows[1].Orphan)
	require.Equal(t, 1, f.infoHits)

	cached, ok, err := s.Link(ctx, "t3_l")
	require.NoError(t, err)
	require.True(t, ok)
	require.Same(t, link, cached)
}

func TestLoadMoreRequestsChunks(t *testing.T) {
	f := &fakeFetcher{
		thread: func(string, url.Values) ([]byte, error) {
			return threadJSON(commentJSON("p", "t3_l", 0, moreJSON("m", "t1_p", 1, "x", "y", "z"))), nil
		},
		more: func(_ context.Context, link string, children []string) ([]byte, error) {
			require.Equal(t, "t3_l", link)
			things := make([]string, len(children))
			for i, id := range children {
				things[i] = commentJSON(id, "t1_p", 1)
			}
			return []byte(`{"json":{"errors":[],"data":{"things":[` + strings.Join(things, ",") + `]}}}`), nil
		},
	}
	s := newSession(t, f, Options{MoreChunk: 2, Tree: tree.Options{AutoExpandDepth: 1}})
	ctx := context.Background()

	_, rows, err := s.OpenThread(ctx, "l")
	require.NoError(t, err)
	require.Equal(t, []string{"t1_p", "t1_m"}, fullnames(rows))
	require.Equal(t, 3, rows[1].Count)

	require.ErrorIs(t, s.LoadMore(ctx, 0), ErrNotMore)
	require.NoError(t, s.LoadMore(ctx, 1))

	e := waitEvent(t, s, MoreResolved)
	require.False(t, e.Stale)
	require.Equal(t, 1, e.Position)
	require.Equal(t, 3, e.Count)

	rows, err = s.Rows(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"t1_p", "t1_x", "t1_y", "t1_z"}, fullnames(rows))
	require.ElementsMatch(t, [][]string{{"x", "y"}, {"z"}}, f.moreHits)

	rows, err = s.Toggle(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"t1_p"}, fullnames(rows))
}

func TestLoadMoreWithoutThread(t *testing.T) {
	s := newSession(t, &fakeFetcher{}, Options{})
	require.ErrorIs(t, s.LoadMore(context.Background(), 0), ErrNoThread)
}

func TestListingPagesAndPersistsCursor(t *testing.T) {
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	defer st.Close()

	var queries []url.Values
	f := &fakeFetcher{
		listing: func(path string, q url.Values) ([]byte, error) {
			require.Equal(t, "/r/golang/hot", path)
			queries = append(queries, q)
			if q.Get("after") == "" {
				return []byte(`{"kind":"Listing","data":{"after":"t3_b","dist":2,"children":[{"kind":"t3","data":{"id":"a"}},{"kind":"t3","data":{"id":"b"}}]}}`), nil
			}
			return []byte(`{"kind":"Listing","data":{"after":null,"dist":1,"children":[{"kind":"t3","data":{"id":"c"}}]}}`), nil
		},
	}
	opts := Options{Caches: cache.DefaultCapacities(), PageLimit: 2}
	s, err := New(f, st, opts, nil)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	links, err := s.LoadListing(ctx, "/r/golang/hot", paging.Forward)
	require.NoError(t, err)
	require.Len(t, links, 2)
	require.Equal(t, "2", queries[0].Get("limit"))

	links, err = s.LoadListing(ctx, "/r/golang/hot", paging.Forward)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, "t3_b", queries[1].Get("after"))
	require.Equal(t, "2", queries[1].Get("count"))

	_, err = s.LoadListing(ctx, "/r/golang/hot", paging.Forward)
	require.ErrorIs(t, err, ErrExhausted)

	tr, err := s.Tracker(ctx, "/r/golang/hot")
	require.NoError(t, err)
	require.Equal(t, 3, tr.Count)

	other, err := New(f, st, opts, nil)
	require.NoError(t, err)
	defer other.Close()
	restored, err := other.RestoreListing(ctx, "/r/golang/hot")
	require.NoError(t, err)
	require.Equal(t, paging.Tracker{Count: 3, Loaded: true}, restored)

	require.NoError(t, other.ResetListing(ctx, "/r/golang/hot"))
	restored, err = other.RestoreListing(ctx, "/r/golang/hot")
	require.NoError(t, err)
	require.False(t, restored.Loaded)
}

func TestConcurrentListingLoadsShareOnePage(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		hits int
	)
	f := &fakeFetcher{
		listing: func(path string, q url.Values) ([]byte, error) {
			mu.Lock()
			hits++
			first := hits == 1
			mu.Unlock()
			if first {
				close(started)
				<-release
			}
			return []byte(`{"kind":"Listing","data":{"after":"t3_b","dist":2,"children":[{"kind":"t3","data":{"id":"a"}},{"kind":"t3","data":{"id":"b"}}]}}`), nil
		},
	}
	s := newSession(t, f, Options{PageLimit: 2})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]string, 2)
	errs := make([]error, 2)
	load := func(i int) {
		defer wg.Done()
		links, err := s.LoadListing(ctx, "/r/golang/hot", paging.Forward)
		errs[i] = err
		for _, l := range links {
			results[i] = append(results[i], l.Fullname())
		}
	}
	wg.Add(2)
	go load(0)
	<-started
	go load(1)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, results[0], results[1])
	mu.Lock()
	require.Equal(t, 1, hits)
	mu.Unlock()

	tr, err := s.Tracker(ctx, "/r/golang/hot")
	require.NoError(t, err)
	require.Equal(t, 2, tr.Count)
}

type slowCursorStore struct {
	store.Store
	saving  chan struct{}
	release chan struct{}
}

func (s *slowCursorStore) SaveCursor(ctx context.Context, c store.Cursor) error {
	close(s.saving)
	<-s.release
	return nil
}

func TestCursorSaveDoesNotBlockLoop(t *testing.T) {
	f := &fakeFetcher{
		listing: func(path string, q url.Values) ([]byte, error) {
			return []byte(`{"kind":"Listing","data":{"after":"t3_b","dist":1,"children":[{"kind":"t3","data":{"id":"a"}}]}}`), nil
		},
	}
	st := &slowCursorStore{saving: make(chan struct{}), release: make(chan struct{})}
	s, err := New(f, st, Options{Caches: cache.DefaultCapacities()}, nil)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.LoadListing(ctx, "/r/golang/hot", paging.Forward)
		done <- err
	}()
	<-st.saving

	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	tr, err := s.Tracker(tctx, "/r/golang/hot")
	require.NoError(t, err)
	require.Equal(t, "t3_b", tr.After)

	close(st.release)
	require.NoError(t, <-done)
}

func TestRefreshOnUnauthorized(t *testing.T) {
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	defer st.Close()

	f := &fakeFetcher{}
	f.listing = func(string, url.Values) ([]byte, error) {
		if f.currentToken().AccessToken != "fresh" {
			return nil, &client.StatusError{Code: 401}
		}
		return []byte(`{"kind":"Listing","data":{"children":[]}}`), nil
	}
	f.refresh = func(tok auth.Token) (auth.Token, error) {
		require.Equal(t, "rt", tok.RefreshToken)
		return auth.Token{AccessToken: "fresh", RefreshToken: "rt", Status: auth.Authorized, Expiry: time.Now().Add(time.Hour)}, nil
	}

	s, err := New(f, st, Options{Caches: cache.DefaultCapacities()}, nil)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Authenticate(ctx, auth.Token{AccessToken: "stale", RefreshToken: "rt", Status: auth.Authorized}))
	_, err = s.LoadListing(ctx, "/hot", paging.Forward)
	require.NoError(t, err)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "fresh", tok.AccessToken)

	stored, err := st.GetToken(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, "fresh", stored.AccessToken)

	restored, err := New(f, st, Options{Caches: cache.DefaultCapacities()}, nil)
	require.NoError(t, err)
	defer restored.Close()
	tok, err = restored.RestoreToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "fresh", tok.AccessToken)

	require.NoError(t, restored.Logout(ctx))
	_, err = restored.RestoreToken(ctx)
	require.Error(t, err)
}

func TestUnauthorizedWithoutRefreshToken(t *testing.T) {
	f := &fakeFetcher{
		listing: func(string, url.Values) ([]byte, error) {
			return nil, &client.StatusError{Code: 403}
		},
		refresh: func(auth.Token) (auth.Token, error) {
			t.Fatal("refresh must not be attempted")
			return auth.Token{}, nil
		},
	}
	s := newSession(t, f, Options{})
	_, err := s.LoadListing(context.Background(), "/hot", paging.Forward)
	require.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestCloseDropsPendingResults(t *testing.T) {
	started := make(chan struct{})
	f := &fakeFetcher{
		thread: func(string, url.Values) ([]byte, error) {
			return threadJSON(commentJSON("x", "t1_p", 1)), nil
		},
		info: func(ctx context.Context, _ []string) ([]byte, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	s, err := New(f, nil, Options{Caches: cache.DefaultCapacities()}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = s.OpenThread(ctx, "l")
	require.NoError(t, err)
	<-started

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	for e := range s.Events() {
		require.NotEqual(t, CommentLoaded, e.Type)
	}

	_, err = s.Rows(ctx)
	require.True(t, errors.Is(err, ErrClosed))
}
