package natskv

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/alphabot-ai/threadline/internal/auth"
	"github.com/alphabot-ai/threadline/internal/store"
)

type memEntry struct {
	key      string
	value    []byte
	revision uint64
}

func (e memEntry) Bucket() string                  { return "test" }
func (e memEntry) Key() string                     { return e.key }
func (e memEntry) Value() []byte                   { return e.value }
func (e memEntry) Revision() uint64                { return e.revision }
func (e memEntry) Created() time.Time              { return time.Time{} }
func (e memEntry) Delta() uint64                   { return 0 }
func (e memEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

type memKV struct {
	data     map[string][]byte
	revision uint64
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return memEntry{key: key, value: v, revision: m.revision}, nil
}

func (m *memKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.revision++
	m.data[key] = value
	return m.revision, nil
}

func (m *memKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	delete(m.data, key)
	return nil
}

func (m *memKV) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) {
	if len(m.data) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func TestCursors(t *testing.T) {
	st := New(newMemKV(), slog.Default())
	ctx := context.Background()

	all, err := st.ListCursors(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("expected empty bucket, got %v %v", all, err)
	}

	older := store.Cursor{Key: "r/golang/hot", After: "t3_xyz", Count: 25, UpdatedAt: time.Unix(100, 0).UTC()}
	newer := store.Cursor{Key: "r/go lang/new", Before: "t3_a", Count: -5, UpdatedAt: time.Unix(200, 0).UTC()}
	for _, c := range []store.Cursor{older, newer} {
		if err := st.SaveCursor(ctx, c); err != nil {
			t.Fatalf("save cursor: %v", err)
		}
	}
	if err := st.SaveToken(ctx, "default", auth.Token{AccessToken: "x", Status: auth.Authorized}); err != nil {
		t.Fatalf("save token: %v", err)
	}

	got, err := st.GetCursor(ctx, "r/golang/hot")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if got.Key != older.Key || got.After != older.After || got.Count != older.Count || !got.UpdatedAt.Equal(older.UpdatedAt) {
		t.Fatalf("got %+v, want %+v", got, older)
	}

	all, err = st.ListCursors(ctx)
	if err != nil {
		t.Fatalf("list cursors: %v", err)
	}
	if len(all) != 2 || all[0].Key != newer.Key {
		t.Fatalf("unexpected cursors: %+v", all)
	}

	if err := st.DeleteCursor(ctx, newer.Key); err != nil {
		t.Fatalf("delete cursor: %v", err)
	}
	if err := st.DeleteCursor(ctx, newer.Key); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTokens(t *testing.T) {
	st := New(newMemKV(), slog.Default())
	ctx := context.Background()

	if _, err := st.GetToken(ctx, "default"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	tok := auth.Token{AccessToken: "at", RefreshToken: "rt", Expiry: time.Unix(500, 0).UTC(), Status: auth.Authorized}
	if err := st.SaveToken(ctx, "default", tok); err != nil {
		t.Fatalf("save token: %v", err)
	}
	got, err := st.GetToken(ctx, "default")
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if got.AccessToken != "at" || got.RefreshToken != "rt" || got.Status != auth.Authorized || !got.Expiry.Equal(tok.Expiry) {
		t.Fatalf("unexpected token: %+v", got)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
