// Package natskv persists tokens and listing cursors in a JetStream key-value
// bucket.
package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	libnats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/alphabot-ai/threadline/internal/auth"
	"github.com/alphabot-ai/threadline/internal/store"
)

const (
	tokenPrefix  = "token."
	cursorPrefix = "cursor."
)

// KeyValue is the subset of jetstream.KeyValue the store uses.
type KeyValue interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
	Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error)
}

type Store struct {
	kv     KeyValue
	conn   *libnats.Conn
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to url and creates the bucket if it does not exist.
func Open(ctx context.Context, url, bucket string, logger *slog.Logger) (*Store, error) {
	nc, err := libnats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "threadline tokens and listing cursors",
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("key value %s: %w", bucket, err)
	}
	logger.Info("KeyValue created or updated", "bucket", bucket)
	return &Store{kv: kv, conn: nc, logger: logger}, nil
}

// New wraps an existing bucket.
func New(kv KeyValue, logger *slog.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

func (s *Store) SaveToken(ctx context.Context, account string, token auth.Token) error {
	return s.put(ctx, tokenPrefix+encodeKey(account), token)
}

func (s *Store) GetToken(ctx context.Context, account string) (auth.Token, error) {
	var t auth.Token
	err := s.get(ctx, tokenPrefix+encodeKey(account), &t)
	return t, err
}

func (s *Store) DeleteToken(ctx context.Context, account string) error {
	return s.delete(ctx, tokenPrefix+encodeKey(account))
}

func (s *Store) SaveCursor(ctx context.Context, c store.Cursor) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	return s.put(ctx, cursorPrefix+encodeKey(c.Key), c)
}

func (s *Store) GetCursor(ctx context.Context, key string) (store.Cursor, error) {
	var c store.Cursor
	err := s.get(ctx, cursorPrefix+encodeKey(key), &c)
	return c, err
}

func (s *Store) DeleteCursor(ctx context.Context, key string) error {
	return s.delete(ctx, cursorPrefix+encodeKey(key))
}

func (s *Store) ListCursors(ctx context.Context) ([]store.Cursor, error) {
	keys, err := s.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cursors []store.Cursor
	for _, k := range keys {
		if !strings.HasPrefix(k, cursorPrefix) {
			continue
		}
		var c store.Cursor
		if err := s.get(ctx, k, &c); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		cursors = append(cursors, c)
	}
	sort.Slice(cursors, func(i, j int) bool {
		if !cursors[i].UpdatedAt.Equal(cursors[j].UpdatedAt) {
			return cursors[i].UpdatedAt.After(cursors[j].UpdatedAt)
		}
		return cursors[i].Key < cursors[j].Key
	})
	return cursors, nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to store key %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(entry.Value(), v); err != nil {
		return fmt.Errorf("decode key %s: %w", key, err)
	}
	return nil
}

// delete reports ErrNotFound for absent keys, which the bucket itself would
// accept silently.
func (s *Store) delete(ctx context.Context, key string) error {
	if _, err := s.kv.Get(ctx, key); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return store.ErrNotFound
		}
		return err
	}
	return s.kv.Delete(ctx, key)
}

// encodeKey maps an arbitrary listing key onto the bucket's key alphabet.
func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}
