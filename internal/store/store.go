package store

import (
	"context"
	"errors"
	"time"

	"github.com/alphabot-ai/threadline/internal/auth"
)

var ErrNotFound = errors.New("not found")

// Cursor is the persisted form of a pagination tracker.
type Cursor struct {
	Key       string    `json:"key"`
	Before    string    `json:"before,omitempty"`
	After     string    `json:"after,omitempty"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store interface {
	TokenStore
	CursorStore
	Close() error
}

type TokenStore interface {
	SaveToken(ctx context.Context, account string, token auth.Token) error
	GetToken(ctx context.Context, account string) (auth.Token, error)
	DeleteToken(ctx context.Context, account string) error
}

type CursorStore interface {
	SaveCursor(ctx context.Context, cursor Cursor) error
	GetCursor(ctx context.Context, key string) (Cursor, error)
	DeleteCursor(ctx context.Context, key string) error
	ListCursors(ctx context.Context) ([]Cursor, error)
}
