package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabot-ai/threadline/internal/auth"
	"github.com/alphabot-ai/threadline/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: tokens and listing cursors
	`
CREATE TABLE IF NOT EXISTS oauth_tokens (
	account TEXT PRIMARY KEY,
	access_token TEXT,
	refresh_token TEXT,
	token_type TEXT,
	scope TEXT,
	device_id TEXT,
	expires_at INTEGER,
	status TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cursors (
	key TEXT PRIMARY KEY,
	before TEXT,
	after TEXT,
	count INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cursors_updated_at ON cursors(updated_at DESC);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) SaveToken(ctx context.Context, account string, token auth.Token) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO oauth_tokens (account, access_token, refresh_token, token_type, scope, device_id, expires_at, status, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(account) DO UPDATE SET
	access_token = excluded.access_token,
	refresh_token = excluded.refresh_token,
	token_type = excluded.token_type,
	scope = excluded.scope,
	device_id = excluded.device_id,
	expires_at = excluded.expires_at,
	status = excluded.status,
	updated_at = excluded.updated_at
`, account, nullIfEmpty(token.AccessToken), nullIfEmpty(token.RefreshToken), nullIfEmpty(token.TokenType),
		nullIfEmpty(strings.Join(token.Scope, " ")), nullIfEmpty(token.DeviceID), nullableTime(token.Expiry),
		token.Status.String(), time.Now().Unix())
	return err
}

func (s *Store) GetToken(ctx context.Context, account string) (auth.Token, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT access_token, refresh_token, token_type, scope, device_id, expires_at, status
FROM oauth_tokens
WHERE account = ?
`, account)
	return scanToken(row)
}

func (s *Store) DeleteToken(ctx context.Context, account string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE account = ?`, account)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) SaveCursor(ctx context.Context, c store.Cursor) error {
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cursors (key, before, after, count, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	before = excluded.before,
	after = excluded.after,
	count = excluded.count,
	updated_at = excluded.updated_at
`, c.Key, nullIfEmpty(c.Before), nullIfEmpty(c.After), c.Count, updated.Unix())
	return err
}

func (s *Store) GetCursor(ctx context.Context, key string) (store.Cursor, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT key, before, after, count, updated_at
FROM cursors
WHERE key = ?
`, key)
	return scanCursor(row)
}

func (s *Store) DeleteCursor(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cursors WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) ListCursors(ctx context.Context) ([]store.Cursor, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT key, before, after, count, updated_at
FROM cursors
ORDER BY updated_at DESC, key
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cursors []store.Cursor
	for rows.Next() {
		c, err := scanCursor(rows)
		if err != nil {
			return nil, err
		}
		cursors = append(cursors, c)
	}
	return cursors, rows.Err()
}

func scanToken(scanner interface{ Scan(dest ...any) error }) (auth.Token, error) {
	var t auth.Token
	var access, refresh, tokenType, scope, deviceID sql.NullString
	var expires sql.NullInt64
	var status string
	if err := scanner.Scan(&access, &refresh, &tokenType, &scope, &deviceID, &expires, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Token{}, store.ErrNotFound
		}
		return auth.Token{}, err
	}
	t.AccessToken = access.String
	t.RefreshToken = refresh.String
	t.TokenType = tokenType.String
	t.DeviceID = deviceID.String
	if scope.Valid && scope.String != "" {
		t.Scope = strings.Fields(scope.String)
	}
	if expires.Valid {
		t.Expiry = time.Unix(expires.Int64, 0).UTC()
	}
	if err := t.Status.UnmarshalText([]byte(status)); err != nil {
		return auth.Token{}, err
	}
	return t, nil
}

func scanCursor(scanner interface{ Scan(dest ...any) error }) (store.Cursor, error) {
	var c store.Cursor
	var before, after sql.NullString
	var updated int64
	if err := scanner.Scan(&c.Key, &before, &after, &c.Count, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Cursor{}, store.ErrNotFound
		}
		return store.Cursor{}, err
	}
	c.Before = before.String
	c.After = after.String
	c.UpdatedAt = time.Unix(updated, 0).UTC()
	return c, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
