package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/alphabot-ai/threadline/internal/auth"
	"github.com/alphabot-ai/threadline/internal/client"
	"github.com/alphabot-ai/threadline/internal/store"
)

const refreshKey = "token.refresh"

// Authenticate installs tok for subsequent requests and persists it.
func (s *Session) Authenticate(ctx context.Context, tok auth.Token) error {
	if err := s.call(ctx, func() { s.install(tok) }); err != nil {
		return err
	}
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveToken(ctx, s.opts.Account, tok); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// RestoreToken installs the persisted token of the session's account.
func (s *Session) RestoreToken(ctx context.Context) (auth.Token, error) {
	if s.store == nil {
		return auth.Token{}, store.ErrNotFound
	}
	tok, err := s.store.GetToken(ctx, s.opts.Account)
	if err != nil {
		return tok, err
	}
	return tok, s.call(ctx, func() { s.install(tok) })
}

// Logout drops the token from the session and the store.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.call(ctx, func() { s.install(auth.Token{}) }); err != nil {
		return err
	}
	if s.store == nil {
		return nil
	}
	if err := s.store.DeleteToken(ctx, s.opts.Account); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

func (s *Session) Token(ctx context.Context) (auth.Token, error) {
	var tok auth.Token
	err := s.call(ctx, func() { tok = s.token })
	return tok, err
}

// install is called on the loop.
func (s *Session) install(tok auth.Token) {
	s.token = tok
	if ts, ok := s.fetcher.(TokenSetter); ok {
		ts.SetToken(tok)
	}
}

// fetch runs do and, when the API rejects the token and the fetcher can
// refresh it, refreshes once and retries. Concurrent refreshes are
// collapsed into one.
func (s *Session) fetch(ctx context.Context, do func(context.Context) ([]byte, error)) ([]byte, error) {
	body, err := do(ctx)
	if err == nil || !errors.Is(err, client.ErrUnauthorized) {
		return body, err
	}
	r, ok := s.fetcher.(Refresher)
	if !ok {
		return nil, err
	}

	_, rerr, _ := s.flight.Do(refreshKey, func() (any, error) {
		tok, err := s.Token(ctx)
		if err != nil {
			return nil, err
		}
		if tok.RefreshToken == "" {
			return nil, fmt.Errorf("%w: token cannot be refreshed", client.ErrUnauthorized)
		}
		fresh, err := r.Refresh(ctx, tok)
		if err != nil {
			return nil, err
		}
		s.logger.Info("token refreshed", "expiry", fresh.Expiry)
		return nil, s.Authenticate(ctx, fresh)
	})
	if rerr != nil {
		return nil, errors.Join(err, rerr)
	}
	return do(ctx)
}
