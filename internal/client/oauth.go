package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alphabot-ai/threadline/internal/auth"
)

const (
	accessTokenPath = "/api/v1/access_token"
	challengePath   = "/api/auth/challenge"
	verifyPath      = "/api/auth/verify"

	grantCode      = "authorization_code"
	grantRefresh   = "refresh_token"
	grantInstalled = "https://oauth.reddit.com/grants/installed_client"
)

// ExchangeCode trades an access code from a code-flow redirect for a token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (auth.Token, error) {
	return c.exchange(ctx, map[string]string{
		"grant_type":   grantCode,
		"code":         code,
		"redirect_uri": c.cfg.RedirectURI,
	}, func(body []byte, now time.Time) auth.Token {
		return auth.ParseExchange(body, now)
	})
}

// Refresh renews tok with its refresh token. The refresh token is kept when
// the server does not rotate it.
func (c *Client) Refresh(ctx context.Context, tok auth.Token) (auth.Token, error) {
	if tok.RefreshToken == "" {
		return tok, fmt.Errorf("%w: no refresh token", ErrTokenDenied)
	}
	return c.exchange(ctx, map[string]string{
		"grant_type":    grantRefresh,
		"refresh_token": tok.RefreshToken,
	}, tok.Refreshed)
}

// InstalledClient requests an application-only token for deviceID.
func (c *Client) InstalledClient(ctx context.Context, deviceID string) (auth.Token, error) {
	if deviceID == "" {
		deviceID = auth.DoNotTrack
	}
	return c.exchange(ctx, map[string]string{
		"grant_type": grantInstalled,
		"device_id":  deviceID,
	}, func(body []byte, now time.Time) auth.Token {
		return auth.ParseExchange(body, now)
	})
}

// exchange posts a grant to the token endpoint. Error bodies are parsed like
// successful ones so the returned token carries the terminal status.
func (c *Client) exchange(ctx context.Context, form map[string]string, parse func([]byte, time.Time) auth.Token) (auth.Token, error) {
	if err := c.limiter.Wait(ctx, authKey, c.cfg.RequestsPerMinute, time.Minute); err != nil {
		return auth.Token{}, err
	}
	res, err := c.auth.R().WithContext(ctx).
		SetBasicAuth(c.cfg.ClientID, "").
		SetFormData(form).
		Post(accessTokenPath)
	if err != nil {
		return auth.Token{}, fmt.Errorf("%s grant: %w", form["grant_type"], err)
	}
	raw := res.Bytes()
	if res.IsError() && len(raw) == 0 {
		return auth.Token{}, &StatusError{Code: res.StatusCode()}
	}

	tok := parse(raw, c.now())
	if tok.Status.IsError() {
		c.logger.Warn("token request rejected", "grant", form["grant_type"], "status", tok.Status, "code", res.StatusCode())
		return tok, fmt.Errorf("%w: %s", ErrTokenDenied, tok.Status)
	}
	c.SetToken(tok)
	return tok, nil
}

// Login authenticates a bot account by signing a server challenge with its
// registered key.
func (c *Client) Login(ctx context.Context, signer auth.Signer) (auth.Token, error) {
	challenge, err := c.challenge(ctx, signer.Alg())
	if err != nil {
		return auth.Token{}, fmt.Errorf("get challenge: %w", err)
	}
	signature, err := signer.Sign(challenge)
	if err != nil {
		return auth.Token{}, fmt.Errorf("sign challenge: %w", err)
	}

	type verified struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   string `json:"expires_at"`
		Error       string `json:"error"`
	}
	res, err := c.api.R().WithContext(ctx).
		SetBody(map[string]string{
			"alg":        signer.Alg(),
			"public_key": signer.PublicKey(),
			"challenge":  challenge,
			"signature":  signature,
		}).
		SetResult(&verified{}).
		Post(verifyPath)
	if err != nil {
		return auth.Token{}, err
	}
	if res.IsError() {
		return auth.Token{}, &StatusError{Code: res.StatusCode(), Body: res.String()}
	}

	v := res.Result().(*verified)
	if v.Error != "" || v.AccessToken == "" {
		return auth.Token{}, fmt.Errorf("%w: %s", ErrTokenDenied, v.Error)
	}
	tok := auth.Token{AccessToken: v.AccessToken, TokenType: "bearer", Status: auth.Authorized}
	if tok.Expiry, err = time.Parse(time.RFC3339, v.ExpiresAt); err != nil {
		tok.Expiry, tok.Status = c.now(), auth.InvalidExpiry
		return tok, fmt.Errorf("%w: %s", ErrTokenDenied, tok.Status)
	}
	c.SetToken(tok)
	return tok, nil
}

func (c *Client) challenge(ctx context.Context, alg string) (string, error) {
	type challenged struct {
		Challenge string `json:"challenge"`
		Error     string `json:"error"`
	}
	res, err := c.api.R().WithContext(ctx).
		SetBody(map[string]string{"alg": alg}).
		SetResult(&challenged{}).
		Post(challengePath)
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", &StatusError{Code: res.StatusCode(), Body: res.String()}
	}
	ch := res.Result().(*challenged)
	if ch.Error != "" {
		return "", errors.New(ch.Error)
	}
	return ch.Challenge, nil
}
