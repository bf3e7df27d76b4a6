// Package auth tracks the authorization state of a session. It parses
// redirect URLs and token exchange bodies into a Token; it performs no I/O.
package auth

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mailru/easyjson/jlexer"
)

type Status int

const (
	Unauthenticated Status = iota
	AccessCode
	Authorized
	Expired
	Denied
	UnsupportedResponseType
	InvalidScope
	InvalidRequest
	InvalidGrantType
	InvalidGrant
	InvalidExpiry
	InvalidState
	UnknownError
)

var statusNames = [...]string{
	Unauthenticated:         "unauthenticated",
	AccessCode:              "access_code",
	Authorized:              "authorized",
	Expired:                 "expired",
	Denied:                  "denied",
	UnsupportedResponseType: "unsupported_response_type",
	InvalidScope:            "invalid_scope",
	InvalidRequest:          "invalid_request",
	InvalidGrantType:        "invalid_grant_type",
	InvalidGrant:            "invalid_grant",
	InvalidExpiry:           "invalid_expiry",
	InvalidState:            "invalid_state",
	UnknownError:            "unknown_error",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
	return statusNames[s]
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, bool) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), true
		}
	}
	return Unauthenticated, false
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, ok := ParseStatus(string(text))
	if !ok {
		return fmt.Errorf("unknown token status %q", text)
	}
	*s = parsed
	return nil
}

// IsError reports a terminal failure status.
func (s Status) IsError() bool {
	return s >= Denied
}

// statusForError maps an OAuth error code to its status.
func statusForError(code string) Status {
	switch code {
	case "access_denied":
		return Denied
	case "unsupported_response_type":
		return UnsupportedResponseType
	case "invalid_scope":
		return InvalidScope
	case "invalid_request":
		return InvalidRequest
	case "unsupported_grant_type":
		return InvalidGrantType
	case "invalid_grant":
		return InvalidGrant
	default:
		return UnknownError
	}
}

// Flow selects where a redirect carries its parameters.
type Flow int

const (
	// ImplicitFlow returns the token in the URL fragment.
	ImplicitFlow Flow = iota
	// CodeFlow returns a one-time code in the query string.
	CodeFlow
)

// DoNotTrack is the device id installed clients may send instead of a
// generated one.
const DoNotTrack = "DO_NOT_TRACK_THIS_DEVICE"

type Token struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Code         string    `json:"code,omitempty"`
	Scope        []string  `json:"scope,omitempty"`
	DeviceID     string    `json:"device_id,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Status       Status    `json:"status"`
}

// IsExpired reports whether the token has no expiry or now is past it.
func (t Token) IsExpired(now time.Time) bool {
	return t.Expiry.IsZero() || !now.Before(t.Expiry)
}

func (t Token) IsRefreshable(now time.Time) bool {
	return t.IsExpired(now) && t.RefreshToken != ""
}

// State returns the status at now; an authorized token past its expiry is
// Expired.
func (t Token) State(now time.Time) Status {
	if t.Status == Authorized && t.IsExpired(now) {
		return Expired
	}
	return t.Status
}

// Header returns the Authorization header value.
func (t Token) Header() string {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return tokenType + " " + t.AccessToken
}

// NewState returns a fresh nonce for the state parameter of an authorization
// request.
func NewState() string {
	return uuid.NewString()
}

type AuthorizeParams struct {
	ClientID    string
	RedirectURI string
	State       string
	Flow        Flow
	Scopes      []string
	// Permanent requests a refresh token; only valid with CodeFlow.
	Permanent bool
}

// AuthorizeURL builds the URL the user is sent to in order to grant access.
func AuthorizeURL(base string, p AuthorizeParams) string {
	q := url.Values{}
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("state", p.State)
	q.Set("scope", strings.Join(p.Scopes, " "))
	if p.Flow == CodeFlow {
		q.Set("response_type", "code")
		duration := "temporary"
		if p.Permanent {
			duration = "permanent"
		}
		q.Set("duration", duration)
	} else {
		q.Set("response_type", "token")
	}
	return strings.TrimRight(base, "/") + "/api/v1/authorize?" + q.Encode()
}

// ParseRedirect reads the parameters the authorization server appended to
// the redirect URI. A state that does not match expectedState always yields
// InvalidState.
func ParseRedirect(rawURL, expectedState string, flow Flow, now time.Time) Token {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Token{Status: InvalidRequest}
	}
	params := u.Query()
	if flow == ImplicitFlow {
		if params, err = url.ParseQuery(u.EscapedFragment()); err != nil {
			return Token{Status: InvalidRequest}
		}
	}

	if expectedState == "" || params.Get("state") != expectedState {
		return Token{Status: InvalidState}
	}
	if code := params.Get("error"); code != "" {
		return Token{Status: statusForError(code)}
	}

	if flow == CodeFlow {
		code := params.Get("code")
		if code == "" {
			return Token{Status: UnknownError}
		}
		return Token{Code: code, Status: AccessCode}
	}

	tok := Token{
		AccessToken: params.Get("access_token"),
		TokenType:   params.Get("token_type"),
		Scope:       splitScope(params.Get("scope")),
	}
	if tok.AccessToken == "" {
		return Token{Status: UnknownError}
	}
	tok.Expiry, tok.Status = expiry(params.Get("expires_in"), now)
	return tok
}

// ParseExchange reads the JSON body of a token endpoint response.
func ParseExchange(body []byte, now time.Time) Token {
	in := &jlexer.Lexer{Data: body}

	var (
		tok       Token
		expiresIn string
		errCode   string
		hasError  bool
	)
	if in.IsNull() || !in.IsDelim('{') {
		return Token{Status: UnknownError}
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		switch key {
		case "access_token":
			tok.AccessToken = text(in.Interface())
		case "refresh_token":
			tok.RefreshToken = text(in.Interface())
		case "token_type":
			tok.TokenType = text(in.Interface())
		case "scope":
			tok.Scope = splitScope(text(in.Interface()))
		case "device_id":
			tok.DeviceID = text(in.Interface())
		case "expires_in":
			expiresIn = text(in.Interface())
		case "error":
			v := in.Interface()
			hasError = v != nil
			errCode = text(v)
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	in.Consumed()
	if in.Error() != nil {
		return Token{Status: UnknownError}
	}

	if hasError {
		return Token{Status: statusForError(errCode)}
	}
	if tok.AccessToken == "" && !validDeviceID(tok.DeviceID) {
		return Token{Status: UnknownError}
	}
	tok.Expiry, tok.Status = expiry(expiresIn, now)
	return tok
}

// Refreshed applies the response of a refresh_token grant. The server may
// omit the refresh token, in which case the current one is kept.
func (t Token) Refreshed(body []byte, now time.Time) Token {
	next := ParseExchange(body, now)
	if next.Status.IsError() {
		return next
	}
	if next.RefreshToken == "" {
		next.RefreshToken = t.RefreshToken
	}
	if len(next.Scope) == 0 {
		next.Scope = t.Scope
	}
	return next
}

func expiry(expiresIn string, now time.Time) (time.Time, Status) {
	secs, err := strconv.ParseInt(strings.TrimSpace(expiresIn), 10, 64)
	if err != nil || secs < 0 {
		return now, InvalidExpiry
	}
	return now.Add(time.Duration(secs) * time.Second), Authorized
}

func validDeviceID(id string) bool {
	if id == DoNotTrack {
		return true
	}
	if len(id) < 20 || len(id) > 30 {
		return false
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

func splitScope(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}
