package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuthSession is the persisted result of a sign-in: the bearer token,
// the refresh token that renews it, and the identity they belong to.
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
}

// Auth holds the current user session. It is constructed once, injected
// where needed, and read through accessors; there is no package-level
// session state.
type Auth struct {
	mu        sync.RWMutex
	baseURL   string
	apiKey    string
	tokenPath string
	session   *AuthSession
	http      *http.Client

	refreshMu sync.Mutex
}

// NewAuth creates the auth service. Any previously persisted session at
// tokenPath is loaded eagerly so the client starts signed in.
func NewAuth(baseURL, apiKey, tokenPath string) *Auth {
	a := &Auth{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		tokenPath: tokenPath,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
	if data, err := os.ReadFile(tokenPath); err == nil {
		var s AuthSession
		if json.Unmarshal(data, &s) == nil && s.AccessToken != "" {
			a.session = &s
		}
	}
	return a
}

// tokenResponse is the token endpoint's answer for both grant types.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (a *Auth) token(ctx context.Context, grantType string, body map[string]string) (*tokenResponse, error) {
	raw, _ := json.Marshal(body)
	u := a.baseURL + "/auth/v1/token?grant_type=" + grantType
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var payload tokenResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &payload, nil
}

// SignIn exchanges email/password for a session token and persists it.
func (a *Auth) SignIn(ctx context.Context, email, password string) error {
	payload, err := a.token(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	if payload.User.ID == "" {
		return fmt.Errorf("token response missing user id")
	}

	s := &AuthSession{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		UserID:       payload.User.ID,
		Email:        payload.User.Email,
	}
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	return a.persist(s)
}

// Refresh renews the access token with the persisted refresh token and
// stores the rotated pair. Concurrent callers are serialized; whoever
// runs second finds a fresh token and renews again harmlessly.
func (a *Auth) Refresh(ctx context.Context) error {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	a.mu.RLock()
	var cur AuthSession
	if a.session != nil {
		cur = *a.session
	}
	a.mu.RUnlock()
	if cur.RefreshToken == "" {
		return fmt.Errorf("no refresh token for session")
	}

	payload, err := a.token(ctx, "refresh_token", map[string]string{"refresh_token": cur.RefreshToken})
	if err != nil {
		return err
	}

	s := &AuthSession{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		UserID:       cur.UserID,
		Email:        cur.Email,
	}
	if payload.User.ID != "" {
		s.UserID = payload.User.ID
		s.Email = payload.User.Email
	}
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	return a.persist(s)
}

// SignOut drops the in-memory session and removes the persisted token.
func (a *Auth) SignOut() error {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()
	if err := os.Remove(a.tokenPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SignedIn reports whether a session token is present.
func (a *Auth) SignedIn() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session != nil
}

// UserID returns the current user identifier, or empty when signed out.
func (a *Auth) UserID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return ""
	}
	return a.session.UserID
}

// AccessToken returns the current bearer token, or empty when signed out.
func (a *Auth) AccessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return ""
	}
	return a.session.AccessToken
}

// Email returns the signed-in account email, or empty when signed out.
func (a *Auth) Email() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return ""
	}
	return a.session.Email
}

func (a *Auth) persist(s *AuthSession) error {
	if err := os.MkdirAll(filepath.Dir(a.tokenPath), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(a.tokenPath, data, 0600)
}
