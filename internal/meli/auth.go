// Package meli implements the MercadoLibre listing-migration pipeline:
// OAuth token lifecycle, authenticated REST client, category prediction,
// attribute mapping, picture upload and listing submission against the
// Colombia site (MCO).
package meli

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	applog "biciadmin/internal/log"
)

const (
	SiteID     = "MCO"
	CurrencyID = "COP"

	DefaultAPIURL  = "https://api.mercadolibre.com"
	DefaultAuthURL = "https://auth.mercadolibre.com.co"

	// refresh when less than this much validity remains
	refreshWindow = 5 * time.Minute
)

// Config holds the registered application credentials. AuthURL/APIURL are
// overridable so tests can point the store at a local server.
type Config struct {
	AppID       string
	SecretKey   string
	RedirectURI string
	AuthURL     string
	APIURL      string
}

// Credential is the full OAuth credential as persisted. ExpiresAt is absolute
// unix milliseconds, always derived from issuance time + expires_in.
type Credential struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	UserID       int64  `json:"user_id,omitempty"`
}

// CredentialStore is the persistence port behind the token store. The
// credential crosses it as opaque JSON so the sqlite repo stays shape-agnostic
// and tests can substitute an in-memory implementation.
type CredentialStore interface {
	Load() ([]byte, error)
	Save([]byte) error
	Clear() error
}

// TokenInfo is the non-sensitive auth status exposed to the admin UI.
type TokenInfo struct {
	Authenticated bool   `json:"authenticated"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
	ExpiresIn     int64  `json:"expires_in,omitempty"`
	UserID        int64  `json:"user_id,omitempty"`
	Scope         string `json:"scope,omitempty"`
}

// TokenStore owns the process's single MercadoLibre credential. Exactly one
// credential is live at a time; refresh replaces it wholesale. The mutex
// guards field access only — a refresh round-trip is not serialized, so
// concurrent expiring requests may each refresh and the last write wins.
type TokenStore struct {
	oauth *oauth2.Config
	store CredentialStore
	hc    *http.Client
	now   func() time.Time

	mu           sync.Mutex
	cred         *Credential
	pendingState string
}

func NewTokenStore(cfg Config, store CredentialStore) *TokenStore {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	ts := &TokenStore{
		oauth: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.SecretKey,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL + "/authorization",
				TokenURL: apiURL + "/oauth/token",
				// MercadoLibre wants client_id/client_secret in the form body
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store: store,
		hc:    &http.Client{Timeout: 30 * time.Second},
		now:   time.Now,
	}
	ts.loadPersisted()
	return ts
}

func (t *TokenStore) loadPersisted() {
	data, err := t.store.Load()
	if err != nil {
		applog.Error(nil, "ml.auth.load", err, nil)
		return
	}
	if len(data) == 0 {
		return
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		applog.Error(nil, "ml.auth.load", err, nil)
		return
	}
	t.cred = &cred
}

// AuthorizationURL returns a fresh authorization URL and its state token.
// Only the most recently issued state is accepted by ExchangeCode.
func (t *TokenStore) AuthorizationURL() (string, string) {
	state := uuid.NewString()
	t.mu.Lock()
	t.pendingState = state
	t.mu.Unlock()
	return t.oauth.AuthCodeURL(state), state
}

// ExchangeCode trades the authorization code for a credential. The state must
// match the last issued one; on success the pending state is cleared and the
// credential persisted.
func (t *TokenStore) ExchangeCode(ctx context.Context, code, state string) (*Credential, error) {
	t.mu.Lock()
	pending := t.pendingState
	t.mu.Unlock()
	if pending == "" || pending != state {
		return nil, ErrInvalidState
	}

	tok, err := t.oauth.Exchange(t.httpCtx(ctx), code)
	if err != nil {
		return nil, err
	}
	cred := t.credentialFrom(tok)
	t.replace(cred)

	t.mu.Lock()
	t.pendingState = ""
	t.mu.Unlock()
	return cred, nil
}

// Refresh replaces the whole credential using the refresh_token grant.
func (t *TokenStore) Refresh(ctx context.Context) (*Credential, error) {
	t.mu.Lock()
	var refreshToken string
	if t.cred != nil {
		refreshToken = t.cred.RefreshToken
	}
	t.mu.Unlock()
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	// Force the refresh grant by handing oauth2 an already-expired token.
	src := t.oauth.TokenSource(t.httpCtx(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       t.now().Add(-time.Hour),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	cred := t.credentialFrom(tok)
	t.replace(cred)
	return cred, nil
}

// EnsureValid returns a usable access token, refreshing first when less than
// five minutes of validity remain.
func (t *TokenStore) EnsureValid(ctx context.Context) (string, error) {
	t.mu.Lock()
	cred := t.cred
	t.mu.Unlock()
	if cred == nil || cred.AccessToken == "" {
		return "", ErrNotAuthenticated
	}

	remaining := time.Duration(cred.ExpiresAt-t.now().UnixMilli()) * time.Millisecond
	if remaining < refreshWindow {
		applog.Info(nil, "ml.auth.refresh", map[string]any{"reason": "expiring soon"})
		refreshed, err := t.Refresh(ctx)
		if err != nil {
			return "", err
		}
		return refreshed.AccessToken, nil
	}
	return cred.AccessToken, nil
}

// Clear wipes the credential and its backing storage (logout).
func (t *TokenStore) Clear() error {
	t.mu.Lock()
	t.cred = nil
	t.mu.Unlock()
	return t.store.Clear()
}

func (t *TokenStore) IsAuthenticated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cred != nil && t.cred.AccessToken != "" && t.cred.ExpiresAt > t.now().UnixMilli()
}

// HasAccessToken reports whether any access token is held, expired or not.
// Migration preconditions use this, matching the original behavior of
// checking token presence and letting EnsureValid refresh on demand.
func (t *TokenStore) HasAccessToken() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cred != nil && t.cred.AccessToken != ""
}

func (t *TokenStore) Info() TokenInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cred == nil || t.cred.AccessToken == "" {
		return TokenInfo{Authenticated: false}
	}
	expiresIn := (t.cred.ExpiresAt - t.now().UnixMilli()) / 1000
	if expiresIn < 0 {
		expiresIn = 0
	}
	return TokenInfo{
		Authenticated: true,
		ExpiresAt:     t.cred.ExpiresAt,
		ExpiresIn:     expiresIn,
		UserID:        t.cred.UserID,
		Scope:         t.cred.Scope,
	}
}

func (t *TokenStore) credentialFrom(tok *oauth2.Token) *Credential {
	cred := &Credential{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.UnixMilli(),
	}
	if !tok.Expiry.IsZero() {
		cred.ExpiresIn = int64(tok.Expiry.Sub(t.now()).Seconds())
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		cred.Scope = scope
	}
	if uid, ok := tok.Extra("user_id").(float64); ok {
		cred.UserID = int64(uid)
	}
	return cred
}

func (t *TokenStore) replace(cred *Credential) {
	t.mu.Lock()
	t.cred = cred
	t.mu.Unlock()
	data, err := json.Marshal(cred)
	if err == nil {
		err = t.store.Save(data)
	}
	if err != nil {
		applog.Error(nil, "ml.auth.save", err, nil)
	}
}

func (t *TokenStore) httpCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, t.hc)
}

// SetHTTPClient swaps the client used for token endpoint calls (tests).
func (t *TokenStore) SetHTTPClient(hc *http.Client) { t.hc = hc }

// SetNow swaps the clock (tests).
func (t *TokenStore) SetNow(now func() time.Time) { t.now = now }
