package meli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// memStore is an in-memory CredentialStore for tests.
type memStore struct {
	data []byte
}

func (m *memStore) Load() ([]byte, error) { return m.data, nil }
func (m *memStore) Save(b []byte) error   { m.data = b; return nil }
func (m *memStore) Clear() error          { m.data = nil; return nil }

func seededStore(t *testing.T, cred Credential) *memStore {
	t.Helper()
	data, err := json.Marshal(cred)
	if err != nil {
		t.Fatal(err)
	}
	return &memStore{data: data}
}

// validCred returns a credential with plenty of validity left.
func validCred() Credential {
	return Credential{
		AccessToken:  "test-token",
		RefreshToken: "test-refresh",
		ExpiresAt:    time.Now().Add(6 * time.Hour).UnixMilli(),
		UserID:       42,
		Scope:        "offline_access read write",
	}
}

// newTestClient spins up a server for handler and returns a client whose
// token store and API base both point at it.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := seededStore(t, validCred())
	tokens := NewTokenStore(Config{
		AppID:     "app",
		SecretKey: "secret",
		AuthURL:   srv.URL,
		APIURL:    srv.URL,
	}, store)
	tokens.SetHTTPClient(srv.Client())

	client := NewClient(tokens, srv.URL)
	client.HTTP = srv.Client()
	return client, srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func tokenResponse(w http.ResponseWriter, accessToken string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    21600,
		"refresh_token": "rotated-refresh",
		"scope":         "offline_access read write",
		"user_id":       42,
	})
}
