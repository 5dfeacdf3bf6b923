package meli

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated: no access token held; the operator must run the
	// OAuth flow before any marketplace call.
	ErrNotAuthenticated = errors.New("no access token available, authenticate first")

	// ErrInvalidState: OAuth callback state does not match the last issued one.
	ErrInvalidState = errors.New("invalid state parameter")

	// ErrNoRefreshToken: refresh requested but the credential has no
	// refresh_token.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrAuthenticationFailed: a 401 survived the single refresh-and-replay
	// attempt; re-authentication is required.
	ErrAuthenticationFailed = errors.New("authentication failed, please re-authenticate")

	// ErrNotConfigured: the product has no completed MercadoLibre
	// configuration.
	ErrNotConfigured = errors.New("producto no configurado para MercadoLibre")

	// ErrAlreadyMigrated: the product was already submitted; re-submission is
	// rejected before any network call.
	ErrAlreadyMigrated = errors.New("producto ya migrado")
)

// APIError is any non-2xx marketplace response that is not handled by the
// 401 refresh-replay. The body is kept verbatim for the caller.
type APIError struct {
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512]
	}
	return fmt.Sprintf("marketplace returned %d: %s", e.Status, body)
}
