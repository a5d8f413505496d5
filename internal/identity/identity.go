// Package identity verifies the bearer token a client presents on
// every TCP connection (spec §3, "user" handler) against an external
// identity provider, the Go-native replacement for the original
// server's direct call to Firebase's auth.verify_id_token.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"predictrix/server/internal/config"
)

// Claims is what a verified token resolves to: the fields the "user"
// handler needs to upsert the caller's row (CreateUserCommand's
// decoded_token fields, renamed from Firebase's claim names).
type Claims struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoUrl"`
}

// Verifier checks a bearer token and returns the identity it names.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// HTTPVerifier calls an external identity service over HTTP, the same
// client-construction pattern the teacher's RAGClient uses for its
// own sidecar service.
type HTTPVerifier struct {
	client *resty.Client
}

// NewHTTPVerifier builds a Verifier against cfg.Identity.URL.
func NewHTTPVerifier(cfg config.IdentityConfig) *HTTPVerifier {
	client := resty.New()
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.SetTimeout(timeout)
	client.SetBaseURL(cfg.URL)
	client.SetHeader("Content-Type", "application/json")
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)

	return &HTTPVerifier{client: client}
}

type verifyRequest struct {
	Token string `json:"token"`
}

// Verify posts the token to the identity service's /verify endpoint
// and decodes the claims it returns. A non-200 response or transport
// failure is always treated as an invalid token - the "user" handler
// replies errors.CodeTokenFail and closes the session.
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	var claims Claims
	resp, err := v.client.R().
		SetContext(ctx).
		SetBody(verifyRequest{Token: token}).
		SetResult(&claims).
		Post("/verify")
	if err != nil {
		return Claims{}, fmt.Errorf("identity: verify request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Claims{}, fmt.Errorf("identity: token rejected: status %d", resp.StatusCode())
	}
	if claims.UserID == "" {
		return Claims{}, fmt.Errorf("identity: verifier returned no uid")
	}
	return claims, nil
}
