// Package captcha guards registration against scripted sign-ups.
//
// turnstile.go -- Cloudflare Turnstile verifier.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTurnstileURL is Cloudflare's siteverify endpoint.
const DefaultTurnstileURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// ErrMissingToken is returned when the client sent no captcha token at all.
var ErrMissingToken = errors.New("captcha token missing")

// Verifier checks a client-supplied captcha token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// Disabled accepts every token. Used when TURNSTILE_SECRET is unset.
type Disabled struct{}

func (Disabled) Verify(context.Context, string, string) error { return nil }

// TurnstileVerifier verifies tokens against the siteverify API.
type TurnstileVerifier struct {
	secret     string
	endpoint   string
	httpClient *http.Client
}

// NewTurnstileVerifier returns a TurnstileVerifier using the given secret key.
// Uses a 5s timeout on the outbound HTTP client. Empty endpoint means DefaultTurnstileURL.
func NewTurnstileVerifier(secret, endpoint string) *TurnstileVerifier {
	if endpoint == "" {
		endpoint = DefaultTurnstileURL
	}
	return &TurnstileVerifier{
		secret:     secret,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Verify checks the token against the siteverify endpoint.
// Returns nil on success; non-nil if the token is missing, rejected, or any network/decode error occurs.
func (v *TurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	if token == "" {
		return ErrMissingToken
	}

	body := url.Values{
		"secret":   {v.secret},
		"response": {token},
	}
	if remoteIP != "" {
		body.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(body.Encode()))
	if err != nil {
		return fmt.Errorf("turnstile: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("turnstile: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("turnstile: unexpected status %d", resp.StatusCode)
	}

	var result struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("turnstile: decoding response: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("turnstile rejected token: %v", result.ErrorCodes)
	}
	return nil
}
