// Package notify delivers lifecycle transition events to external endpoints
// with at-least-once semantics, exponential backoff, and FIFO ordering per
// principal.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"idflow/internal/domain"
)

// HTTPSink posts events as JSON to a single HTTP(S) endpoint. A 2xx
// response means delivered; anything else, including a timeout, is a
// retryable failure.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	issuer   string
	secret   []byte // when set, requests carry a short-lived HS256 bearer token
}

// NewHTTPSink creates a sink for the given endpoint URL. signingSecret may
// be empty to send unauthenticated requests.
func NewHTTPSink(endpoint, issuer, signingSecret string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &HTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		issuer:   issuer,
	}
	if signingSecret != "" {
		s.secret = []byte(signingSecret)
	}
	return s
}

// Endpoint returns the sink's target URL.
func (s *HTTPSink) Endpoint() string { return s.endpoint }

// Deliver posts one event. The event ID doubles as the token's jti so the
// receiver can deduplicate at-least-once redeliveries.
func (s *HTTPSink) Deliver(ctx context.Context, event domain.NotificationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if s.secret != nil {
		token, err := s.mintToken(event.ID)
		if err != nil {
			return fmt.Errorf("sign delivery token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", s.endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint %s returned %d", s.endpoint, resp.StatusCode)
	}
	return nil
}

func (s *HTTPSink) mintToken(eventID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		ID:        eventID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
