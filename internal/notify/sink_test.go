package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idflow/internal/domain"
)

func TestHTTPSink_DeliversJSON(t *testing.T) {
	var got domain.NotificationEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "org-a", "", 5*time.Second)
	err := sink.Deliver(context.Background(), event("e1", "u1"))
	require.NoError(t, err)
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, "u1", got.PrincipalID)
}

func TestHTTPSink_Non2xxIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "org-a", "", 5*time.Second)
	err := sink.Deliver(context.Background(), event("e1", "u1"))
	assert.Error(t, err)
}

func TestHTTPSink_UnreachableEndpoint(t *testing.T) {
	sink := NewHTTPSink("http://127.0.0.1:1/hook", "org-a", "", 200*time.Millisecond)
	err := sink.Deliver(context.Background(), event("e1", "u1"))
	assert.Error(t, err)
}

func TestHTTPSink_SignsDeliveryToken(t *testing.T) {
	const secret = "webhook-secret"

	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "org-a", secret, 5*time.Second)
	require.NoError(t, sink.Deliver(context.Background(), event("e7", "u1")))

	require.True(t, len(auth) > len("Bearer "), "missing bearer token")
	tokenString := auth[len("Bearer "):]

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "org-a", claims.Issuer)
	assert.Equal(t, "e7", claims.ID)
}

func TestHTTPSink_NoSecretNoAuthHeader(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "org-a", "", 5*time.Second)
	require.NoError(t, sink.Deliver(context.Background(), event("e1", "u1")))
	assert.Empty(t, auth)
}
