package utils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderTransport(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewHTTPClientWithTokenSource(
		func() (string, error) { return "tok-1", nil },
		map[string]string{"x-client-id": "app", "x-empty": ""},
		time.Second,
	)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "Bearer tok-1", got.Get("Authorization"))
	assert.Equal(t, "app", got.Get("X-Client-Id"))
	assert.Empty(t, got.Values("X-Empty"))
	// the caller's request is left untouched
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestTokenSourceError(t *testing.T) {
	client := NewHTTPClientWithTokenSource(
		func() (string, error) { return "", errors.New("expired") },
		nil, time.Second,
	)
	_, err := client.Get("http://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func static(token string) TokenSource {
	return func() (string, error) { return token, nil }
}

func TestBearerTokenClient(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	resp, err := NewHTTPClientWithTokenSource(static("abc"), nil, time.Second).Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "Bearer abc", auth)

	resp, err = NewHTTPClientWithTokenSource(static(""), nil, time.Second).Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Empty(t, auth)
}
