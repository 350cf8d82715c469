package utils

import (
	"fmt"
	"net/http"
	"time"
)

// TokenSource returns the bearer token to send with a request.
type TokenSource func() (string, error)

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
	token   TokenSource
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if t.token != nil {
		token, err := t.token()
		if err != nil {
			return nil, fmt.Errorf("bearer token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return t.base.RoundTrip(req)
}

// NewHTTPClientWithHeaders returns a client that sets the given headers on
// every request. A zero timeout disables the client timeout, which streaming
// transports need.
func NewHTTPClientWithHeaders(headers map[string]string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: headers,
		},
	}
}

// NewHTTPClientWithTokenSource returns a client that asks source for a
// bearer token before each request.
func NewHTTPClientWithTokenSource(source TokenSource, headers map[string]string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: headers,
			token:   source,
		},
	}
}
