package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		base, path, want string
		wantErr          bool
	}{
		{"localhost:8090", "/api/webhook", "http://localhost:8090/api/webhook", false},
		{"https://relay.example.com/x?y=1", "/healthz", "https://relay.example.com/healthz", false},
		{"", "/", "", true},
		{"ftp://relay", "/", "", true},
		{"http://relay", "no-slash", "", true},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.base, tt.path)
		if tt.wantErr {
			assert.Error(t, err, tt.base)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestProcessMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/process_message", r.URL.Path)
		assert.Equal(t, "bakerelay-cli/0.1.0", r.Header.Get("User-Agent"))
		var req MessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Asha", req.Name)
		_, _ = w.Write([]byte(`{"status":"Order identified, flavor options sent"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	out, err := c.ProcessMessage(context.Background(), MessageRequest{PhoneNumber: "+91", Name: "Asha", Message: "cake"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"status\": \"Order identified, flavor options sent\"\n}", out)
}

func TestProcessInvoiceMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "baker-1", r.FormValue("user_id"))
		assert.Equal(t, "pay this", r.FormValue("text"))
		f, hdr, err := r.FormFile("document")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "inv.pdf", hdr.Filename)
		assert.Equal(t, "application/pdf", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "%PDF-1.4", string(data))
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = c.ProcessInvoice(context.Background(), InvoiceRequest{
		UserID: "baker-1", Text: "pay this", Filename: "/tmp/inv.pdf", Document: []byte("%PDF-1.4"),
	})
	require.NoError(t, err)
}

func TestWebhookHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "123", r.Header.Get("x-webhook-timestamp"))
		assert.Equal(t, "sig", r.Header.Get("x-webhook-signature"))
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid signature"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = c.Webhook(context.Background(), []byte(`{}`), "123", "sig")

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Contains(t, httpErr.Error(), "Invalid signature")
}
