// Package relay is an HTTP client for a running relay server.
package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

type Client struct {
	BaseURL   string
	HTTP      *http.Client
	UserAgent string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.HTTP = h
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.UserAgent = ua
		}
	}
}

// NewClient returns a client for the relay at baseURL. A base URL without a
// scheme is treated as http.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := Resolve(baseURL, "/")
	if err != nil {
		return nil, err
	}
	c := &Client{
		BaseURL: strings.TrimRight(base, "/"),
		HTTP: &http.Client{
			// agent calls can take a while
			Timeout: 2 * time.Minute,
		},
		UserAgent: "bakerelay-cli/0.1.0",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type MessageRequest struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
	Message     string `json:"message"`
}

// ProcessMessage posts a customer message and returns the formatted reply.
func (c *Client) ProcessMessage(ctx context.Context, req MessageRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return c.post(ctx, "/api/process_message", "application/json", bytes.NewReader(body), nil)
}

// Webhook posts a raw payment-provider payload. Signature headers are sent
// when signature is set.
func (c *Client) Webhook(ctx context.Context, payload []byte, timestamp, signature string) (string, error) {
	headers := map[string]string{}
	if signature != "" {
		headers["x-webhook-timestamp"] = timestamp
		headers["x-webhook-signature"] = signature
	}
	return c.post(ctx, "/api/webhook", "application/json", bytes.NewReader(payload), headers)
}

type InvoiceRequest struct {
	UserID   string
	Text     string
	Filename string
	Document []byte
}

// ProcessInvoice uploads invoice text and an optional PDF as multipart form
// data.
func (c *Client) ProcessInvoice(ctx context.Context, req InvoiceRequest) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if req.UserID != "" {
		if err := mw.WriteField("user_id", req.UserID); err != nil {
			return "", err
		}
	}
	if req.Text != "" {
		if err := mw.WriteField("text", req.Text); err != nil {
			return "", err
		}
	}
	if len(req.Document) > 0 {
		name := filepath.Base(req.Filename)
		if req.Filename == "" {
			name = "invoice.pdf"
		}
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="document"; filename=%q`, name))
		hdr.Set("Content-Type", "application/pdf")
		part, err := mw.CreatePart(hdr)
		if err != nil {
			return "", err
		}
		if _, err := part.Write(req.Document); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return c.post(ctx, "/api/process_invoice", mw.FormDataContentType(), &buf, nil)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, headers map[string]string) (string, error) {
	endpoint := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPError{
			StatusCode:        resp.StatusCode,
			Status:            resp.Status,
			URL:               endpoint,
			Body:              formatPossiblyJSON(out),
			BodyPreviewBase64: previewBase64(out, 2048),
		}
	}
	return formatPossiblyJSON(out), nil
}

// Resolve normalizes a base URL and returns a URL with the provided absolute path.
// If the base has no scheme, http:// is assumed.
func Resolve(baseURL string, absolutePath string) (string, error) {
	in := strings.TrimSpace(baseURL)
	if in == "" {
		return "", fmt.Errorf("base URL is empty")
	}
	if !strings.Contains(in, "://") {
		in = "http://" + in
	}

	u, err := url.Parse(in)
	if err != nil {
		return "", err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("unsupported URL scheme %q (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base URL (missing host): %q", baseURL)
	}
	if !strings.HasPrefix(absolutePath, "/") {
		return "", fmt.Errorf("absolutePath must start with '/': %q", absolutePath)
	}

	u.Path = absolutePath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

type HTTPError struct {
	StatusCode        int    `json:"statusCode"`
	Status            string `json:"status"`
	URL               string `json:"url"`
	Body              string `json:"body,omitempty"`
	BodyPreviewBase64 string `json:"bodyPreviewBase64,omitempty"`
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	if e.Body != "" {
		return fmt.Sprintf("http request failed: %s (%s): %s", e.Status, e.URL, e.Body)
	}
	return fmt.Sprintf("http request failed: %s (%s)", e.Status, e.URL)
}

func previewBase64(b []byte, max int) string {
	if len(b) > max {
		b = b[:max]
	}
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

func formatPossiblyJSON(b []byte) string {
	trim := strings.TrimSpace(string(b))
	if trim == "" {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(trim), &v); err == nil {
		out, err := json.MarshalIndent(v, "", "  ")
		if err == nil {
			return string(out)
		}
	}
	return trim
}
