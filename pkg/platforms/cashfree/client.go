// Package cashfree is a small client for the Cashfree Payment Links and
// Payouts APIs, plus webhook signature verification.
package cashfree

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/worldofchami/bakerelay/pkg/models"
	"github.com/worldofchami/bakerelay/pkg/utils"
)

const (
	SandboxBaseURL    = "https://sandbox.cashfree.com"
	ProductionBaseURL = "https://api.cashfree.com"

	SandboxPayoutURL    = "https://payout-gamma.cashfree.com"
	ProductionPayoutURL = "https://payout-api.cashfree.com"

	defaultAPIVersion = "2023-08-01"
	maxErrorBody      = 512
)

type Config struct {
	ClientID           string        `split_words:"true"`
	ClientSecret       string        `split_words:"true"`
	Environment        string        `default:"sandbox"`
	BaseURL            string        `split_words:"true"`
	APIVersion         string        `split_words:"true" default:"2023-08-01"`
	LinkExpiry         time.Duration `split_words:"true" default:"24h"`
	PayoutClientID     string        `split_words:"true"`
	PayoutClientSecret string        `split_words:"true"`
	PayoutBaseURL      string        `split_words:"true"`
	WebhookSecret      string        `split_words:"true"`
	Timeout            time.Duration `default:"30s"`
}

func (c Config) pgBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Environment == "production" {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

func (c Config) payoutBaseURL() string {
	if c.PayoutBaseURL != "" {
		return strings.TrimRight(c.PayoutBaseURL, "/")
	}
	if c.Environment == "production" {
		return ProductionPayoutURL
	}
	return SandboxPayoutURL
}

// APIError is a non-2xx response from Cashfree.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cashfree: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("cashfree: %d: %s", e.StatusCode, e.Body)
}

var ErrNotConfigured = errors.New("cashfree credentials are not configured")

// Client talks to the Payment Links API. Payout calls go through Payouts,
// which owns its own bearer token.
type Client struct {
	conf       Config
	httpClient *http.Client
	payouts    *Payouts
	now        func() time.Time
}

func New(conf Config) *Client {
	if conf.APIVersion == "" {
		conf.APIVersion = defaultAPIVersion
	}
	if conf.Timeout <= 0 {
		conf.Timeout = 30 * time.Second
	}
	c := &Client{
		conf: conf,
		httpClient: utils.NewHTTPClientWithHeaders(map[string]string{
			"x-client-id":     conf.ClientID,
			"x-client-secret": conf.ClientSecret,
			"x-api-version":   conf.APIVersion,
		}, conf.Timeout),
		now: time.Now,
	}
	if conf.PayoutClientID != "" && conf.PayoutClientSecret != "" {
		c.payouts = NewPayouts(conf)
	}
	return c
}

func (c *Client) IsConfigured() bool {
	return c.conf.ClientID != "" && c.conf.ClientSecret != ""
}

func (c *Client) Payouts() *Payouts {
	return c.payouts
}

type LinkRequest struct {
	Phone        string
	CustomerName string
	Amount       models.Money
	Purpose      string
}

type customerDetails struct {
	Phone string `json:"customer_phone"`
	Name  string `json:"customer_name,omitempty"`
}

type linkNotify struct {
	SendSMS   bool `json:"send_sms"`
	SendEmail bool `json:"send_email"`
}

type createLinkBody struct {
	LinkID     string          `json:"link_id"`
	Amount     float64         `json:"link_amount"`
	Currency   string          `json:"link_currency"`
	Purpose    string          `json:"link_purpose"`
	Customer   customerDetails `json:"customer_details"`
	Notify     linkNotify      `json:"link_notify"`
	ExpiryTime string          `json:"link_expiry_time,omitempty"`
}

type linkResponse struct {
	LinkID     string          `json:"link_id"`
	LinkURL    string          `json:"link_url"`
	LinkStatus string          `json:"link_status"`
	Amount     float64         `json:"link_amount"`
	Currency   string          `json:"link_currency"`
	ExpiryTime string          `json:"link_expiry_time"`
	Customer   customerDetails `json:"customer_details"`
}

func (r linkResponse) toModel() models.PaymentLink {
	return models.PaymentLink{
		ID:        r.LinkID,
		URL:       r.LinkURL,
		Status:    r.LinkStatus,
		Amount:    models.Money{Amount: r.Amount, Currency: r.Currency},
		Phone:     r.Customer.Phone,
		ExpiresAt: r.ExpiryTime,
	}
}

// CreatePaymentLink creates a payment link for the customer. The link id is
// generated locally so a retried call can be matched to the original.
func (c *Client) CreatePaymentLink(ctx context.Context, req LinkRequest) (models.PaymentLink, error) {
	if !c.IsConfigured() {
		return models.PaymentLink{}, ErrNotConfigured
	}
	if req.Phone == "" {
		return models.PaymentLink{}, errors.New("customer phone is required")
	}
	if req.Amount.Amount <= 0 {
		return models.PaymentLink{}, fmt.Errorf("amount must be positive, got %v", req.Amount.Amount)
	}
	currency := req.Amount.Currency
	if currency == "" {
		currency = "INR"
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = "Cake order"
	}

	body := createLinkBody{
		LinkID:   "link_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Amount:   req.Amount.Amount,
		Currency: currency,
		Purpose:  purpose,
		Customer: customerDetails{Phone: normalizePhone(req.Phone), Name: req.CustomerName},
	}
	if c.conf.LinkExpiry > 0 {
		body.ExpiryTime = c.now().Add(c.conf.LinkExpiry).Format(time.RFC3339)
	}

	var resp linkResponse
	if err := c.do(ctx, http.MethodPost, c.conf.pgBaseURL()+"/pg/links", body, &resp); err != nil {
		return models.PaymentLink{}, err
	}
	return resp.toModel(), nil
}

func (c *Client) GetPaymentLink(ctx context.Context, linkID string) (models.PaymentLink, error) {
	if !c.IsConfigured() {
		return models.PaymentLink{}, ErrNotConfigured
	}
	if linkID == "" {
		return models.PaymentLink{}, errors.New("link id is required")
	}
	var resp linkResponse
	if err := c.do(ctx, http.MethodGet, c.conf.pgBaseURL()+"/pg/links/"+url.PathEscape(linkID), nil, &resp); err != nil {
		return models.PaymentLink{}, err
	}
	return resp.toModel(), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	return doJSON(ctx, c.httpClient, method, endpoint, in, out)
}

func doJSON(ctx context.Context, client *http.Client, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: preview(raw)}
		var e struct {
			Code    string `json:"code"`
			SubCode string `json:"subCode"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &e) == nil {
			apiErr.Code = e.Code
			if apiErr.Code == "" {
				apiErr.Code = e.SubCode
			}
			apiErr.Message = e.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func preview(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

// normalizePhone strips the whatsapp: prefix and any leading plus sign.
func normalizePhone(phone string) string {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "whatsapp:")
	return strings.TrimPrefix(phone, "+")
}
