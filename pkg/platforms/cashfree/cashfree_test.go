package cashfree

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldofchami/bakerelay/pkg/models"
)

func TestCreatePaymentLink(t *testing.T) {
	var got createLinkBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pg/links", r.URL.Path)
		assert.Equal(t, "app-id", r.Header.Get("x-client-id"))
		assert.Equal(t, "app-secret", r.Header.Get("x-client-secret"))
		assert.Equal(t, "2023-08-01", r.Header.Get("x-api-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"link_id":          got.LinkID,
			"link_url":         "https://payments.cashfree.com/links/abc",
			"link_status":      "ACTIVE",
			"link_amount":      got.Amount,
			"link_currency":    got.Currency,
			"link_expiry_time": got.ExpiryTime,
			"customer_details": got.Customer,
		})
	}))
	defer srv.Close()

	c := New(Config{ClientID: "app-id", ClientSecret: "app-secret", BaseURL: srv.URL, LinkExpiry: time.Hour})
	c.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	link, err := c.CreatePaymentLink(context.Background(), LinkRequest{
		Phone:        "whatsapp:+919800000000",
		CustomerName: "Asha",
		Amount:       models.Money{Amount: 500},
		Purpose:      "Chocolate cake",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got.LinkID, "link_"))
	assert.Equal(t, "919800000000", got.Customer.Phone)
	assert.Equal(t, "INR", got.Currency)
	assert.Equal(t, "2025-03-01T11:00:00Z", got.ExpiryTime)

	assert.Equal(t, got.LinkID, link.ID)
	assert.Equal(t, "https://payments.cashfree.com/links/abc", link.URL)
	assert.Equal(t, "ACTIVE", link.Status)
	assert.Equal(t, models.Money{Amount: 500, Currency: "INR"}, link.Amount)
}

func TestCreatePaymentLinkValidation(t *testing.T) {
	c := New(Config{ClientID: "id", ClientSecret: "secret", BaseURL: "http://127.0.0.1:1"})
	_, err := c.CreatePaymentLink(context.Background(), LinkRequest{Amount: models.Money{Amount: 500}})
	assert.Error(t, err)
	_, err = c.CreatePaymentLink(context.Background(), LinkRequest{Phone: "+91", Amount: models.Money{Amount: 0}})
	assert.Error(t, err)

	_, err = New(Config{}).CreatePaymentLink(context.Background(), LinkRequest{Phone: "+91", Amount: models.Money{Amount: 1}})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGetPaymentLinkAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pg/links/missing", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"link_not_found","message":"link does not exist","type":"invalid_request_error"}`))
	}))
	defer srv.Close()

	c := New(Config{ClientID: "id", ClientSecret: "secret", BaseURL: srv.URL})
	_, err := c.GetPaymentLink(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "link_not_found", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "link does not exist")
}

func TestPayoutsTokenIsCached(t *testing.T) {
	var authCalls, transferCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/payout/v1/authorize":
			authCalls.Add(1)
			assert.Equal(t, "payout-id", r.Header.Get("X-Client-Id"))
			_, _ = w.Write([]byte(`{"status":"SUCCESS","subCode":"200","message":"Token generated","data":{"token":"tok-1","expiry":` +
				jsonInt(time.Now().Add(time.Hour).Unix()) + `}}`))
		case "/payout/v1/directTransfer":
			transferCalls.Add(1)
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			var body transferBody
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "SBIN0001234", body.BeneDetails.IFSC)
			assert.Equal(t, "banktransfer", body.TransferMode)
			_, _ = w.Write([]byte(`{"status":"PENDING","subCode":"201","message":"Transfer initiated","data":{"referenceId":"ref-9"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewPayouts(Config{PayoutClientID: "payout-id", PayoutClientSecret: "payout-secret", PayoutBaseURL: srv.URL})
	req := TransferRequest{BeneficiaryName: "Flour Mill", AccountNumber: "00011020001772", IFSC: "sbin0001234", Amount: 1200}

	for i := 0; i < 3; i++ {
		tr, err := p.CreateTransfer(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "PENDING", tr.Status)
		assert.Equal(t, "ref-9", tr.ReferenceID)
		assert.True(t, strings.HasPrefix(tr.ID, "tr_"))
	}
	assert.EqualValues(t, 1, authCalls.Load())
	assert.EqualValues(t, 3, transferCalls.Load())
}

func TestTokenManagerRefreshesNearExpiry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		exp := time.Date(2025, 1, 1, 12, 10, 0, 0, time.UTC).Unix()
		_, _ = w.Write([]byte(`{"status":"SUCCESS","data":{"token":"tok-` + jsonInt(int64(n)) + `","expiry":` + jsonInt(exp) + `}}`))
	}))
	defer srv.Close()

	tm := NewTokenManager(Config{PayoutClientID: "id", PayoutClientSecret: "secret", PayoutBaseURL: srv.URL})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return now }

	tok, err := tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok, err = tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// inside the refresh margin
	now = now.Add(6 * time.Minute)
	tok, err = tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}

func TestTokenManagerRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ERROR","subCode":"403","message":"Invalid clientId and clientSecret combination"}`))
	}))
	defer srv.Close()

	tm := NewTokenManager(Config{PayoutClientID: "id", PayoutClientSecret: "wrong", PayoutBaseURL: srv.URL})
	_, err := tm.GetToken()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid clientId")
}

func TestTransferValidation(t *testing.T) {
	p := NewPayouts(Config{PayoutClientID: "id", PayoutClientSecret: "secret", PayoutBaseURL: "http://127.0.0.1:1"})
	_, err := p.CreateTransfer(context.Background(), TransferRequest{Amount: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beneficiary_name, account_number, ifsc")

	_, err = p.CreateTransfer(context.Background(), TransferRequest{BeneficiaryName: "a", AccountNumber: "1", IFSC: "x", Amount: 0.5})
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"data":{"order":{"order_id":"o1"}},"type":"PAYMENT_SUCCESS_WEBHOOK"}`)
	sig := Sign("whsec", "1700000000", body)

	assert.NoError(t, VerifySignature("whsec", "1700000000", body, sig))
	assert.ErrorIs(t, VerifySignature("whsec", "1700000001", body, sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("other", "1700000000", body, sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("whsec", "1700000000", append(body, ' '), sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("whsec", "", body, sig), ErrInvalidSignature)
}

func TestCheckTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tests := []struct {
		name      string
		timestamp string
		wantErr   bool
	}{
		{"seconds", "1700000000", false},
		{"milliseconds", "1700000000123", false},
		{"within tolerance", "1699999800", false},
		{"slightly ahead", "1700000060", false},
		{"replayed", "1699990000", true},
		{"far future", "1700009000", true},
		{"not a number", "yesterday", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTimestamp(tt.timestamp, now, DefaultTolerance)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrStaleTimestamp)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
