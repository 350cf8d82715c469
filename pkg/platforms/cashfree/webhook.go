package cashfree

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader = "x-webhook-signature"
	TimestampHeader = "x-webhook-timestamp"
)

// DefaultTolerance is how far a delivery's timestamp may drift from now.
const DefaultTolerance = 5 * time.Minute

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
)

// Sign computes base64(HMAC-SHA256(secret, timestamp + body)).
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook delivery against the shared secret.
func VerifySignature(secret, timestamp string, body []byte, signature string) error {
	if signature == "" || timestamp == "" {
		return ErrInvalidSignature
	}
	expected := Sign(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// CheckTimestamp rejects deliveries whose timestamp is more than tolerance
// away from now. Cashfree sends milliseconds; plain seconds are accepted too.
func CheckTimestamp(timestamp string, now time.Time, tolerance time.Duration) error {
	n, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrStaleTimestamp, timestamp)
	}
	sent := time.Unix(n, 0)
	if n > 1e12 {
		sent = time.UnixMilli(n)
	}
	skew := now.Sub(sent)
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return fmt.Errorf("%w: sent %s", ErrStaleTimestamp, sent.UTC().Format(time.RFC3339))
	}
	return nil
}
