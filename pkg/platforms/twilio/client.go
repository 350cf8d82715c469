// Package twilio sends WhatsApp messages through the Twilio REST API.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	twiliogo "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MaxMessageLength is Twilio's limit on a message body.
const MaxMessageLength = 1600

type Config struct {
	AccountSID  string `envconfig:"ACCOUNT_SID"`
	AuthToken   string `split_words:"true"`
	PhoneNumber string `split_words:"true"`
}

var ErrNotConfigured = errors.New("twilio client not configured")

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Client sends WhatsApp messages from the configured Twilio number.
type Client struct {
	api         messageCreator
	phoneNumber string
	log         zerolog.Logger
}

// Sent describes an accepted outbound message.
type Sent struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
	To     string `json:"to"`
}

// New returns a client. Missing credentials yield an unconfigured client
// whose sends fail with ErrNotConfigured.
func New(conf Config, log zerolog.Logger) *Client {
	c := &Client{phoneNumber: conf.PhoneNumber, log: log}
	if conf.AccountSID == "" || conf.AuthToken == "" || conf.PhoneNumber == "" {
		return c
	}
	rest := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: conf.AccountSID,
		Password: conf.AuthToken,
	})
	c.api = rest.Api
	return c
}

func (c *Client) IsConfigured() bool {
	return c.api != nil
}

func (c *Client) PhoneNumber() string {
	return c.phoneNumber
}

// SendWhatsApp sends message to the recipient, attaching mediaURL when set.
// Bodies longer than MaxMessageLength are truncated.
func (c *Client) SendWhatsApp(ctx context.Context, to, message, mediaURL string) (Sent, error) {
	if !c.IsConfigured() {
		return Sent{}, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return Sent{}, err
	}
	if strings.TrimSpace(to) == "" {
		return Sent{}, errors.New("recipient is required")
	}
	if strings.TrimSpace(message) == "" && mediaURL == "" {
		return Sent{}, errors.New("message is required")
	}

	toNumber := FormatWhatsApp(to)
	fromNumber := FormatWhatsApp(c.phoneNumber)

	if runes := []rune(message); len(runes) > MaxMessageLength {
		c.log.Warn().Int("length", len(runes)).Msg("message exceeds limit, truncating")
		message = string(runes[:MaxMessageLength-3]) + "..."
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(fromNumber)
	params.SetBody(message)
	if mediaURL != "" {
		params.SetMediaUrl([]string{mediaURL})
	}

	c.log.Debug().Str("to", toNumber).Int("length", len(message)).Bool("media", mediaURL != "").Msg("sending whatsapp message")
	resp, err := c.api.CreateMessage(params)
	if err != nil {
		return Sent{}, fmt.Errorf("failed to send WhatsApp message: %w", err)
	}

	sent := Sent{To: toNumber}
	if resp != nil {
		if resp.Sid != nil {
			sent.SID = *resp.Sid
		}
		if resp.Status != nil {
			sent.Status = *resp.Status
		}
	}
	return sent, nil
}

// FormatWhatsApp normalizes a phone number to whatsapp:+E.164 form.
func FormatWhatsApp(phone string) string {
	return "whatsapp:" + E164(phone)
}

// E164 keeps digits only and adds the leading plus sign.
func E164(phone string) string {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "whatsapp:")
	var b strings.Builder
	b.WriteByte('+')
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
