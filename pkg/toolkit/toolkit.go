// Package toolkit registers the relay's commerce tools on an MCP server:
// WhatsApp messaging through Twilio, and payment links and payouts through
// Cashfree.
package toolkit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/worldofchami/bakerelay/pkg/models"
	"github.com/worldofchami/bakerelay/pkg/platforms/cashfree"
	"github.com/worldofchami/bakerelay/pkg/platforms/twilio"
)

const (
	ServerName    = "bakerelay-tools"
	ServerVersion = "0.1.0"

	ToolSendWhatsApp      = "send_whatsapp_message"
	ToolCreatePaymentLink = "create_payment_link"
	ToolGetPaymentLink    = "get_payment_link"
	ToolCreateTransfer    = "create_transfer"
)

type Messenger interface {
	SendWhatsApp(ctx context.Context, to, message, mediaURL string) (twilio.Sent, error)
}

type PaymentLinks interface {
	CreatePaymentLink(ctx context.Context, req cashfree.LinkRequest) (models.PaymentLink, error)
	GetPaymentLink(ctx context.Context, linkID string) (models.PaymentLink, error)
}

type Transfers interface {
	CreateTransfer(ctx context.Context, req cashfree.TransferRequest) (models.Transfer, error)
}

// Deps are the backends the tools call. A nil backend leaves its tools
// unregistered.
type Deps struct {
	Messenger Messenger
	Links     PaymentLinks
	Transfers Transfers
}

type SendMessageArgs struct {
	To       string `json:"to" jsonschema:"recipient phone number in E.164 form, e.g. +919800000000"`
	Message  string `json:"message" jsonschema:"message body, at most 1600 characters"`
	MediaURL string `json:"media_url,omitempty" jsonschema:"optional public URL of an image to attach"`
}

type CreateLinkArgs struct {
	Phone        string  `json:"phone" jsonschema:"customer phone number"`
	CustomerName string  `json:"customer_name" jsonschema:"customer name"`
	Amount       float64 `json:"amount" jsonschema:"amount in major currency units"`
	Currency     string  `json:"currency,omitempty" jsonschema:"ISO currency code, defaults to INR"`
	Purpose      string  `json:"purpose" jsonschema:"what the payment is for, e.g. Chocolate cake"`
}

type GetLinkArgs struct {
	LinkID string `json:"link_id" jsonschema:"payment link id returned by create_payment_link"`
}

type TransferArgs struct {
	BeneficiaryName string  `json:"beneficiary_name" jsonschema:"account holder name"`
	AccountNumber   string  `json:"account_number" jsonschema:"beneficiary bank account number"`
	IFSC            string  `json:"ifsc" jsonschema:"beneficiary bank IFSC code"`
	Amount          float64 `json:"amount" jsonschema:"amount in rupees"`
	Remarks         string  `json:"remarks,omitempty" jsonschema:"optional remarks, e.g. the invoice number"`
}

// NewServer builds an MCP server exposing the tools backed by deps.
func NewServer(deps Deps, log zerolog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: ServerVersion}, nil)
	Register(server, deps, log)
	return server
}

// Register adds the tools backed by deps to server.
func Register(server *mcp.Server, deps Deps, log zerolog.Logger) {
	if deps.Messenger != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        ToolSendWhatsApp,
			Description: "Send a WhatsApp message to a customer, optionally with an image.",
		}, logged(log, ToolSendWhatsApp, sendMessage(deps.Messenger)))
	}
	if deps.Links != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        ToolCreatePaymentLink,
			Description: "Create a Cashfree payment link for a customer and return its id and URL.",
		}, logged(log, ToolCreatePaymentLink, createLink(deps.Links)))
		mcp.AddTool(server, &mcp.Tool{
			Name:        ToolGetPaymentLink,
			Description: "Look up a Cashfree payment link and return its current status.",
		}, logged(log, ToolGetPaymentLink, getLink(deps.Links)))
	}
	if deps.Transfers != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        ToolCreateTransfer,
			Description: "Pay a supplier by bank transfer through Cashfree Payouts. Only call after the user confirms the details.",
		}, logged(log, ToolCreateTransfer, createTransfer(deps.Transfers)))
	}
}

func sendMessage(m Messenger) mcp.ToolHandlerFor[SendMessageArgs, twilio.Sent] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in SendMessageArgs) (*mcp.CallToolResult, twilio.Sent, error) {
		sent, err := m.SendWhatsApp(ctx, in.To, in.Message, in.MediaURL)
		return nil, sent, err
	}
}

func createLink(links PaymentLinks) mcp.ToolHandlerFor[CreateLinkArgs, models.PaymentLink] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in CreateLinkArgs) (*mcp.CallToolResult, models.PaymentLink, error) {
		link, err := links.CreatePaymentLink(ctx, cashfree.LinkRequest{
			Phone:        in.Phone,
			CustomerName: in.CustomerName,
			Amount:       models.Money{Amount: in.Amount, Currency: strings.ToUpper(in.Currency)},
			Purpose:      in.Purpose,
		})
		return nil, link, err
	}
}

func getLink(links PaymentLinks) mcp.ToolHandlerFor[GetLinkArgs, models.PaymentLink] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in GetLinkArgs) (*mcp.CallToolResult, models.PaymentLink, error) {
		link, err := links.GetPaymentLink(ctx, in.LinkID)
		return nil, link, err
	}
}

func createTransfer(t Transfers) mcp.ToolHandlerFor[TransferArgs, models.Transfer] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in TransferArgs) (*mcp.CallToolResult, models.Transfer, error) {
		if in.Amount <= 0 {
			return nil, models.Transfer{}, errors.New("amount must be positive")
		}
		tr, err := t.CreateTransfer(ctx, cashfree.TransferRequest{
			BeneficiaryName: in.BeneficiaryName,
			AccountNumber:   in.AccountNumber,
			IFSC:            in.IFSC,
			Amount:          in.Amount,
			Remarks:         in.Remarks,
		})
		return nil, tr, err
	}
}

// logged emits one structured event per tool call.
func logged[In, Out any](log zerolog.Logger, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		res, out, err := h(ctx, req, in)

		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("tool", name).
			Interface("args", in).
			Dur("duration", time.Since(start)).
			Msg("tool call")
		return res, out, err
	}
}
