// Package router turns inbound events into agent invocations and classified
// outcomes. It holds no global state: every dependency is passed to New.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"

	"github.com/worldofchami/bakerelay/pkg/classify"
	"github.com/worldofchami/bakerelay/pkg/contract"
	"github.com/worldofchami/bakerelay/pkg/conversation"
	"github.com/worldofchami/bakerelay/pkg/logx"
	"github.com/worldofchami/bakerelay/pkg/models"
	"github.com/worldofchami/bakerelay/pkg/prompt"
)

// Invoker runs turns through the agent. *gateway.Gateway satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, turns []models.Turn) ([]models.Turn, error)
}

type Router struct {
	store      conversation.Store
	gateway    Invoker
	classifier *classify.Classifier
	locks      *conversation.KeyedMutex
	log        zerolog.Logger
}

type Option func(*Router)

func WithClassifier(c *classify.Classifier) Option {
	return func(r *Router) {
		if c != nil {
			r.classifier = c
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) {
		r.log = l
	}
}

func New(store conversation.Store, gateway Invoker, opts ...Option) *Router {
	r := &Router{
		store:      store,
		gateway:    gateway,
		classifier: classify.Default(),
		locks:      conversation.NewKeyedMutex(),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MessageRequest is an inbound customer chat message.
type MessageRequest struct {
	Phone   string
	Name    string
	Message string
}

type InvoiceRequest struct {
	UserKey  string
	Text     string
	Document *prompt.Document
}

// ProcessMessage routes a chat message to the confirmation flow when it names
// a flavor, and to the lead flow otherwise.
func (r *Router) ProcessMessage(ctx context.Context, req MessageRequest) (out models.Outcome, err error) {
	defer r.recoverInternal("process_message", &err)

	req.Phone = strings.TrimSpace(req.Phone)
	req.Name = strings.TrimSpace(req.Name)
	req.Message = strings.TrimSpace(req.Message)
	if req.Phone == "" || req.Name == "" || req.Message == "" {
		return models.Outcome{}, fmt.Errorf("%w: missing phone_number, message, or name", contract.ErrBadRequest)
	}

	msg := prompt.Message{Phone: req.Phone, Name: req.Name, Text: req.Message}
	route, turns := classify.RouteLead, prompt.Lead(msg)
	if prompt.HasFlavor(req.Message) {
		route, turns = classify.RouteConfirm, prompt.Confirmation(msg)
	}

	log := r.log.With().Str("route", string(route)).Str("phone", req.Phone).Logger()
	reply, err := r.invoke(ctx, log, turns)
	if err != nil {
		return models.Outcome{}, err
	}

	out = r.classifier.Classify(route, reply)
	log.Info().Str("category", string(out.Category)).Str("status", out.Status).Msg("message processed")
	return out, nil
}

// ProcessInvoice continues the user's invoice conversation and returns the
// agent's raw reply. Calls for the same user key are serialized.
func (r *Router) ProcessInvoice(ctx context.Context, req InvoiceRequest) (reply string, err error) {
	defer r.recoverInternal("process_invoice", &err)

	hasDoc := req.Document != nil && len(req.Document.Data) > 0
	text := strings.TrimSpace(req.Text)
	if text == "" && !hasDoc {
		return "", fmt.Errorf("%w: missing text or file", contract.ErrBadRequest)
	}

	unlock := r.locks.Lock(req.UserKey)
	defer unlock()

	log := r.log.With().Str("route", "invoice").Str("user", req.UserKey).Logger()

	if text == "" {
		text = "Sent a document: " + documentName(req.Document)
	}
	if err := r.store.Append(ctx, req.UserKey, models.UserTurn(text)); err != nil {
		return "", fmt.Errorf("%w: append user turn: %w", contract.ErrInternal, err)
	}
	history, err := r.store.Snapshot(ctx, req.UserKey)
	if err != nil {
		return "", fmt.Errorf("%w: load history: %w", contract.ErrInternal, err)
	}

	var doc *prompt.Document
	if hasDoc {
		doc = req.Document
	}
	reply, err = r.invoke(ctx, log, prompt.Invoice(history, doc))
	if err != nil {
		return "", err
	}

	if err := r.store.Append(ctx, req.UserKey, models.AssistantTurn(reply)); err != nil {
		return "", fmt.Errorf("%w: append assistant turn: %w", contract.ErrInternal, err)
	}
	log.Info().Int("history", len(history)+1).Msg("invoice processed")
	return reply, nil
}

// Webhook handles a payment-provider event. The payload must be valid JSON.
func (r *Router) Webhook(ctx context.Context, payload []byte) (out models.Outcome, err error) {
	defer r.recoverInternal("webhook", &err)

	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return models.Outcome{}, contract.ErrBadPayload
	}

	log := r.log.With().Str("route", string(classify.RouteWebhook)).Logger()
	reply, err := r.invoke(ctx, log, prompt.Webhook(trimmed))
	if err != nil {
		return models.Outcome{}, err
	}

	out = r.classifier.Classify(classify.RouteWebhook, reply)
	log.Info().Str("category", string(out.Category)).Str("status", out.Status).Msg("webhook processed")
	return out, nil
}

func (r *Router) invoke(ctx context.Context, log zerolog.Logger, turns []models.Turn) (string, error) {
	out, err := r.gateway.Invoke(ctx, turns)
	if err != nil {
		if errors.Is(err, contract.ErrGatewayNotReady) || errors.Is(err, contract.ErrAgentInvocation) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", contract.ErrInternal, err)
	}
	logx.Transcript(log, "agent response", out)
	reply := models.FinalText(out)
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("%w: empty reply", contract.ErrAgentInvocation)
	}
	return reply, nil
}

func (r *Router) recoverInternal(op string, err *error) {
	if p := recover(); p != nil {
		r.log.Error().Str("op", op).Interface("panic", p).Bytes("stack", debug.Stack()).Msg("recovered panic")
		*err = fmt.Errorf("%w: %v", contract.ErrInternal, p)
	}
}

func documentName(d *prompt.Document) string {
	if d == nil || d.Filename == "" {
		return "invoice.pdf"
	}
	return d.Filename
}
