// Package api exposes the relay over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/worldofchami/bakerelay/pkg/models"
	"github.com/worldofchami/bakerelay/pkg/platforms/cashfree"
	"github.com/worldofchami/bakerelay/pkg/router"
)

const (
	defaultMaxUpload = 10 << 20
	sessionHeader    = "X-Session-ID"
	defaultUserKey   = "default"
)

// Service is the routing surface the handlers call. *router.Router
// satisfies it.
type Service interface {
	ProcessMessage(ctx context.Context, req router.MessageRequest) (models.Outcome, error)
	ProcessInvoice(ctx context.Context, req router.InvoiceRequest) (string, error)
	Webhook(ctx context.Context, payload []byte) (models.Outcome, error)
}

type Server struct {
	svc           Service
	ready         func() bool
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
	maxUpload     int64
	log           zerolog.Logger
}

type Option func(*Server)

// WithReadiness reports gateway readiness on /readyz.
func WithReadiness(ready func() bool) Option {
	return func(s *Server) {
		s.ready = ready
	}
}

// WithWebhookSecret enables Cashfree signature checks on /api/webhook.
func WithWebhookSecret(secret string) Option {
	return func(s *Server) {
		s.webhookSecret = secret
	}
}

// WithWebhookTolerance sets how old a signed delivery may be before it is
// rejected as a replay.
func WithWebhookTolerance(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.tolerance = d
		}
	}
}

func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

func New(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		ready:     func() bool { return true },
		tolerance: cashfree.DefaultTolerance,
		now:       time.Now,
		maxUpload: defaultMaxUpload,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Post("/process_message", s.handleProcessMessage)
		r.Post("/process_invoice", s.handleProcessInvoice)
		r.Post("/webhook", s.handleWebhook)
	})
	r.Post("/twilio/webhook", s.handleTwilio)
	return r
}
