package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/worldofchami/bakerelay/pkg/config"
	"github.com/worldofchami/bakerelay/pkg/logx"
	"github.com/worldofchami/bakerelay/pkg/platforms/cashfree"
	"github.com/worldofchami/bakerelay/pkg/platforms/twilio"
	"github.com/worldofchami/bakerelay/pkg/toolkit"
)

type toolsConfig struct {
	Addr string `default:":8080"`
}

// MCP tool server for the relay: WhatsApp messaging, payment links and
// payouts. Serves streamable HTTP on /mcp and SSE on /sse, or speaks MCP over
// stdin/stdout with -stdio.
func main() {
	stdio := flag.Bool("stdio", false, "serve MCP over stdin/stdout")
	envFile := flag.String("env", "", "optional env file to load")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		log.Fatal().Err(err).Msg("load env")
	}

	// stdout carries the protocol in stdio mode, so logs go to stderr
	log.Logger = logx.New(os.Stderr, *config.MustNew[logx.Config]("LOG"))
	logger := logx.Component("tools")

	conf := config.MustNew[toolsConfig]("TOOLS")
	twilioConf := config.MustNew[twilio.Config]("TWILIO")
	cashfreeConf := config.MustNew[cashfree.Config]("CASHFREE")

	deps := toolkit.Deps{}
	messenger := twilio.New(*twilioConf, logx.Component("twilio"))
	if messenger.IsConfigured() {
		deps.Messenger = messenger
	} else {
		logger.Warn().Msg("Twilio not configured (set TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_PHONE_NUMBER)")
	}
	payments := cashfree.New(*cashfreeConf)
	if payments.IsConfigured() {
		deps.Links = payments
	} else {
		logger.Warn().Msg("Cashfree payment links not configured (set CASHFREE_CLIENT_ID, CASHFREE_CLIENT_SECRET)")
	}
	if payouts := payments.Payouts(); payouts != nil {
		deps.Transfers = payouts
	}

	server := toolkit.NewServer(deps, logx.Component("toolkit"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *stdio {
		logger.Info().Msg("serving MCP over stdio")
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("stdio server stopped")
		}
		return
	}

	getServer := func(*http.Request) *mcp.Server { return server }
	r := chi.NewRouter()
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(getServer, nil))
	r.Handle("/sse", mcp.NewSSEHandler(getServer, nil))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: conf.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", conf.Addr).Msg("tool server listening (streamable: /mcp, sse: /sse)")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}
