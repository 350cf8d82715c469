package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/worldofchami/bakerelay/pkg/api"
	"github.com/worldofchami/bakerelay/pkg/classify"
	"github.com/worldofchami/bakerelay/pkg/config"
	"github.com/worldofchami/bakerelay/pkg/conversation"
	"github.com/worldofchami/bakerelay/pkg/gateway"
	"github.com/worldofchami/bakerelay/pkg/logx"
	"github.com/worldofchami/bakerelay/pkg/platforms/cashfree"
	"github.com/worldofchami/bakerelay/pkg/router"
)

type relayConfig struct {
	Addr             string        `default:":8090"`
	AgentProvider    string        `split_words:"true" default:"anthropic"`
	AgentTimeout     time.Duration `split_words:"true" default:"90s"`
	StartTimeout     time.Duration `split_words:"true" default:"60s"`
	ToolServers      string        `split_words:"true" default:"multi_server_config.json"`
	Store            string        `default:"memory"`
	DBPath           string        `envconfig:"DB_PATH" default:"conversations.db"`
	MaxTurns         int           `split_words:"true" default:"50"`
	TTL              time.Duration `envconfig:"TTL" default:"24h"`
	SweepInterval    time.Duration `split_words:"true" default:"10m"`
	MaxUpload        int64         `split_words:"true" default:"10485760"`
	WebhookTolerance time.Duration `split_words:"true" default:"5m"`
}

// sweeper drops idle conversations from the store.
type sweeper func(ctx context.Context) (int64, error)

func main() {
	envFile := flag.String("env", "", "optional env file to load")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		log.Fatal().Err(err).Msg("load env")
	}
	logx.Init(*config.MustNew[logx.Config]("LOG"))
	logger := logx.Component("server")

	conf := config.MustNew[relayConfig]("RELAY")
	classifierConf := config.MustNew[classify.Config]("CLASSIFIER")
	cashfreeConf := config.MustNew[cashfree.Config]("CASHFREE")

	servers, err := config.LoadToolServers(conf.ToolServers)
	if err != nil {
		logger.Fatal().Err(err).Msg("load tool servers")
	}

	binder, err := newBinder(conf.AgentProvider)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure agent")
	}

	store, sweep, closeStore, err := newStore(conf)
	if err != nil {
		logger.Fatal().Err(err).Msg("open conversation store")
	}
	defer closeStore()

	gw := gateway.New(
		gateway.Opener(servers, logx.Component("session")),
		binder,
		gateway.WithTimeout(conf.AgentTimeout),
		gateway.WithLogger(logx.Component("gateway")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancelStart := context.WithTimeout(ctx, conf.StartTimeout)
	err = gw.Start(startCtx)
	cancelStart()
	if err != nil {
		logger.Fatal().Err(err).Msg("start gateway")
	}
	logger.Info().Int("tools", len(gw.Tools())).Str("provider", conf.AgentProvider).Msg("gateway ready")

	go runSweeper(ctx, sweep, conf.SweepInterval, logger)

	relay := router.New(store, gw,
		router.WithClassifier(classify.New(*classifierConf)),
		router.WithLogger(logx.Component("router")),
	)
	handler := api.New(relay,
		api.WithReadiness(gw.Ready),
		api.WithWebhookSecret(cashfreeConf.WebhookSecret),
		api.WithWebhookTolerance(conf.WebhookTolerance),
		api.WithMaxUpload(conf.MaxUpload),
		api.WithLogger(logx.Component("api")),
	).Handler()

	srv := &http.Server{Addr: conf.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", conf.Addr).Msg("relay listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("gateway stop")
	}
}

func newBinder(provider string) (gateway.Binder, error) {
	switch provider {
	case "anthropic":
		conf, err := config.New[gateway.AnthropicConfig]("ANTHROPIC")
		if err != nil {
			return nil, err
		}
		if conf.APIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required")
		}
		return gateway.AnthropicBinder(*conf, logx.Component("agent")), nil
	case "openai":
		conf, err := config.New[gateway.OpenAIConfig]("OPENAI")
		if err != nil {
			return nil, err
		}
		if os.Getenv("OPENAI_API_KEY") == "" {
			return nil, errors.New("OPENAI_API_KEY is required")
		}
		return gateway.OpenAIBinder(*conf, logx.Component("agent")), nil
	default:
		return nil, fmt.Errorf("unknown agent provider %q (want anthropic or openai)", provider)
	}
}

func newStore(conf *relayConfig) (conversation.Store, sweeper, func(), error) {
	opts := []conversation.Option{
		conversation.WithMaxTurns(conf.MaxTurns),
		conversation.WithTTL(conf.TTL),
	}
	switch conf.Store {
	case "memory":
		s := conversation.NewMemoryStore(opts...)
		sweep := func(context.Context) (int64, error) { return int64(s.Sweep()), nil }
		return s, sweep, func() {}, nil
	case "sqlite":
		s, err := conversation.NewSQLStore(conf.DBPath, opts...)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := s.Close(); err != nil {
				log.Error().Err(err).Msg("close conversation store")
			}
		}
		return s, s.Sweep, closeFn, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store %q (want memory or sqlite)", conf.Store)
	}
}

func runSweeper(ctx context.Context, sweep sweeper, every time.Duration, logger zerolog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweep(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("sweep conversations")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("removed", n).Msg("swept idle conversations")
			}
		}
	}
}
