// Package gateway owns the tool-backend session and the agent bound to it.
//
// Start opens the session and binds the agent; only then does Invoke accept
// calls. Invoke never queues: before Start completes, or after Stop, it fails
// fast with contract.ErrGatewayNotReady. Stop runs once and tolerates a
// gateway that never started.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/worldofchami/bakerelay/pkg/contract"
	"github.com/worldofchami/bakerelay/pkg/models"
)

const DefaultTimeout = 90 * time.Second

// Tool describes one callable tool exposed by the session.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Server      string
}

type ToolResult struct {
	Text    string
	IsError bool
}

// Session is a live connection to the tool backend.
type Session interface {
	Tools() []Tool
	CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error)
	Close() error
}

// Agent runs a turn sequence through the model and returns the turns it
// produced, ending with its final assistant turn.
type Agent interface {
	Run(ctx context.Context, turns []models.Turn) ([]models.Turn, error)
}

type SessionOpener func(ctx context.Context) (Session, error)

// Binder binds a model to the session's tools.
type Binder func(ctx context.Context, session Session) (Agent, error)

var ErrStopped = errors.New("gateway stopped")

type handle struct {
	agent Agent
	tools []Tool
}

type Gateway struct {
	open    SessionOpener
	bind    Binder
	timeout time.Duration
	log     zerolog.Logger

	mu       sync.Mutex // serialises Start and Stop
	session  Session
	stopped  bool
	stopOnce sync.Once

	handle atomic.Pointer[handle]
}

type Option func(*Gateway)

// WithTimeout bounds every Invoke. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) {
		g.log = l
	}
}

func New(open SessionOpener, bind Binder, opts ...Option) *Gateway {
	g := &Gateway{
		open:    open,
		bind:    bind,
		timeout: DefaultTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		return ErrStopped
	}
	if g.handle.Load() != nil {
		return nil
	}

	session, err := g.open(ctx)
	if err != nil {
		return fmt.Errorf("open tool session: %w", err)
	}

	agent, err := g.bind(ctx, session)
	if err != nil {
		if cerr := session.Close(); cerr != nil {
			g.log.Warn().Err(cerr).Msg("close tool session after failed bind")
		}
		return fmt.Errorf("bind agent: %w", err)
	}

	g.session = session
	tools := session.Tools()
	g.handle.Store(&handle{agent: agent, tools: tools})

	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	g.log.Info().Strs("tools", names).Msg("agent initialized")
	return nil
}

func (g *Gateway) Ready() bool {
	return g.handle.Load() != nil
}

// Tools lists the tools bound to the agent, or nil when not ready.
func (g *Gateway) Tools() []Tool {
	h := g.handle.Load()
	if h == nil {
		return nil
	}
	return append([]Tool(nil), h.tools...)
}

// Invoke sends turns to the bound agent under the gateway deadline.
func (g *Gateway) Invoke(ctx context.Context, turns []models.Turn) ([]models.Turn, error) {
	h := g.handle.Load()
	if h == nil {
		return nil, contract.ErrGatewayNotReady
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	out, err := h.agent.Run(ctx, models.CloneTurns(turns))
	if err != nil {
		g.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("agent invocation failed")
		return nil, fmt.Errorf("%w: %w", contract.ErrAgentInvocation, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty response", contract.ErrAgentInvocation)
	}
	g.log.Debug().Dur("elapsed", time.Since(start)).Int("turns", len(out)).Msg("agent invocation finished")
	return out, nil
}

// Stop closes the gate and releases the session. Only the first call does
// any work; later calls return nil.
func (g *Gateway) Stop(_ context.Context) error {
	var err error
	g.stopOnce.Do(func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		g.stopped = true
		g.handle.Store(nil)
		if g.session == nil {
			g.log.Info().Msg("gateway stopped before start completed")
			return
		}
		err = g.session.Close()
		g.session = nil
		if err != nil {
			g.log.Error().Err(err).Msg("tool session shutdown failed")
			return
		}
		g.log.Info().Msg("tool session shut down")
	})
	return err
}
