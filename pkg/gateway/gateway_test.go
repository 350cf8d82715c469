package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldofchami/bakerelay/pkg/contract"
	"github.com/worldofchami/bakerelay/pkg/models"
)

type fakeSession struct {
	tools  []Tool
	closed atomic.Int32

	mu    sync.Mutex
	calls []string
	reply func(name string, args map[string]any) (ToolResult, error)
}

func (s *fakeSession) Tools() []Tool { return s.tools }

func (s *fakeSession) CallTool(_ context.Context, name string, args map[string]any) (ToolResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
	if s.reply != nil {
		return s.reply(name, args)
	}
	return ToolResult{Text: "ok"}, nil
}

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

type agentFunc func(ctx context.Context, turns []models.Turn) ([]models.Turn, error)

func (f agentFunc) Run(ctx context.Context, turns []models.Turn) ([]models.Turn, error) {
	return f(ctx, turns)
}

func echoAgent(reply string) Agent {
	return agentFunc(func(_ context.Context, _ []models.Turn) ([]models.Turn, error) {
		return []models.Turn{models.AssistantTurn(reply)}, nil
	})
}

func newTestGateway(session *fakeSession, agent Agent, opts ...Option) *Gateway {
	return New(
		func(context.Context) (Session, error) { return session, nil },
		func(context.Context, Session) (Agent, error) { return agent, nil },
		opts...,
	)
}

func TestInvokeBeforeStartFailsFast(t *testing.T) {
	t.Parallel()
	g := newTestGateway(&fakeSession{}, echoAgent("hi"))

	done := make(chan error, 1)
	go func() {
		_, err := g.Invoke(context.Background(), []models.Turn{models.UserTurn("x")})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, contract.ErrGatewayNotReady)
	case <-time.After(time.Second):
		t.Fatal("Invoke blocked on a gateway that never started")
	}
	assert.False(t, g.Ready())
}

func TestStartInvokeStop(t *testing.T) {
	t.Parallel()
	session := &fakeSession{tools: []Tool{{Name: "send_whatsapp_message"}}}
	g := newTestGateway(session, echoAgent("Order identified"))
	ctx := context.Background()

	require.NoError(t, g.Start(ctx))
	assert.True(t, g.Ready())
	require.NoError(t, g.Start(ctx), "second Start is a no-op")
	assert.Len(t, g.Tools(), 1)

	out, err := g.Invoke(ctx, []models.Turn{models.UserTurn("hello")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Order identified", out[0].Content)

	require.NoError(t, g.Stop(ctx))
	assert.False(t, g.Ready())
	assert.Nil(t, g.Tools())
	assert.EqualValues(t, 1, session.closed.Load())

	_, err = g.Invoke(ctx, []models.Turn{models.UserTurn("hello")})
	assert.ErrorIs(t, err, contract.ErrGatewayNotReady)
	assert.ErrorIs(t, g.Start(ctx), ErrStopped)
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	session := &fakeSession{}
	g := newTestGateway(session, echoAgent("ok"))
	require.NoError(t, g.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Stop(context.Background()))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, session.closed.Load())
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()
	session := &fakeSession{}
	g := newTestGateway(session, echoAgent("ok"))

	require.NoError(t, g.Stop(context.Background()))
	require.NoError(t, g.Stop(context.Background()))
	assert.Zero(t, session.closed.Load())
}

func TestFailedBindClosesSession(t *testing.T) {
	t.Parallel()
	session := &fakeSession{}
	g := New(
		func(context.Context) (Session, error) { return session, nil },
		func(context.Context, Session) (Agent, error) { return nil, errors.New("no api key") },
	)

	err := g.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no api key")
	assert.False(t, g.Ready())
	assert.EqualValues(t, 1, session.closed.Load())
}

func TestFailedOpenLeavesGatewayNotReady(t *testing.T) {
	t.Parallel()
	g := New(
		func(context.Context) (Session, error) { return nil, errors.New("connection refused") },
		func(context.Context, Session) (Agent, error) { return echoAgent("ok"), nil },
	)
	require.Error(t, g.Start(context.Background()))
	assert.False(t, g.Ready())
}

func TestInvokeWrapsAgentErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("rate limited")
	g := newTestGateway(&fakeSession{}, agentFunc(func(context.Context, []models.Turn) ([]models.Turn, error) {
		return nil, boom
	}))
	require.NoError(t, g.Start(context.Background()))

	_, err := g.Invoke(context.Background(), []models.Turn{models.UserTurn("x")})
	assert.ErrorIs(t, err, contract.ErrAgentInvocation)
	assert.ErrorIs(t, err, boom)
}

func TestInvokeEmptyResponse(t *testing.T) {
	t.Parallel()
	g := newTestGateway(&fakeSession{}, agentFunc(func(context.Context, []models.Turn) ([]models.Turn, error) {
		return nil, nil
	}))
	require.NoError(t, g.Start(context.Background()))

	_, err := g.Invoke(context.Background(), []models.Turn{models.UserTurn("x")})
	assert.ErrorIs(t, err, contract.ErrAgentInvocation)
}

func TestInvokeTimeout(t *testing.T) {
	t.Parallel()
	g := newTestGateway(&fakeSession{}, agentFunc(func(ctx context.Context, _ []models.Turn) ([]models.Turn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), WithTimeout(20*time.Millisecond))
	require.NoError(t, g.Start(context.Background()))

	start := time.Now()
	_, err := g.Invoke(context.Background(), []models.Turn{models.UserTurn("x")})
	assert.ErrorIs(t, err, contract.ErrAgentInvocation)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInvokeDoesNotShareCallerTurns(t *testing.T) {
	t.Parallel()
	g := newTestGateway(&fakeSession{}, agentFunc(func(_ context.Context, turns []models.Turn) ([]models.Turn, error) {
		turns[0].Content = "mutated"
		return []models.Turn{models.AssistantTurn("ok")}, nil
	}))
	require.NoError(t, g.Start(context.Background()))

	in := []models.Turn{models.UserTurn("original")}
	_, err := g.Invoke(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "original", in[0].Content)
}
