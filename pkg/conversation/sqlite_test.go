package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldofchami/bakerelay/pkg/models"
)

func newTestSQLStore(t *testing.T, path string, opts ...Option) *SQLStore {
	t.Helper()
	s, err := NewSQLStore(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s := newTestSQLStore(t, path)
	ctx := context.Background()

	conv, err := s.GetOrCreate(ctx, "+15550001")
	require.NoError(t, err)
	assert.Empty(t, conv.Turns)

	require.NoError(t, s.Append(ctx, "+15550001",
		models.Turn{Role: models.RoleUser, Parts: []models.Part{
			models.TextPart("please pay this"),
			models.DocumentPart(models.MediaTypePDF, "JVBERi0xLjQ="),
		}},
		models.Turn{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "create_transfer", Arguments: map[string]any{"amount": 500.0}},
		}},
		models.Turn{Role: models.RoleTool, ToolCallID: "c1", Content: "ok"},
		models.AssistantTurn("Transfer created"),
	))

	turns, err := s.Snapshot(ctx, "+15550001")
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.True(t, turns[0].HasDocument())
	assert.Equal(t, "create_transfer", turns[1].ToolCalls[0].Name)
	assert.Equal(t, 500.0, turns[1].ToolCalls[0].Arguments["amount"])
	assert.Equal(t, "c1", turns[2].ToolCallID)
	assert.Equal(t, "Transfer created", models.FinalText(turns))
}

func TestSQLStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := NewSQLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "k", models.UserTurn("hello"), models.AssistantTurn("hi")))
	require.NoError(t, s.Close())

	reopened := newTestSQLStore(t, path)
	turns, err := reopened.Snapshot(ctx, "k")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hello", turns[0].Content)
}

func TestSQLStoreBoundsHistory(t *testing.T) {
	s := newTestSQLStore(t, filepath.Join(t.TempDir(), "history.db"), WithMaxTurns(4))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, "k",
			models.UserTurn(fmt.Sprintf("q%d", i)),
			models.AssistantTurn(fmt.Sprintf("a%d", i)),
		))
	}

	turns, err := s.Snapshot(ctx, "k")
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, "q3", turns[0].Content)
	assert.Equal(t, "a4", turns[3].Content)
}

func TestSQLStoreTTL(t *testing.T) {
	clock := newFakeClock()
	s := newTestSQLStore(t, filepath.Join(t.TempDir(), "history.db"),
		WithTTL(time.Hour), WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "k", models.UserTurn("hello")))
	require.NoError(t, s.Append(ctx, "stale", models.UserTurn("old")))

	clock.Advance(2 * time.Hour)
	turns, err := s.Snapshot(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, turns)

	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestSQLStoreConcurrentKeys(t *testing.T) {
	s := newTestSQLStore(t, filepath.Join(t.TempDir(), "history.db"), WithMaxTurns(100))
	ctx := context.Background()

	var wg sync.WaitGroup
	for k := 0; k < 4; k++ {
		key := fmt.Sprintf("+1555000%d", k)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				assert.NoError(t, s.Append(ctx, key, models.UserTurn(fmt.Sprintf("m%d", i))))
				_, err := s.Snapshot(ctx, key)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for k := 0; k < 4; k++ {
		turns, err := s.Snapshot(ctx, fmt.Sprintf("+1555000%d", k))
		require.NoError(t, err)
		require.Len(t, turns, 10)
		assert.Equal(t, "m0", turns[0].Content)
		assert.Equal(t, "m9", turns[9].Content)
	}
}
