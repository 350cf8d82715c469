// Package conversation keeps per-user turn history for the relay. Histories
// are bounded: each store retains at most MaxTurns turns per key and, when a
// TTL is set, forgets conversations that have been idle longer than the TTL.
package conversation

import (
	"context"
	"time"

	"github.com/worldofchami/bakerelay/pkg/models"
)

const DefaultMaxTurns = 20

type Conversation struct {
	Key       string
	Turns     []models.Turn
	UpdatedAt time.Time
}

type Store interface {
	GetOrCreate(ctx context.Context, key string) (Conversation, error)
	Append(ctx context.Context, key string, turns ...models.Turn) error
	Snapshot(ctx context.Context, key string) ([]models.Turn, error)
}

type options struct {
	maxTurns int
	ttl      time.Duration
	now      func() time.Time
}

type Option func(*options)

func WithMaxTurns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTurns = n
		}
	}
}

func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{maxTurns: DefaultMaxTurns, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (o options) expired(updated time.Time) bool {
	return o.ttl > 0 && !updated.IsZero() && o.now().Sub(updated) > o.ttl
}

// bound keeps the newest maxTurns turns and then drops leading turns until
// the history starts with a user turn, so a trimmed history never opens with
// an orphaned assistant reply or tool result.
func bound(turns []models.Turn, maxTurns int) []models.Turn {
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	start := 0
	for start < len(turns) && turns[start].Role != models.RoleUser {
		start++
	}
	if start == len(turns) {
		return turns[:0]
	}
	return turns[start:]
}
