package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/worldofchami/bakerelay/pkg/models"
)

// SQLStore persists conversations in SQLite through GORM using raw SQL.
// Turns are stored as JSON so multi-part content and tool calls survive a
// restart.
type SQLStore struct {
	db *gorm.DB
	// One lock for the whole store: SQLite has a single writer anyway, and
	// per-key ordering comes from the router's KeyedMutex.
	mu   sync.Mutex
	opts options
}

var _ Store = (*SQLStore)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL CHECK(role IN ('system', 'user', 'assistant', 'tool')),
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, id);
`

func NewSQLStore(dbPath string, opts ...Option) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec(schemaSQL).Error; err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLStore{db: db, opts: buildOptions(opts)}, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) GetOrCreate(ctx context.Context, key string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := s.db.WithContext(ctx)
	updated, err := s.touch(db, key, false)
	if err != nil {
		return Conversation{}, err
	}
	turns, err := s.load(db, key)
	if err != nil {
		return Conversation{}, err
	}
	return Conversation{Key: key, Turns: turns, UpdatedAt: updated}, nil
}

func (s *SQLStore) Append(ctx context.Context, key string, turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.touch(tx, key, true); err != nil {
			return err
		}

		insertTurn := `
			INSERT INTO turns (conversation_id, role, payload, created_at)
			VALUES (?, ?, ?, ?)`
		now := s.opts.now().Unix()
		for _, t := range turns {
			payload, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("failed to encode turn: %w", err)
			}
			if err := tx.Exec(insertTurn, key, string(t.Role), string(payload), now).Error; err != nil {
				return fmt.Errorf("failed to insert turn: %w", err)
			}
		}

		// Keep only the newest maxTurns turns for this conversation.
		trimTurns := `
			DELETE FROM turns WHERE conversation_id = ? AND id NOT IN (
				SELECT id FROM turns
				WHERE conversation_id = ?
				ORDER BY id DESC
				LIMIT ?
			)`
		if err := tx.Exec(trimTurns, key, key, s.opts.maxTurns).Error; err != nil {
			return fmt.Errorf("failed to trim turns: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) Snapshot(ctx context.Context, key string) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := s.db.WithContext(ctx)
	if _, err := s.touch(db, key, false); err != nil {
		return nil, err
	}
	return s.load(db, key)
}

// Sweep deletes conversations idle for longer than the TTL.
func (s *SQLStore) Sweep(ctx context.Context) (int64, error) {
	if s.opts.ttl <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.opts.now().Add(-s.opts.ttl).Unix()
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM turns WHERE conversation_id IN (
			SELECT id FROM conversations WHERE updated_at < ?)`, cutoff).Error; err != nil {
			return fmt.Errorf("failed to delete stale turns: %w", err)
		}
		res := tx.Exec(`DELETE FROM conversations WHERE updated_at < ?`, cutoff)
		if res.Error != nil {
			return fmt.Errorf("failed to delete stale conversations: %w", res.Error)
		}
		removed = res.RowsAffected
		return nil
	})
	return removed, err
}

// touch creates the conversation row if missing and resets its turns when
// the TTL has elapsed. When bump is set the updated_at column moves to now.
func (s *SQLStore) touch(db *gorm.DB, key string, bump bool) (time.Time, error) {
	now := s.opts.now()

	upsertConversation := `
		INSERT INTO conversations (id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`
	if err := db.Exec(upsertConversation, key, now.Unix(), now.Unix()).Error; err != nil {
		return time.Time{}, fmt.Errorf("failed to upsert conversation: %w", err)
	}

	var updatedUnix int64
	row := db.Raw(`SELECT updated_at FROM conversations WHERE id = ?`, key).Row()
	if err := row.Scan(&updatedUnix); err != nil {
		return time.Time{}, fmt.Errorf("failed to read conversation: %w", err)
	}
	updated := time.Unix(updatedUnix, 0)

	expired := s.opts.expired(updated)
	if expired {
		if err := db.Exec(`DELETE FROM turns WHERE conversation_id = ?`, key).Error; err != nil {
			return time.Time{}, fmt.Errorf("failed to reset conversation: %w", err)
		}
	}
	if bump || expired {
		if err := db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, now.Unix(), key).Error; err != nil {
			return time.Time{}, fmt.Errorf("failed to update conversation: %w", err)
		}
		updated = time.Unix(now.Unix(), 0)
	}
	return updated, nil
}

func (s *SQLStore) load(db *gorm.DB, key string) ([]models.Turn, error) {
	query := `
		SELECT payload
		FROM turns
		WHERE conversation_id = ?
		ORDER BY id ASC`

	rows, err := db.Raw(query, key).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		var t models.Turn
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, fmt.Errorf("failed to decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bound(turns, s.opts.maxTurns), nil
}
