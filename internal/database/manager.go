package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	dbconfig "github.com/TechSnatchers/classpulse2-sub000/pkg/database"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/interfaces"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

// Manager is the SQLite persistence layer: session records, the question
// bank, and the participant audit trail. All writes flow through a single
// goroutine; SQLite holds one write lock, and serializing writers in-process
// avoids busy-timeout churn. Reads run concurrently against the pool.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas, and ensures the schema.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := dbconfig.EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("database: write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("database: write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("database: write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// RegisterSession stores a session record. The session key is the primary
// key, so re-registering a key fails rather than silently rebinding it to a
// different owner.
func (m *Manager) RegisterSession(ctx context.Context, record *types.SessionRecord) error {
	if !types.IsValidSessionKey(record.SessionKey) {
		return types.ErrInvalidSessionKey
	}
	if record.AliasKey != "" && !types.IsValidSessionKey(record.AliasKey) {
		return types.ErrInvalidSessionKey
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO sessions (session_key, alias_key, owner_id, created_at)
			VALUES (?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			record.SessionKey,
			nullable(record.AliasKey),
			record.OwnerID,
			record.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// GetSession resolves a session record by primary key or alias.
func (m *Manager) GetSession(ctx context.Context, key string) (*types.SessionRecord, error) {
	query := `
		SELECT session_key, alias_key, owner_id, created_at
		FROM sessions
		WHERE session_key = ? OR alias_key = ?
	`

	row := m.db.QueryRowContext(ctx, query, key, key)

	var record types.SessionRecord
	var alias sql.NullString
	err := row.Scan(&record.SessionKey, &alias, &record.OwnerID, &record.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	if alias.Valid {
		record.AliasKey = alias.String
	}

	return &record, nil
}

// AddQuestion stores a bank question, assigning an ID when the caller did not.
func (m *Manager) AddQuestion(ctx context.Context, q *types.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}

	optionsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO questions (id, session_key, owner_id, text, options, time_limit_seconds, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			q.ID,
			nullable(q.SessionKey),
			nullable(q.OwnerID),
			q.Text,
			string(optionsJSON),
			q.TimeLimitSeconds,
			time.Now(),
		)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		return nil
	})
}

// PoolFor returns the tiered question pool for a session. Questions tagged
// to the session win; failing that, the owning instructor's untagged
// questions; failing that, the global untagged bank. Tiers never mix, so a
// session with even one dedicated question uses only its own material.
func (m *Manager) PoolFor(ctx context.Context, sessionKey string) ([]*types.Question, error) {
	tagged, err := m.queryQuestions(ctx,
		`SELECT id, session_key, owner_id, text, options, time_limit_seconds
		 FROM questions WHERE session_key = ? ORDER BY created_at`, sessionKey)
	if err != nil {
		return nil, err
	}
	if len(tagged) > 0 {
		return tagged, nil
	}

	record, err := m.GetSession(ctx, sessionKey)
	if err == nil {
		owned, err := m.queryQuestions(ctx,
			`SELECT id, session_key, owner_id, text, options, time_limit_seconds
			 FROM questions WHERE session_key IS NULL AND owner_id = ? ORDER BY created_at`, record.OwnerID)
		if err != nil {
			return nil, err
		}
		if len(owned) > 0 {
			return owned, nil
		}
	} else if err != interfaces.ErrSessionNotFound {
		return nil, err
	}

	return m.queryQuestions(ctx,
		`SELECT id, session_key, owner_id, text, options, time_limit_seconds
		 FROM questions WHERE session_key IS NULL AND owner_id IS NULL ORDER BY created_at`)
}

func (m *Manager) queryQuestions(ctx context.Context, query string, args ...interface{}) ([]*types.Question, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var questions []*types.Question
	for rows.Next() {
		var q types.Question
		var sessionKey, ownerID sql.NullString
		var optionsJSON string

		err := rows.Scan(&q.ID, &sessionKey, &ownerID, &q.Text, &optionsJSON, &q.TimeLimitSeconds)
		if err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		if sessionKey.Valid {
			q.SessionKey = sessionKey.String
		}
		if ownerID.Valid {
			q.OwnerID = ownerID.String
		}
		if err := json.Unmarshal([]byte(optionsJSON), &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal question options: %w", err)
		}

		questions = append(questions, &q)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question rows: %w", err)
	}

	return questions, nil
}

// RecordParticipantEvent appends a lifecycle fact to the audit trail.
func (m *Manager) RecordParticipantEvent(ctx context.Context, event *types.ParticipantEvent) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO participant_events (session_key, participant_id, name, contact, status, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			event.SessionKey,
			event.ParticipantID,
			event.Name,
			event.Contact,
			event.Status,
			event.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert participant event: %w", err)
		}
		return nil
	})
}

// ParticipantEvents returns a session's audit trail in chronological order.
func (m *Manager) ParticipantEvents(ctx context.Context, sessionKey string) ([]*types.ParticipantEvent, error) {
	query := `
		SELECT session_key, participant_id, name, contact, status, timestamp
		FROM participant_events
		WHERE session_key = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := m.db.QueryContext(ctx, query, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("query participant events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.ParticipantEvent
	for rows.Next() {
		var e types.ParticipantEvent
		err := rows.Scan(&e.SessionKey, &e.ParticipantID, &e.Name, &e.Contact, &e.Status, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan participant event row: %w", err)
		}
		events = append(events, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participant event rows: %w", err)
	}

	return events, nil
}

// HealthCheck validates connectivity and basic read access.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, "SELECT COUNT(*) FROM sessions LIMIT 1")
	if err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	_ = rows.Close()

	return nil
}

// Close drains the write loop and closes the pool; safe to call once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
