// Package audit records login outcomes. Only the provider, the outcome, the
// failure kind and, on success, the external account id are written.
package audit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schema string

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one finished login attempt.
type Event struct {
	Provider   string
	Outcome    string
	Kind       string
	ExternalID string
	OccurredAt time.Time
}

// Recorder stores events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Nop discards events. Used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRecorder writes events to the login_events table.
type PostgresRecorder struct {
	db execer
}

func NewPostgresRecorder(db execer) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// EnsureSchema creates the login_events table if it does not exist.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

const insertEvent = `INSERT INTO login_events (id, provider, outcome, kind, external_id, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

func (r *PostgresRecorder) Record(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	_, err := r.db.Exec(ctx, insertEvent,
		uuid.New(), e.Provider, e.Outcome, e.Kind, e.ExternalID, e.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}
