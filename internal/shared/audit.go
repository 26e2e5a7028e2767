package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in action_logs.
type AuditLog struct {
	ActorID   int64
	ActorName string
	Action    string
	Entity    string
	EntityID  string
	Outcome   string
	Meta      map[string]any
	At        time.Time
}

// Audit outcomes.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailure = "FAILURE"
)

// AuditLogger writes records into action_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" {
		return errors.New("audit log requires action and entity")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	if log.Outcome == "" {
		log.Outcome = OutcomeSuccess
	}
	if log.At.IsZero() {
		log.At = time.Now()
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO action_logs (actor_id, actor_name, action, entity, entity_id, outcome, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ActorID, log.ActorName, log.Action, log.Entity, log.EntityID, log.Outcome, metaJSON, log.At)
	return err
}
