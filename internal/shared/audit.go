package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry records one workflow transition in the annex store.
type AuditEntry struct {
	ID       uuid.UUID
	ActorID  int64
	BranchID int64
	Entity   string
	EntityID int64
	Action   string
	Meta     map[string]any
	At       time.Time
}

// AuditTrail writes workflow transitions into audit_trail. Transitions
// are recorded after the mutation commits; a trail write failure is
// logged, never surfaced to the caller.
type AuditTrail struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditTrail returns an AuditTrail over the annex pool.
func NewAuditTrail(pool *pgxpool.Pool, logger *slog.Logger) *AuditTrail {
	return &AuditTrail{pool: pool, logger: logger}
}

// Record persists the entry.
func (t *AuditTrail) Record(ctx context.Context, entry AuditEntry) error {
	if t == nil {
		return errors.New("audit trail not initialised")
	}
	if entry.Entity == "" || entry.Action == "" {
		return errors.New("audit entry requires entity and action")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	_, err = t.pool.Exec(ctx, `INSERT INTO audit_trail (id, actor_id, branch_id, entity, entity_id, action, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE(NULLIF($8, '0001-01-01 00:00:00'::timestamptz), NOW()))`,
		entry.ID, entry.ActorID, entry.BranchID, entry.Entity, entry.EntityID, entry.Action, metaJSON, entry.At)
	if err != nil {
		t.logger.Error("record audit entry", slog.Any("error", err))
	}
	return err
}

// BestEffort records the entry and swallows the error after logging.
func (t *AuditTrail) BestEffort(ctx context.Context, entry AuditEntry) {
	if t == nil {
		return
	}
	_ = t.Record(ctx, entry)
}
