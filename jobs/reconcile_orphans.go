package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sucursal-ops/sucursal-ops/internal/count"
	jobmetrics "github.com/sucursal-ops/sucursal-ops/internal/jobs"
)

// defaultOrphanGrace protects in-flight two-store creates from the
// sweep.
const defaultOrphanGrace = time.Hour

// ReconcileOrphansJob removes stock-control tasks whose count insert
// never committed, branch by branch.
type ReconcileOrphansJob struct {
	Source  *pgxpool.Pool
	Counts  *count.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileOrphansJob initialises the orphan sweep handler.
func NewReconcileOrphansJob(source *pgxpool.Pool, counts *count.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileOrphansJob {
	return &ReconcileOrphansJob{Source: source, Counts: counts, Logger: logger, Metrics: metrics}
}

// Handle executes the sweep.
func (j *ReconcileOrphansJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil || j.Counts == nil {
		return errors.New("reconcile orphans: handler not configured")
	}
	var payload ReconcileOrphansPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	grace := defaultOrphanGrace
	if payload.GraceMinutes > 0 {
		grace = time.Duration(payload.GraceMinutes) * time.Minute
	}

	tracker := j.metrics().Track(TaskReconcileOrphans)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	branches, err := listBranchIDs(ctx, j.Source)
	if err != nil {
		resultErr = err
		j.logger().Error("list branches", slog.Any("error", err))
		return resultErr
	}

	removed := 0
	for _, branchID := range branches {
		n, err := j.Counts.ReconcileOrphans(ctx, branchID, grace)
		if err != nil {
			resultErr = err
			j.logger().Error("reconcile branch",
				slog.Int64("branch_id", branchID), slog.Any("error", err))
			return resultErr
		}
		removed += n
	}
	j.Metrics.AddRemovedOrphans(removed)
	j.logger().Info("orphan reconciliation finished",
		slog.Int("branches", len(branches)), slog.Int("removed", removed))
	return nil
}

func listBranchIDs(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM sucursales ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *ReconcileOrphansJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ReconcileOrphansJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
