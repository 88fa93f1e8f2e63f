package count

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sucursal-ops/sucursal-ops/internal/authz"
	"github.com/sucursal-ops/sucursal-ops/internal/shared"
	"github.com/sucursal-ops/sucursal-ops/internal/task"
)

// CreateCount runs the two-store create: a task insert in the source
// store followed by the count and its lines in one annex transaction.
// The stores do not share a transaction, so an annex failure triggers a
// compensating delete of the task. This is a best-effort saga; a crash
// between the two writes leaves an orphaned task that ReconcileOrphans
// picks up.
func (s *Service) CreateCount(ctx context.Context, actor authz.Principal, input CreateCountInput) (StockCount, error) {
	if !authz.CanPerform(actor, authz.OpCreateCount) {
		return StockCount{}, shared.Preconditionf("supervisor role required to create counts")
	}
	if len(input.Lines) == 0 {
		return StockCount{}, shared.Validationf("at least one product is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return StockCount{}, shared.Validationf("title is required")
	}
	if input.DueDate.IsZero() {
		return StockCount{}, shared.Validationf("due date is required")
	}
	today := s.today()
	if input.DueDate.Before(today) {
		return StockCount{}, shared.Validationf("due date %s precedes assignment date %s",
			input.DueDate.Format("2006-01-02"), today.Format("2006-01-02"))
	}

	// Step 1: the cheap task insert commits first to keep the
	// inconsistency window small.
	taskID, err := s.tasks.Create(ctx, task.CreateTaskInput{
		BranchID:    actor.BranchID,
		Category:    task.CategoryStockControl,
		Title:       input.Title,
		Description: input.Description,
		AssignerID:  actor.EmployeeID,
		AssignedOn:  today,
		DueOn:       input.DueDate,
	})
	if err != nil {
		return StockCount{}, err
	}

	// Step 2: count plus lines in one annex transaction.
	var countID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateCount(ctx, StockCount{
			TaskID:     taskID,
			BranchID:   actor.BranchID,
			EmployeeID: actor.EmployeeID,
			Status:     StatusDraft,
			Aggregates: Aggregates{TotalItems: len(input.Lines)},
		})
		if err != nil {
			return err
		}
		countID = id
		for _, snap := range input.Lines {
			if _, err := tx.CreateLine(ctx, id, snap); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Step 3: compensate the task insert.
		if delErr := s.tasks.Delete(ctx, taskID); delErr != nil {
			s.logger.Error("compensating task delete failed, manual cleanup needed",
				slog.Int64("task_id", taskID), slog.Any("error", delErr))
			return StockCount{}, shared.DependencyWriteUncompensated("count insert failed and task delete failed", err)
		}
		return StockCount{}, shared.DependencyWrite("count insert failed, task compensated", err)
	}

	s.trail(ctx, actor, StockCount{ID: countID, BranchID: actor.BranchID}, "created",
		map[string]any{"task_id": taskID, "lines": len(input.Lines)})
	return s.GetByID(ctx, actor, countID)
}

// ReconcileOrphans finds stock-control tasks with no matching count and
// removes those older than the grace window. Fresh orphans may belong
// to an in-flight create and are only logged. The sweep is idempotent.
func (s *Service) ReconcileOrphans(ctx context.Context, branchID int64, grace time.Duration) (int, error) {
	tasks, err := s.tasks.List(ctx, task.ListTasksRequest{
		BranchID: branchID,
		Category: task.CategoryStockControl,
		Status:   task.StatusPending,
		Limit:    200,
	})
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	withCounts, err := s.repo.TasksWithCounts(ctx, ids)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-grace)
	removed := 0
	for _, t := range tasks {
		if withCounts[t.ID] {
			continue
		}
		if t.CreatedAt.After(cutoff) {
			s.logger.Info("orphan task inside grace window, skipping",
				slog.Int64("task_id", t.ID), slog.Time("created_at", t.CreatedAt))
			continue
		}
		if err := s.tasks.Delete(ctx, t.ID); err != nil {
			s.logger.Error("delete orphan task", slog.Int64("task_id", t.ID), slog.Any("error", err))
			continue
		}
		s.logger.Warn("removed orphan stock-control task",
			slog.Int64("task_id", t.ID), slog.Int64("branch_id", branchID))
		removed++
	}
	return removed, nil
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
