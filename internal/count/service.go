package count

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sucursal-ops/sucursal-ops/internal/authz"
	"github.com/sucursal-ops/sucursal-ops/internal/refdata"
	"github.com/sucursal-ops/sucursal-ops/internal/shared"
	"github.com/sucursal-ops/sucursal-ops/internal/task"
)

// TaskStore is the slice of the task repository the count workflow
// needs. Satisfied by task.Repository.
type TaskStore interface {
	Create(ctx context.Context, input task.CreateTaskInput) (int64, error)
	Get(ctx context.Context, id int64) (task.Task, error)
	List(ctx context.Context, req task.ListTasksRequest) ([]task.Task, error)
	Complete(ctx context.Context, id, completerID int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
}

// Service governs the count state machine.
type Service struct {
	repo     Repository
	tasks    TaskStore
	resolver refdata.Resolver
	audit    *shared.AuditTrail
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, tasks TaskStore, resolver refdata.Resolver, audit *shared.AuditTrail, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		tasks:    tasks,
		resolver: resolver,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetByTask returns the count linked to a task, branch-scoped.
func (s *Service) GetByTask(ctx context.Context, actor authz.Principal, taskID int64) (StockCount, error) {
	c, err := s.repo.GetByTask(ctx, taskID, actor.BranchID)
	if err != nil {
		return StockCount{}, err
	}
	return s.assemble(ctx, c)
}

// GetByID returns a count by its own id, branch-scoped.
func (s *Service) GetByID(ctx context.Context, actor authz.Principal, countID int64) (StockCount, error) {
	c, err := s.repo.GetByID(ctx, countID, actor.BranchID)
	if err != nil {
		return StockCount{}, err
	}
	return s.assemble(ctx, c)
}

// UpdateLineItem updates one line's actual count and notes, recomputes
// aggregates and stamps the count timestamp. Draft only.
func (s *Service) UpdateLineItem(ctx context.Context, actor authz.Principal, countID int64, update LineUpdate) (CountLine, error) {
	c, err := s.repo.GetByID(ctx, countID, actor.BranchID)
	if err != nil {
		return CountLine{}, err
	}
	if c.Status != StatusDraft {
		return CountLine{}, shared.Preconditionf("must be in draft to edit, count is %s", c.Status)
	}

	line, err := s.repo.GetLine(ctx, countID, update.LineID)
	if err != nil {
		return CountLine{}, err
	}
	ApplyUpdate(&line, update)

	countedAt := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		lines, err := s.repo.ListLines(ctx, countID)
		if err != nil {
			return err
		}
		for i := range lines {
			if lines[i].ID == line.ID {
				lines[i] = line
			}
		}
		return tx.SetAggregates(ctx, countID, Recalculate(lines), countedAt)
	})
	if err != nil {
		return CountLine{}, err
	}
	s.trail(ctx, actor, c, "line_updated", map[string]any{"line_id": line.ID})
	return line, nil
}

// SaveDraft applies a batch of line updates atomically, recomputes
// aggregates and stamps the count timestamp. Draft only.
func (s *Service) SaveDraft(ctx context.Context, actor authz.Principal, countID int64, updates []LineUpdate) (StockCount, error) {
	c, err := s.repo.GetByID(ctx, countID, actor.BranchID)
	if err != nil {
		return StockCount{}, err
	}
	if c.Status != StatusDraft {
		return StockCount{}, shared.Preconditionf("must be in draft to save, count is %s", c.Status)
	}

	countedAt := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines, err := s.repo.ListLines(ctx, countID)
		if err != nil {
			return err
		}
		byID := make(map[int64]*CountLine, len(lines))
		for i := range lines {
			byID[lines[i].ID] = &lines[i]
		}
		for _, update := range updates {
			line, ok := byID[update.LineID]
			if !ok {
				return shared.NotFoundf("line item %d not found in count %d", update.LineID, countID)
			}
			ApplyUpdate(line, update)
			if err := tx.UpdateLine(ctx, *line); err != nil {
				return err
			}
		}
		return tx.SetAggregates(ctx, countID, Recalculate(lines), countedAt)
	})
	if err != nil {
		return StockCount{}, err
	}
	s.trail(ctx, actor, c, "draft_saved", map[string]any{"updates": len(updates)})
	return s.GetByID(ctx, actor, countID)
}

// Submit moves a fully-counted draft to submitted. The transition is a
// conditional update so two concurrent submits cannot both pass.
func (s *Service) Submit(ctx context.Context, actor authz.Principal, countID int64) (StockCount, error) {
	c, err := s.repo.GetByID(ctx, countID, actor.BranchID)
	if err != nil {
		return StockCount{}, err
	}
	if c.Status != StatusDraft {
		return StockCount{}, shared.Preconditionf("must be in draft to submit, count is %s", c.Status)
	}
	lines, err := s.repo.ListLines(ctx, countID)
	if err != nil {
		return StockCount{}, err
	}
	uncounted := 0
	for _, line := range lines {
		if line.Actual == nil {
			uncounted++
		}
	}
	if uncounted > 0 {
		return StockCount{}, shared.Preconditionf("%d items not yet counted", uncounted)
	}

	countedAt := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		moved, err := tx.UpdateStatusIf(ctx, countID, StatusDraft, StatusSubmitted)
		if err != nil {
			return err
		}
		if !moved {
			return shared.Preconditionf("must be in draft to submit")
		}
		return tx.SetAggregates(ctx, countID, Recalculate(lines), countedAt)
	})
	if err != nil {
		return StockCount{}, err
	}
	s.trail(ctx, actor, c, "submitted", nil)
	return s.GetByID(ctx, actor, countID)
}

// Review approves or rejects a submitted count. Approval does not
// complete the linked task; that happens at close.
func (s *Service) Review(ctx context.Context, actor authz.Principal, countID int64, decision ReviewDecision, comment *string) (StockCount, error) {
	if !authz.CanPerform(actor, authz.OpReviewCount) {
		return StockCount{}, shared.Preconditionf("supervisor role required to review")
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return StockCount{}, shared.Validationf("decision must be %q or %q", DecisionApprove, DecisionReject)
	}
	c, err := s.repo.GetByID(ctx, countID, actor.BranchID)
	if err != nil {
		return StockCount{}, err
	}
	if c.Status != StatusSubmitted {
		return StockCount{}, shared.Preconditionf("only a submitted count can be reviewed, count is %s", c.Status)
	}

	reviewedAt := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		moved, err := tx.UpdateStatusIf(ctx, countID, StatusSubmitted, Status(decision))
		if err != nil {
			return err
		}
		if !moved {
			return shared.Preconditionf("only a submitted count can be reviewed")
		}
		return tx.SetReview(ctx, countID, actor.EmployeeID, reviewedAt, comment)
	})
	if err != nil {
		return StockCount{}, err
	}
	s.trail(ctx, actor, c, "reviewed", map[string]any{"decision": string(decision)})
	return s.GetByID(ctx, actor, countID)
}

// Close finalises an approved count and completes the linked task. This
// second supervisor action is deliberately separate from review.
func (s *Service) Close(ctx context.Context, actor authz.Principal, countID int64) (StockCount, error) {
	if !authz.CanPerform(actor, authz.OpCloseCount) {
		return StockCount{}, shared.Preconditionf("supervisor role required to close")
	}
	c, err := s.repo.GetByID(ctx, countID, actor.BranchID)
	if err != nil {
		return StockCount{}, err
	}
	if c.Status != StatusApproved {
		return StockCount{}, shared.Preconditionf("only an approved count can be closed, count is %s", c.Status)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		moved, err := tx.UpdateStatusIf(ctx, countID, StatusApproved, StatusClosed)
		if err != nil {
			return err
		}
		if !moved {
			return shared.Preconditionf("only an approved count can be closed")
		}
		return nil
	})
	if err != nil {
		return StockCount{}, err
	}

	if err := s.tasks.Complete(ctx, c.TaskID, actor.EmployeeID, s.now()); err != nil {
		// The count is closed; a missing task row (already archived) is
		// logged, not surfaced.
		s.logger.Error("complete task on close",
			slog.Int64("task_id", c.TaskID), slog.Any("error", err))
	}
	s.trail(ctx, actor, c, "closed", map[string]any{"task_id": c.TaskID})
	return s.GetByID(ctx, actor, countID)
}

// AuditSummary aggregates branch counts for the audit view.
func (s *Service) AuditSummary(ctx context.Context, actor authz.Principal) (AuditSummary, error) {
	return s.repo.AuditSummary(ctx, actor.BranchID)
}

// AuditList returns filtered counts with lines and names resolved.
func (s *Service) AuditList(ctx context.Context, actor authz.Principal, req AuditListRequest) ([]StockCount, error) {
	counts, err := s.repo.ListForAudit(ctx, actor.BranchID, req)
	if err != nil {
		return nil, err
	}
	out := make([]StockCount, len(counts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, c := range counts {
		g.Go(func() error {
			full, err := s.assemble(gctx, c)
			if err != nil {
				return err
			}
			out[i] = full
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) assemble(ctx context.Context, c StockCount) (StockCount, error) {
	lines, err := s.repo.ListLines(ctx, c.ID)
	if err != nil {
		return StockCount{}, err
	}
	c.Lines = lines
	c.EmployeeName = s.resolver.EmployeeName(ctx, c.EmployeeID)
	if c.ReviewerID != nil {
		c.ReviewerName = s.resolver.EmployeeName(ctx, *c.ReviewerID)
	}
	return c, nil
}

func (s *Service) trail(ctx context.Context, actor authz.Principal, c StockCount, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.BestEffort(ctx, shared.AuditEntry{
		ActorID:  actor.EmployeeID,
		BranchID: actor.BranchID,
		Entity:   "conteo_stock",
		EntityID: c.ID,
		Action:   action,
		Meta:     meta,
		At:       s.now(),
	})
}
