package suggestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sucursal-ops/sucursal-ops/internal/authz"
	"github.com/sucursal-ops/sucursal-ops/internal/refdata"
	"github.com/sucursal-ops/sucursal-ops/internal/shared"
	"github.com/sucursal-ops/sucursal-ops/internal/task"
)

// titleBudget bounds the synthesized task title; longer product lists
// are truncated with an ellipsis marker.
const (
	titleBudget   = 250
	titleTruncate = 247
)

// TaskCreator is the slice of the task repository the promoter needs.
// Satisfied by task.Repository.
type TaskCreator interface {
	Create(ctx context.Context, input task.CreateTaskInput) (int64, error)
}

// Service governs the suggestion workflow and task promotion.
type Service struct {
	repo     Repository
	tasks    TaskCreator
	resolver refdata.Resolver
	audit    *shared.AuditTrail
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, tasks TaskCreator, resolver refdata.Resolver, audit *shared.AuditTrail, logger *slog.Logger) *Service {
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

// Create registers a pending suggestion. Any branch employee may
// propose.
func (s *Service) Create(ctx context.Context, actor authz.Principal, input CreateSuggestionInput) (Suggestion, error) {
	if !authz.CanPerform(actor, authz.OpCreateSuggestion) {
		return Suggestion{}, shared.Preconditionf("branch assignment required")
	}
	if len(input.Products) == 0 {
		return Suggestion{}, shared.Validationf("at least one product is required")
	}
	justification := strings.TrimSpace(input.Justification)
	if justification == "" {
		return Suggestion{}, shared.Validationf("justification is required")
	}

	id, err := s.repo.Create(ctx, Suggestion{
		BranchID:      actor.BranchID,
		ProposerID:    actor.EmployeeID,
		Products:      input.Products,
		Justification: justification,
		Status:        StatusPending,
	})
	if err != nil {
		return Suggestion{}, err
	}
	return s.Get(ctx, actor, id)
}

// Get returns a branch-scoped suggestion with names resolved.
func (s *Service) Get(ctx context.Context, actor authz.Principal, id int64) (Suggestion, error) {
	sg, err := s.repo.Get(ctx, id, actor.BranchID)
	if err != nil {
		return Suggestion{}, err
	}
	return s.assemble(ctx, sg), nil
}

// List returns suggestions for the actor's branch.
func (s *Service) List(ctx context.Context, actor authz.Principal, status Status, limit int) ([]Suggestion, error) {
	suggestions, err := s.repo.List(ctx, actor.BranchID, status, limit)
	if err != nil {
		return nil, err
	}
	for i := range suggestions {
		suggestions[i] = s.assemble(ctx, suggestions[i])
	}
	return suggestions, nil
}

// PendingCount returns the number of unresolved suggestions for badges.
func (s *Service) PendingCount(ctx context.Context, actor authz.Principal) (int, error) {
	if actor.BranchID == 0 {
		return 0, nil
	}
	return s.repo.CountPending(ctx, actor.BranchID)
}

// Resolve approves or rejects a pending suggestion. Approval requires a
// scheduled date and promotes the proposal into a stock-control task;
// the suggestion records the spawned task id but the count itself is
// initiated separately against that task.
func (s *Service) Resolve(ctx context.Context, actor authz.Principal, id int64, input ResolveInput) (Suggestion, error) {
	if !authz.CanPerform(actor, authz.OpResolveSuggestion) {
		return Suggestion{}, shared.Preconditionf("supervisor role required to resolve suggestions")
	}
	if input.Action != ActionApprove && input.Action != ActionReject {
		return Suggestion{}, shared.Validationf("action must be %q or %q", ActionApprove, ActionReject)
	}

	sg, err := s.repo.Get(ctx, id, actor.BranchID)
	if err != nil {
		return Suggestion{}, err
	}
	if sg.Status != StatusPending {
		return Suggestion{}, shared.Preconditionf("suggestion already resolved")
	}

	var scheduledOn *string
	var scheduledDate time.Time
	if input.Action == ActionApprove {
		if input.ScheduledOn == "" {
			return Suggestion{}, shared.Preconditionf("scheduled date is required to approve")
		}
		scheduledDate, err = time.Parse("2006-01-02", input.ScheduledOn)
		if err != nil {
			return Suggestion{}, shared.Validationf("invalid scheduled date, use YYYY-MM-DD")
		}
		scheduledOn = &input.ScheduledOn
	}

	to := StatusRejected
	if input.Action == ActionApprove {
		to = StatusApproved
	}
	moved, err := s.repo.Resolve(ctx, id, to, actor.EmployeeID, s.now(), scheduledOn, input.Comment)
	if err != nil {
		return Suggestion{}, err
	}
	if !moved {
		return Suggestion{}, shared.Preconditionf("suggestion already resolved")
	}

	if input.Action == ActionApprove {
		taskID, err := s.promote(ctx, actor, sg, scheduledDate)
		if err != nil {
			// The resolution committed; promotion failure leaves an
			// approved suggestion without a task, surfaced for retry by
			// support.
			s.logger.Error("promote suggestion to task",
				slog.Int64("suggestion_id", id), slog.Any("error", err))
			return Suggestion{}, shared.DependencyWrite("task creation for approved suggestion failed", err)
		}
		if err := s.repo.SetSpawnedTask(ctx, id, taskID); err != nil {
			s.logger.Error("link spawned task",
				slog.Int64("suggestion_id", id), slog.Int64("task_id", taskID), slog.Any("error", err))
		}
	}

	s.trailResolve(ctx, actor, id, to)
	return s.Get(ctx, actor, id)
}

// promote synthesizes the stock-control task from the suggestion.
func (s *Service) promote(ctx context.Context, actor authz.Principal, sg Suggestion, dueOn time.Time) (int64, error) {
	names := make([]string, 0, len(sg.Products))
	for _, p := range sg.Products {
		names = append(names, p.Name)
	}
	title := "Conteo sugerido: " + strings.Join(names, ", ")
	if runes := []rune(title); len(runes) > titleBudget {
		title = string(runes[:titleTruncate]) + "..."
	}

	now := s.now()
	return s.tasks.Create(ctx, task.CreateTaskInput{
		BranchID:    actor.BranchID,
		Category:    task.CategoryStockControl,
		Title:       title,
		Description: fmt.Sprintf("Conteo de stock sugerido por empleado.\nMotivo: %s", sg.Justification),
		AssignerID:  actor.EmployeeID,
		AssignedOn:  time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
		DueOn:       dueOn,
	})
}

func (s *Service) assemble(ctx context.Context, sg Suggestion) Suggestion {
	sg.ProposerName = s.resolver.EmployeeName(ctx, sg.ProposerID)
	if sg.ResolverID != nil {
		sg.ResolverName = s.resolver.EmployeeName(ctx, *sg.ResolverID)
	}
	return sg
}

func (s *Service) trailResolve(ctx context.Context, actor authz.Principal, id int64, to Status) {
	if s.audit == nil {
		return
	}
	s.audit.BestEffort(ctx, shared.AuditEntry{
		ActorID:  actor.EmployeeID,
		BranchID: actor.BranchID,
		Entity:   "sugerencia_conteo",
		EntityID: id,
		Action:   "resolved",
		Meta:     map[string]any{"estado": string(to)},
		At:       s.now(),
	})
}
