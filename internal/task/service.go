package task

import (
	"context"
	"strings"
	"time"

	"github.com/sucursal-ops/sucursal-ops/internal/authz"
	"github.com/sucursal-ops/sucursal-ops/internal/refdata"
	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

// Service governs task creation and status transitions.
type Service struct {
	repo     Repository
	resolver refdata.Resolver
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, resolver refdata.Resolver) *Service {
	return &Service{repo: repo, resolver: resolver, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates and inserts a task assigned by a supervisor.
func (s *Service) Create(ctx context.Context, actor authz.Principal, input CreateTaskInput) (Task, error) {
	if !authz.CanPerform(actor, authz.OpCreateTask) {
		return Task{}, shared.Preconditionf("supervisor role required to create tasks")
	}
	if strings.TrimSpace(input.Title) == "" {
		return Task{}, shared.Validationf("title is required")
	}
	if !input.Category.Valid() {
		return Task{}, shared.Validationf("unknown category %q", input.Category)
	}
	if input.DueOn.IsZero() {
		return Task{}, shared.Validationf("due date is required")
	}
	if input.AssignedOn.IsZero() {
		input.AssignedOn = s.today()
	}
	// Hardened invariant: the original checked this inconsistently.
	if input.DueOn.Before(input.AssignedOn) {
		return Task{}, shared.Validationf("due date %s precedes assignment date %s",
			input.DueOn.Format("2006-01-02"), input.AssignedOn.Format("2006-01-02"))
	}
	input.BranchID = actor.BranchID
	input.AssignerID = actor.EmployeeID

	id, err := s.repo.Create(ctx, input)
	if err != nil {
		return Task{}, err
	}
	return s.Get(ctx, actor, id)
}

// Get returns a branch-scoped task with the assigner name resolved.
func (s *Service) Get(ctx context.Context, actor authz.Principal, id int64) (Task, error) {
	t, err := s.repo.GetForBranch(ctx, id, actor.BranchID)
	if err != nil {
		return Task{}, err
	}
	t.AssignerName = s.resolver.EmployeeName(ctx, t.AssignerID)
	return t, nil
}

// List returns tasks for the actor's branch.
func (s *Service) List(ctx context.Context, actor authz.Principal, req ListTasksRequest) ([]Task, error) {
	req.BranchID = actor.BranchID
	tasks, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].AssignerName = s.resolver.EmployeeName(ctx, tasks[i].AssignerID)
	}
	return tasks, nil
}

// Start moves a pending task to in-progress.
func (s *Service) Start(ctx context.Context, actor authz.Principal, id int64) (Task, error) {
	if _, err := s.repo.GetForBranch(ctx, id, actor.BranchID); err != nil {
		return Task{}, err
	}
	moved, err := s.repo.UpdateStatus(ctx, id, StatusPending, StatusInProgress)
	if err != nil {
		return Task{}, err
	}
	if !moved {
		return Task{}, shared.Preconditionf("task must be pending to start")
	}
	return s.Get(ctx, actor, id)
}

// Complete marks a non-stock task done. Stock-control tasks complete
// only through the count close transition.
func (s *Service) Complete(ctx context.Context, actor authz.Principal, id int64) (Task, error) {
	t, err := s.repo.GetForBranch(ctx, id, actor.BranchID)
	if err != nil {
		return Task{}, err
	}
	if t.Category == CategoryStockControl {
		return Task{}, shared.Preconditionf("stock-control tasks complete when their count is closed")
	}
	if t.Status == StatusCompleted {
		return Task{}, shared.Preconditionf("task already completed")
	}
	if err := s.repo.Complete(ctx, id, actor.EmployeeID, s.now()); err != nil {
		return Task{}, err
	}
	return s.Get(ctx, actor, id)
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
