package task

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sucursal-ops/sucursal-ops/internal/authz"
	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

type memoryRepo struct {
	tasks  map[int64]Task
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tasks: make(map[int64]Task)}
}

func (r *memoryRepo) Create(ctx context.Context, input CreateTaskInput) (int64, error) {
	r.nextID++
	r.tasks[r.nextID] = Task{
		ID:          r.nextID,
		BranchID:    input.BranchID,
		Category:    input.Category,
		Title:       input.Title,
		Description: input.Description,
		AssignerID:  input.AssignerID,
		AssignedOn:  input.AssignedOn,
		DueOn:       input.DueOn,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
	return r.nextID, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, shared.NotFoundf("task %d not found", id)
	}
	return t, nil
}

func (r *memoryRepo) GetForBranch(ctx context.Context, id, branchID int64) (Task, error) {
	t, ok := r.tasks[id]
	if !ok || t.BranchID != branchID {
		return Task{}, shared.NotFoundf("task %d not found", id)
	}
	return t, nil
}

func (r *memoryRepo) List(ctx context.Context, req ListTasksRequest) ([]Task, error) {
	var out []Task
	for _, t := range r.tasks {
		if req.BranchID != 0 && t.BranchID != req.BranchID {
			continue
		}
		if req.Category != "" && t.Category != req.Category {
			continue
		}
		if req.Status != "" && t.Status != req.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	t, ok := r.tasks[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	r.tasks[id] = t
	return true, nil
}

func (r *memoryRepo) Complete(ctx context.Context, id, completerID int64, at time.Time) error {
	t, ok := r.tasks[id]
	if !ok {
		return shared.NotFoundf("task %d not found", id)
	}
	t.Status = StatusCompleted
	t.CompleterID = &completerID
	t.CompletedAt = &at
	r.tasks[id] = t
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	delete(r.tasks, id)
	return nil
}

type stubResolver struct{}

func (stubResolver) ResolveBranchRef(ctx context.Context, localBranchID int64) (int64, error) {
	return localBranchID, nil
}

func (stubResolver) EmployeeName(ctx context.Context, employeeID int64) string {
	return "Empleado " + strconv.FormatInt(employeeID, 10)
}

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, stubResolver{}).WithClock(func() time.Time { return testNow })
}

func supervisor() authz.Principal {
	return authz.Principal{EmployeeID: 7, BranchID: 2, Rol: "Encargado de sucursal"}
}

func employee() authz.Principal {
	return authz.Principal{EmployeeID: 9, BranchID: 2, Rol: "Vendedor"}
}

func TestCreateTask(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	created, err := svc.Create(context.Background(), supervisor(), CreateTaskInput{
		Category: CategoryCleanliness,
		Title:    "Limpieza de vidriera",
		DueOn:    testNow.Add(72 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)
	require.Equal(t, int64(2), created.BranchID)
	require.Equal(t, int64(7), created.AssignerID)
	require.Equal(t, "Empleado 7", created.AssignerName)
	// Assignment date defaults to today at midnight.
	require.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), created.AssignedOn)
}

func TestCreateTaskValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, employee(), CreateTaskInput{
		Category: CategoryCleanliness, Title: "Limpieza", DueOn: testNow.Add(24 * time.Hour),
	})
	require.Equal(t, shared.KindPreconditionFailed, shared.KindOf(err))

	_, err = svc.Create(ctx, supervisor(), CreateTaskInput{
		Category: CategoryCleanliness, Title: "   ", DueOn: testNow.Add(24 * time.Hour),
	})
	require.Equal(t, shared.KindValidationError, shared.KindOf(err))

	_, err = svc.Create(ctx, supervisor(), CreateTaskInput{
		Category: Category("INVENTADA"), Title: "Limpieza", DueOn: testNow.Add(24 * time.Hour),
	})
	require.Equal(t, shared.KindValidationError, shared.KindOf(err))

	_, err = svc.Create(ctx, supervisor(), CreateTaskInput{
		Category: CategoryCleanliness, Title: "Limpieza",
	})
	require.Equal(t, shared.KindValidationError, shared.KindOf(err))
}

func TestCreateTaskDueBeforeAssignment(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.Create(context.Background(), supervisor(), CreateTaskInput{
		Category:   CategoryMaintenance,
		Title:      "Cambiar luminaria",
		AssignedOn: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		DueOn:      time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, shared.KindValidationError, shared.KindOf(err))
	require.Contains(t, err.Error(), "precedes assignment date")
}

func TestStartTask(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, supervisor(), CreateTaskInput{
		Category: CategoryAdmin, Title: "Cargar facturas", DueOn: testNow.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	started, err := svc.Start(ctx, employee(), created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, started.Status)

	// Forward-only: a second start finds the task no longer pending.
	_, err = svc.Start(ctx, employee(), created.ID)
	require.Equal(t, shared.KindPreconditionFailed, shared.KindOf(err))
}

func TestCompleteTask(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, supervisor(), CreateTaskInput{
		Category: CategoryMaintenance, Title: "Revisar heladera", DueOn: testNow.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	done, err := svc.Complete(ctx, employee(), created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.Equal(t, int64(9), *done.CompleterID)
	require.Equal(t, testNow, *done.CompletedAt)

	_, err = svc.Complete(ctx, employee(), created.ID)
	require.Equal(t, shared.KindPreconditionFailed, shared.KindOf(err))
	require.Contains(t, err.Error(), "already completed")
}

func TestCompleteStockControlTaskBlocked(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, supervisor(), CreateTaskInput{
		Category: CategoryStockControl, Title: "Conteo gondola", DueOn: testNow.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, employee(), created.ID)
	require.Equal(t, shared.KindPreconditionFailed, shared.KindOf(err))
	require.Contains(t, err.Error(), "count is closed")
}

func TestTaskBranchScoping(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, supervisor(), CreateTaskInput{
		Category: CategoryCleanliness, Title: "Limpieza", DueOn: testNow.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	other := authz.Principal{EmployeeID: 1, BranchID: 99, Rol: "Vendedor"}
	_, err = svc.Get(ctx, other, created.ID)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))

	listed, err := svc.List(ctx, other, ListTasksRequest{})
	require.NoError(t, err)
	require.Empty(t, listed)
}
