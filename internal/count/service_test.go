package count

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sucursal-ops/sucursal-ops/internal/authz"
	"github.com/sucursal-ops/sucursal-ops/internal/shared"
	"github.com/sucursal-ops/sucursal-ops/internal/task"
)

type memoryRepo struct {
	counts map[int64]StockCount
	lines  map[int64][]CountLine
	nextID int64
	nextLn int64

	failCreateCount bool
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		counts: make(map[int64]StockCount),
		lines:  make(map[int64][]CountLine),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetByID(ctx context.Context, id, branchID int64) (StockCount, error) {
	c, ok := r.counts[id]
	if !ok || c.BranchID != branchID {
		return StockCount{}, shared.NotFoundf("count not found")
	}
	return c, nil
}

func (r *memoryRepo) GetByTask(ctx context.Context, taskID, branchID int64) (StockCount, error) {
	for _, c := range r.counts {
		if c.TaskID == taskID && c.BranchID == branchID {
			return c, nil
		}
	}
	return StockCount{}, shared.NotFoundf("count not found")
}

func (r *memoryRepo) ListLines(ctx context.Context, countID int64) ([]CountLine, error) {
	return append([]CountLine(nil), r.lines[countID]...), nil
}

func (r *memoryRepo) GetLine(ctx context.Context, countID, lineID int64) (CountLine, error) {
	for _, line := range r.lines[countID] {
		if line.ID == lineID {
			return line, nil
		}
	}
	return CountLine{}, shared.NotFoundf("line item %d not found in count %d", lineID, countID)
}

func (r *memoryRepo) AuditSummary(ctx context.Context, branchID int64) (AuditSummary, error) {
	var s AuditSummary
	for _, c := range r.counts {
		if c.BranchID != branchID {
			continue
		}
		switch c.Status {
		case StatusSubmitted:
			s.PendingReview++
		case StatusApproved:
			s.AwaitingClosure++
		}
	}
	return s, nil
}

func (r *memoryRepo) ListForAudit(ctx context.Context, branchID int64, req AuditListRequest) ([]StockCount, error) {
	var out []StockCount
	for _, c := range r.counts {
		if c.BranchID != branchID {
			continue
		}
		if req.Status != "" && c.Status != req.Status {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *memoryRepo) TasksWithCounts(ctx context.Context, taskIDs []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(taskIDs))
	for _, id := range taskIDs {
		for _, c := range r.counts {
			if c.TaskID == id {
				found[id] = true
			}
		}
	}
	return found, nil
}

func (tx *memoryTx) CreateCount(ctx context.Context, c StockCount) (int64, error) {
	if tx.repo.failCreateCount {
		return 0, errors.New("annex store unavailable")
	}
	for _, existing := range tx.repo.counts {
		if existing.TaskID == c.TaskID {
			return 0, shared.Preconditionf("a count already exists for task %d", c.TaskID)
		}
	}
	tx.repo.nextID++
	c.ID = tx.repo.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	tx.repo.counts[c.ID] = c
	return c.ID, nil
}

func (tx *memoryTx) CreateLine(ctx context.Context, countID int64, snap LineSnapshot) (int64, error) {
	tx.repo.nextLn++
	line := CountLine{
		ID:          tx.repo.nextLn,
		CountID:     countID,
		ItemCode:    snap.ItemCode,
		Name:        snap.Name,
		UnitPrice:   snap.UnitPrice,
		SystemStock: snap.SystemStock,
		CreatedAt:   time.Now(),
	}
	tx.repo.lines[countID] = append(tx.repo.lines[countID], line)
	return line.ID, nil
}

func (tx *memoryTx) UpdateLine(ctx context.Context, line CountLine) error {
	lines := tx.repo.lines[line.CountID]
	for i := range lines {
		if lines[i].ID == line.ID {
			lines[i] = line
			return nil
		}
	}
	return shared.NotFoundf("line item %d not found in count %d", line.ID, line.CountID)
}

func (tx *memoryTx) SetAggregates(ctx context.Context, countID int64, agg Aggregates, countedAt time.Time) error {
	c, ok := tx.repo.counts[countID]
	if !ok {
		return shared.NotFoundf("count not found")
	}
	c.Aggregates = agg
	c.CountedAt = &countedAt
	c.UpdatedAt = time.Now()
	tx.repo.counts[countID] = c
	return nil
}

func (tx *memoryTx) UpdateStatusIf(ctx context.Context, countID int64, from, to Status) (bool, error) {
	c, ok := tx.repo.counts[countID]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = time.Now()
	tx.repo.counts[countID] = c
	return true, nil
}

func (tx *memoryTx) SetReview(ctx context.Context, countID, reviewerID int64, at time.Time, comment *string) error {
	c, ok := tx.repo.counts[countID]
	if !ok {
		return shared.NotFoundf("count not found")
	}
	c.ReviewerID = &reviewerID
	c.ReviewedAt = &at
	c.ReviewerComment = comment
	tx.repo.counts[countID] = c
	return nil
}

type memoryTaskStore struct {
	tasks      map[int64]task.Task
	nextID     int64
	failDelete bool
}

func newMemoryTaskStore() *memoryTaskStore {
	return &memoryTaskStore{tasks: make(map[int64]task.Task)}
}

func (s *memoryTaskStore) Create(ctx context.Context, input task.CreateTaskInput) (int64, error) {
	s.nextID++
	s.tasks[s.nextID] = task.Task{
		ID:          s.nextID,
		BranchID:    input.BranchID,
		Category:    input.Category,
		Title:       input.Title,
		Description: input.Description,
		AssignerID:  input.AssignerID,
		AssignedOn:  input.AssignedOn,
		DueOn:       input.DueOn,
		Status:      task.StatusPending,
		CreatedAt:   time.Now(),
	}
	return s.nextID, nil
}

func (s *memoryTaskStore) Get(ctx context.Context, id int64) (task.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, shared.NotFoundf("task %d not found", id)
	}
	return t, nil
}

func (s *memoryTaskStore) List(ctx context.Context, req task.ListTasksRequest) ([]task.Task, error) {
	var out []task.Task
	for _, t := range s.tasks {
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

func (s *memoryTaskStore) Complete(ctx context.Context, id, completerID int64, at time.Time) error {
	t, ok := s.tasks[id]
	if !ok {
		return shared.NotFoundf("task %d not found", id)
	}
	t.Status = task.StatusCompleted
	t.CompleterID = &completerID
	t.CompletedAt = &at
	s.tasks[id] = t
	return nil
}

func (s *memoryTaskStore) Delete(ctx context.Context, id int64) error {
	if s.failDelete {
		return errors.New("source store unavailable")
	}
	if _, ok := s.tasks[id]; !ok {
		return shared.NotFoundf("task %d not found", id)
	}
	delete(s.tasks, id)
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

func newTestService(repo *memoryRepo, tasks *memoryTaskStore) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, tasks, stubResolver{}, nil, logger).
		WithClock(func() time.Time { return testNow })
}

func supervisor() authz.Principal {
	return authz.Principal{EmployeeID: 7, BranchID: 2, Rol: "Encargado de sucursal"}
}

func employee() authz.Principal {
	return authz.Principal{EmployeeID: 9, BranchID: 2, Rol: "Vendedor"}
}

func seedDraft(t *testing.T, svc *Service, store *memoryTaskStore) StockCount {
	t.Helper()
	c, err := svc.CreateCount(context.Background(), supervisor(), CreateCountInput{
		Title:   "Conteo gondola bebidas",
		DueDate: testNow.Add(48 * time.Hour),
		Lines: []LineSnapshot{
			{ItemCode: "A-1", Name: "Agua 500ml", UnitPrice: 100, SystemStock: 10},
			{ItemCode: "A-2", Name: "Gaseosa 1.5L", UnitPrice: 50, SystemStock: 5},
			{ItemCode: "A-3", Name: "Jugo 1L", UnitPrice: 200, SystemStock: 3},
		},
	})
	require.NoError(t, err)
	require.Contains(t, store.tasks, c.TaskID)
	return c
}

func TestCreateCountTwoStores(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryTaskStore()
	svc := newTestService(repo, store)

	c := seedDraft(t, svc, store)

	require.Equal(t, StatusDraft, c.Status)
	require.Equal(t, 3, c.TotalItems)
	require.Equal(t, 0, c.ItemsCounted)
	require.Len(t, c.Lines, 3)

	linked := store.tasks[c.TaskID]
	require.Equal(t, task.CategoryStockControl, linked.Category)
	require.Equal(t, task.StatusPending, linked.Status)
	require.Equal(t, int64(2), linked.BranchID)
}

func TestCreateCountRequiresSupervisor(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newMemoryTaskStore())

	_, err := svc.CreateCount(context.Background(), employee(), CreateCountInput{
		Title:   "Conteo",
		DueDate: testNow.Add(24 * time.Hour),
		Lines:   []LineSnapshot{{ItemCode: "A-1", Name: "Agua", UnitPrice: 1, SystemStock: 1}},
	})
	require.Equal(t, shared.KindPreconditionFailed, shared.KindOf(err))
}

func TestCreateCountValidation(t *testing.T) {
	store := newMemoryTaskStore()
	svc := newTestService(newMemoryRepo(), store)
	ctx := context.Background()

	_, err := svc.CreateCount(ctx, supervisor(), CreateCountInput{
		Title:   "Sin productos",
		DueDate: testNow.Add(24 * time.Hour),
	})
	require.Equal(t, shared.KindValidationError, shared.KindOf(err))

	_, err = svc.CreateCount(ctx, supervisor(), CreateCountInput{
		Title:   "Vence ayer",
		DueDate: testNow.Add(-48 * time.Hour),
		Lines:   []LineSnapshot{{ItemCode: "A-1", Name: "Agua", UnitPrice: 1, SystemStock: 1}},
	})
	require.Equal(t, shared.KindValidationError, shared.KindOf(err))

	// Validation failures happen before any write.
	require.Empty(t, store.tasks)
}

func TestCreateCountCompensatesTaskOnAnnexFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.failCreateCount = true
	store := newMemoryTaskStore()
	svc := newTestService(repo, store)

	_, err := svc.CreateCount(context.Background(), supervisor(), CreateCountInput{
		Title:   "Conteo",
		DueDate: testNow.Add(24 * time.Hour),
		Lines:   []LineSnapshot{{ItemCode: "A-1", Name: "Agua", UnitPrice: 1, SystemStock: 1}},
	})
	require.Equal(t, shared.KindDependencyWriteFailed, shared.KindOf(err))

	var wf *shared.WorkflowError
	require.ErrorAs(t, err, &wf)
	require.False(t, wf.CompensationFailed)
	// The compensating delete removed the task.
	require.Empty(t, store.tasks)
}

func TestCreateCountFlagsFailedCompensation(t *testing.T) {
	repo := newMemoryRepo()
	repo.failCreateCount = true
	store := newMemoryTaskStore()
	store.failDelete = true
	svc := newTestService(repo, store)

	_, err := svc.CreateCount(context.Background(), supervisor(), CreateCountInput{
		Title:   "Conteo",
		DueDate: testNow.Add(24 * time.Hour),
		Lines:   []LineSnapshot{{ItemCode: "A-1", Name: "Agua", UnitPrice: 1, SystemStock: 1}},
	})
	require.Equal(t, shared.KindDependencyWriteFailed, shared.KindOf(err))

	var wf *shared.WorkflowError
	require.ErrorAs(t, err, &wf)
	require.True(t, wf.CompensationFailed)
	// The orphaned task stays behind for the reconciliation sweep.
	require.Len(t, store.tasks, 1)
}

func TestUpdateLineItemRecalculates(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryTaskStore()
	svc := newTestService(repo, store)
	ctx := context.Background()
	c := seedDraft(t, svc, store)

	line, err := svc.UpdateLineItem(ctx, supervisor(), c.ID, LineUpdate{LineID: c.Lines[0].ID, Actual: intPtr(8)})
	require.NoError(t, err)
	require.Equal(t, -2, *line.Variance)

	fresh, err := svc.GetByID(ctx, supervisor(), c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, fresh.ItemsCounted)
	require.Equal(t, 1, fresh.ItemsWithVariance)
	require.InDelta(t, -200.0, fresh.VarianceValue, 0.001)
	require.NotNil(t, fresh.CountedAt)
	require.Equal(t, testNow, *fresh.CountedAt)
}

func TestUpdateLineItemDraftOnly(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryTaskStore()
	svc := newTestService(repo, store)
	c := seedDraft(t, svc, store)

	seeded := repo.counts[c.ID]
	seeded.Status = StatusSubmitted
	repo.counts[c.ID] = seeded

	_, err := svc.UpdateLineItem(context.Background(), supervisor(), c.ID, LineUpdate{LineID: c.Lines[0].ID, Actual: intPtr(1)})
	require.Equal(t, shared.KindPreconditionFailed, shared.KindOf(err))
	require.Contains(t, err.Error(), "enviado")
}

func TestSubmitRequiresEveryLineCounted(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryTaskStore()
	svc := newTestService(repo, store)
	ctx := context.Background()
	c := seedDraft(t, svc, store)

	_, err := svc.Submit(ctx, supervisor(), c.ID)
	require.Equal(t, shared.KindPreconditionFailed, shared.KindOf(err))
	require.Contains(t, err.Error(), "3 items not yet counted")

	_, err = svc.SaveDraft(ctx, supervisor(), c.ID, []LineUpdate{
		{LineID: c.Lines[0].ID, Actual: intPtr(8)},
		{LineID: c.Lines[1].ID, Actual: intPtr(5)},
	})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, supervisor(), c.ID)
	require.Contains(t, err.Error(), "1 items not yet counted")

	_, err = svc.SaveDraft(ctx, supervisor(), c.ID, []LineUpdate{
		{LineID: c.Lines[2].ID, Actual: intPtr(4)},
	})
	require.NoError(t, err)

	submitted, err := svc.Submit(ctx, supervisor(), c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, submitted.Status)
	require.Equal(t, 3, submitted.ItemsCounted)
	require.Equal(t, 2, submitted.ItemsWithVariance)
	require.InDelta(t, 0.0, submitted.VarianceValue, 0.001)
	require.NotNil(t, submitted.CountedAt)
}

func TestSaveDraftUnknownLine(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryTaskStore()
	svc := newTestService(repo, store)
	c := seedDraft(t, svc, store)

	_, err := svc.SaveDraft(context.Background(), supervisor(), c.ID, []LineUpdate{
		{LineID: 9999, Actual: intPtr(1)},
	})
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func submitSeeded(t *testing.T, svc *Service, c StockCount) StockCount {
	t.Helper()
	ctx := context.Background()
	_, err := svc.SaveDraft(ctx, supervisor(), c.ID, []LineUpdate{
		{LineID: c.Lines[0].ID, Actual: intPtr(10)},
		{LineID: c.Lines[1].ID, Actual: intPtr(5)},
		{LineID: c.Lines[2].ID, Actual: intPtr(3)},
	})
	require.NoError(t, err)
	submitted, err := svc.Submit(ctx, supervisor(), c.ID)
	require.NoError(t, err)
	return submitted
}

func TestReviewApproveLeavesTaskOpen(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryTaskStore()
	svc := newTestService(repo, store)
	ctx := context.Background()
	c := submitSeeded(t, svc, seedDraft(t, svc, store))

	comment := "sin diferencias"
	approved, err := svc.Review(ctx, supervisor(), c.ID, DecisionApprove, &comment)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, int64(7), *approved.ReviewerID)
	require.Equal(t, comment, *approved.ReviewerComment)

	// Approval is not closure: the linked task stays pending until close.
	require.Equal(t, task.StatusPending, store.tasks[c.TaskID].Status)

	closed, err := svc.Close(ctx, supervisor(), c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
	require.Equal(t, task.StatusCompleted, store.tasks[c.TaskID].Status)
	require.Equal(t, int64(7), *store.tasks[c.TaskID].CompleterID)
}

func TestReviewRejectIsTerminal(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryTaskStore()
	svc := newTestService(repo, store)
	ctx := context.Background()
	c := submitSeeded(t, svc, seedDraft(t, svc, store))

	rejected, err := svc.Review(ctx, supervisor(), c.ID, DecisionReject, nil)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.True(t, rejected.Status.Terminal())

	_, err = svc.Review(ctx, supervisor(), c.ID, DecisionApprove, nil)
	require.Equal(t, shared.KindPreconditionFailed, shared.KindOf(err))

	_, err = svc.Close(ctx, supervisor(), c.ID)
	require.Equal(t, shared.KindPreconditionFailed, shared.KindOf(err))

	// Rejection leaves the task open for a fresh count.
	require.Equal(t, task.StatusPending, store.tasks[c.TaskID].Status)
}

func TestReviewGuards(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryTaskStore()
	svc := newTestService(repo, store)
	ctx := context.Background()
	c := seedDraft(t, svc, store)

	_, err := svc.Review(ctx, employee(), c.ID, DecisionApprove, nil)
	require.Equal(t, shared.KindPreconditionFailed, shared.KindOf(err))

	_, err = svc.Review(ctx, supervisor(), c.ID, ReviewDecision("tal vez"), nil)
	require.Equal(t, shared.KindValidationError, shared.KindOf(err))

	// Draft counts cannot be reviewed.
	_, err = svc.Review(ctx, supervisor(), c.ID, DecisionApprove, nil)
	require.Equal(t, shared.KindPreconditionFailed, shared.KindOf(err))
}

func TestCloseRequiresApproved(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryTaskStore()
	svc := newTestService(repo, store)
	ctx := context.Background()
	c := submitSeeded(t, svc, seedDraft(t, svc, store))

	_, err := svc.Close(ctx, supervisor(), c.ID)
	require.Equal(t, shared.KindPreconditionFailed, shared.KindOf(err))
	require.Equal(t, task.StatusPending, store.tasks[c.TaskID].Status)
}

func TestBranchScoping(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryTaskStore()
	svc := newTestService(repo, store)
	c := seedDraft(t, svc, store)

	other := authz.Principal{EmployeeID: 1, BranchID: 99, Rol: "Encargado"}
	_, err := svc.GetByID(context.Background(), other, c.ID)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestReconcileOrphans(t *testing.T) {
	repo := newMemoryRepo()
	store := newMemoryTaskStore()
	svc := newTestService(repo, store)
	ctx := context.Background()

	// Task 1 has a count, task 2 is an old orphan, task 3 is inside the
	// grace window.
	c := seedDraft(t, svc, store)
	linked := store.tasks[c.TaskID]
	linked.CreatedAt = testNow.Add(-3 * time.Hour)
	store.tasks[c.TaskID] = linked

	store.tasks[100] = task.Task{
		ID: 100, BranchID: 2, Category: task.CategoryStockControl,
		Status: task.StatusPending, CreatedAt: testNow.Add(-2 * time.Hour),
	}
	store.tasks[101] = task.Task{
		ID: 101, BranchID: 2, Category: task.CategoryStockControl,
		Status: task.StatusPending, CreatedAt: testNow.Add(-5 * time.Minute),
	}

	removed, err := svc.ReconcileOrphans(ctx, 2, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, linkedOK := store.tasks[c.TaskID]
	require.True(t, linkedOK)
	_, oldOrphanOK := store.tasks[100]
	require.False(t, oldOrphanOK)
	_, freshOrphanOK := store.tasks[101]
	require.True(t, freshOrphanOK)

	// A second sweep after the grace window removes the remaining orphan.
	svc.WithClock(func() time.Time { return testNow.Add(2 * time.Hour) })
	removed, err = svc.ReconcileOrphans(ctx, 2, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}
