package task

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

// Repository defines task data access against the source-adjacent store.
type Repository interface {
	Create(ctx context.Context, input CreateTaskInput) (int64, error)
	Get(ctx context.Context, id int64) (Task, error)
	GetForBranch(ctx context.Context, id, branchID int64) (Task, error)
	List(ctx context.Context, req ListTasksRequest) ([]Task, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	Complete(ctx context.Context, id, completerID int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository over the source pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const taskColumns = `id, sucursal_id, categoria, titulo, COALESCE(descripcion, ''), COALESCE(asignado_por, 0),
fecha_asignacion, fecha_vencimiento, estado, completado_por, fecha_completado, created_at`

func (r *pgRepository) Create(ctx context.Context, input CreateTaskInput) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO tareas_sucursal
(sucursal_id, categoria, titulo, descripcion, asignado_por, fecha_asignacion, fecha_vencimiento, estado)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
		input.BranchID, string(input.Category), input.Title, input.Description,
		input.AssignerID, input.AssignedOn, input.DueOn, string(StatusPending)).Scan(&id)
	return id, err
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tareas_sucursal WHERE id = $1`, id)
	return scanTask(row)
}

func (r *pgRepository) GetForBranch(ctx context.Context, id, branchID int64) (Task, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tareas_sucursal WHERE id = $1 AND sucursal_id = $2`, id, branchID)
	return scanTask(row)
}

func (r *pgRepository) List(ctx context.Context, req ListTasksRequest) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tareas_sucursal WHERE sucursal_id = $1`
	args := []any{req.BranchID}
	if req.Category != "" {
		args = append(args, string(req.Category))
		query += ` AND categoria = $2`
	}
	if req.Status != "" {
		args = append(args, string(req.Status))
		query += ` AND estado = $` + itoa(len(args))
	}
	query += ` ORDER BY fecha_vencimiento ASC, id ASC`
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateStatus applies a conditional transition and reports whether a
// row actually changed. Zero rows means the task was not in `from`.
func (r *pgRepository) UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tareas_sucursal SET estado = $1 WHERE id = $2 AND estado = $3`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgRepository) Complete(ctx context.Context, id, completerID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tareas_sucursal
SET estado = $1, completado_por = $2, fecha_completado = $3
WHERE id = $4`, string(StatusCompleted), completerID, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("task %d not found", id)
	}
	return nil
}

func (r *pgRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tareas_sucursal WHERE id = $1`, id)
	return err
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	var category, status string
	err := row.Scan(&t.ID, &t.BranchID, &category, &t.Title, &t.Description, &t.AssignerID,
		&t.AssignedOn, &t.DueOn, &status, &t.CompleterID, &t.CompletedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, shared.NotFoundf("task not found")
		}
		return Task{}, err
	}
	t.Category = Category(category)
	t.Status = Status(status)
	return t, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
