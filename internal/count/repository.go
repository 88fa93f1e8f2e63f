package count

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

// Repository defines count data access against the annex store.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetByID(ctx context.Context, id, branchID int64) (StockCount, error)
	GetByTask(ctx context.Context, taskID, branchID int64) (StockCount, error)
	ListLines(ctx context.Context, countID int64) ([]CountLine, error)
	GetLine(ctx context.Context, countID, lineID int64) (CountLine, error)

	AuditSummary(ctx context.Context, branchID int64) (AuditSummary, error)
	ListForAudit(ctx context.Context, branchID int64, req AuditListRequest) ([]StockCount, error)
	// TasksWithCounts reports which of the given task ids already have a
	// count, for the orphan reconciliation sweep.
	TasksWithCounts(ctx context.Context, taskIDs []int64) (map[int64]bool, error)
}

// TxRepository defines mutations that run inside one annex transaction.
type TxRepository interface {
	CreateCount(ctx context.Context, c StockCount) (int64, error)
	CreateLine(ctx context.Context, countID int64, snap LineSnapshot) (int64, error)
	UpdateLine(ctx context.Context, line CountLine) error
	SetAggregates(ctx context.Context, countID int64, agg Aggregates, countedAt time.Time) error
	// UpdateStatusIf applies a conditional transition and reports whether
	// a row changed; zero rows means the count was not in `from`.
	UpdateStatusIf(ctx context.Context, countID int64, from, to Status) (bool, error)
	SetReview(ctx context.Context, countID, reviewerID int64, at time.Time, comment *string) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type pgRepository struct {
	pool *pgxpool.Pool
}

type pgTxRepository struct {
	tx pgx.Tx
}

// NewRepository returns a Repository over the annex pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &pgTxRepository{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const countColumns = `id, tarea_id, sucursal_id, empleado_id, estado, fecha_conteo,
revisado_por, fecha_revision, comentarios_auditor,
total_productos, productos_contados, productos_con_diferencia, valorizacion_diferencia,
created_at, updated_at`

func (r *pgRepository) GetByID(ctx context.Context, id, branchID int64) (StockCount, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+countColumns+` FROM conteos_stock WHERE id = $1 AND sucursal_id = $2`, id, branchID)
	return scanCount(row)
}

func (r *pgRepository) GetByTask(ctx context.Context, taskID, branchID int64) (StockCount, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+countColumns+` FROM conteos_stock WHERE tarea_id = $1 AND sucursal_id = $2`, taskID, branchID)
	return scanCount(row)
}

const lineColumns = `id, conteo_id, cod_item, nombre, precio, stock_sistema, stock_real, diferencia, observaciones, created_at`

func (r *pgRepository) ListLines(ctx context.Context, countID int64) ([]CountLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+lineColumns+` FROM productos_conteo WHERE conteo_id = $1 ORDER BY id ASC`, countID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []CountLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *pgRepository) GetLine(ctx context.Context, countID, lineID int64) (CountLine, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+lineColumns+` FROM productos_conteo WHERE id = $1 AND conteo_id = $2`, lineID, countID)
	line, err := scanLine(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CountLine{}, shared.NotFoundf("line item %d not found in count %d", lineID, countID)
		}
		return CountLine{}, err
	}
	return line, nil
}

func (r *pgRepository) AuditSummary(ctx context.Context, branchID int64) (AuditSummary, error) {
	var s AuditSummary
	err := r.pool.QueryRow(ctx, `SELECT
    COALESCE(SUM(CASE WHEN estado = 'enviado' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN estado IN ('aprobado', 'rechazado', 'cerrado')
        AND date_trunc('month', fecha_revision) = date_trunc('month', CURRENT_DATE)
        THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN estado IN ('aprobado', 'rechazado', 'cerrado')
        AND date_trunc('month', fecha_revision) = date_trunc('month', CURRENT_DATE)
        THEN productos_con_diferencia ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN estado IN ('aprobado', 'rechazado', 'cerrado')
        AND date_trunc('month', fecha_revision) = date_trunc('month', CURRENT_DATE)
        THEN valorizacion_diferencia ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN estado = 'aprobado' THEN 1 ELSE 0 END), 0)
FROM conteos_stock WHERE sucursal_id = $1`, branchID).
		Scan(&s.PendingReview, &s.ReviewedMonth, &s.VarianceMonth, &s.ValuationMonth, &s.AwaitingClosure)
	return s, err
}

func (r *pgRepository) ListForAudit(ctx context.Context, branchID int64, req AuditListRequest) ([]StockCount, error) {
	query := `SELECT ` + countColumns + ` FROM conteos_stock WHERE sucursal_id = $1`
	args := []any{branchID}
	if req.Status != "" {
		args = append(args, string(req.Status))
		query += ` AND estado = $2`
	}
	if req.Month != "" {
		args = append(args, req.Month)
		query += ` AND to_char(fecha_conteo, 'YYYY-MM') = $` + itoa(len(args))
	}
	query += ` ORDER BY fecha_conteo DESC NULLS LAST`
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []StockCount
	for rows.Next() {
		c, err := scanCount(rows)
		if err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *pgRepository) TasksWithCounts(ctx context.Context, taskIDs []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(taskIDs))
	if len(taskIDs) == 0 {
		return found, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT tarea_id FROM conteos_stock WHERE tarea_id = ANY($1)`, taskIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	return found, rows.Err()
}

func (t *pgTxRepository) CreateCount(ctx context.Context, c StockCount) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO conteos_stock
(tarea_id, sucursal_id, empleado_id, estado, total_productos)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`,
		c.TaskID, c.BranchID, c.EmployeeID, string(c.Status), c.TotalItems).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, shared.Preconditionf("a count already exists for task %d", c.TaskID)
		}
		return 0, err
	}
	return id, nil
}

func (t *pgTxRepository) CreateLine(ctx context.Context, countID int64, snap LineSnapshot) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO productos_conteo
(conteo_id, cod_item, nombre, precio, stock_sistema)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`,
		countID, snap.ItemCode, snap.Name, snap.UnitPrice, snap.SystemStock).Scan(&id)
	return id, err
}

func (t *pgTxRepository) UpdateLine(ctx context.Context, line CountLine) error {
	tag, err := t.tx.Exec(ctx, `UPDATE productos_conteo
SET stock_real = $1, diferencia = $2, observaciones = $3
WHERE id = $4 AND conteo_id = $5`,
		line.Actual, line.Variance, line.Notes, line.ID, line.CountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("line item %d not found in count %d", line.ID, line.CountID)
	}
	return nil
}

func (t *pgTxRepository) SetAggregates(ctx context.Context, countID int64, agg Aggregates, countedAt time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE conteos_stock
SET total_productos = $1, productos_contados = $2, productos_con_diferencia = $3,
    valorizacion_diferencia = $4, fecha_conteo = $5, updated_at = NOW()
WHERE id = $6`,
		agg.TotalItems, agg.ItemsCounted, agg.ItemsWithVariance, agg.VarianceValue, countedAt, countID)
	return err
}

func (t *pgTxRepository) UpdateStatusIf(ctx context.Context, countID int64, from, to Status) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE conteos_stock SET estado = $1, updated_at = NOW() WHERE id = $2 AND estado = $3`,
		string(to), countID, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTxRepository) SetReview(ctx context.Context, countID, reviewerID int64, at time.Time, comment *string) error {
	_, err := t.tx.Exec(ctx, `UPDATE conteos_stock
SET revisado_por = $1, fecha_revision = $2, comentarios_auditor = $3, updated_at = NOW()
WHERE id = $4`,
		reviewerID, at, comment, countID)
	return err
}

func scanCount(row pgx.Row) (StockCount, error) {
	var c StockCount
	var status string
	err := row.Scan(&c.ID, &c.TaskID, &c.BranchID, &c.EmployeeID, &status, &c.CountedAt,
		&c.ReviewerID, &c.ReviewedAt, &c.ReviewerComment,
		&c.TotalItems, &c.ItemsCounted, &c.ItemsWithVariance, &c.VarianceValue,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockCount{}, shared.NotFoundf("count not found")
		}
		return StockCount{}, err
	}
	c.Status = Status(status)
	return c, nil
}

func scanLine(row pgx.Row) (CountLine, error) {
	var line CountLine
	err := row.Scan(&line.ID, &line.CountID, &line.ItemCode, &line.Name, &line.UnitPrice,
		&line.SystemStock, &line.Actual, &line.Variance, &line.Notes, &line.CreatedAt)
	return line, err
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
