package suggestion

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

// Repository defines suggestion data access against the annex store.
type Repository interface {
	Create(ctx context.Context, s Suggestion) (int64, error)
	Get(ctx context.Context, id, branchID int64) (Suggestion, error)
	List(ctx context.Context, branchID int64, status Status, limit int) ([]Suggestion, error)
	CountPending(ctx context.Context, branchID int64) (int, error)
	// Resolve applies the terminal transition conditionally and reports
	// whether a row changed; zero rows means the suggestion was already
	// resolved.
	Resolve(ctx context.Context, id int64, to Status, resolverID int64, at time.Time, scheduledOn *string, comment *string) (bool, error)
	SetSpawnedTask(ctx context.Context, id, taskID int64) error
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository over the annex pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const suggestionColumns = `id, sucursal_id, sugerido_por_id, productos, motivo, estado,
fecha_sugerencia, resuelto_por_id, fecha_resolucion, fecha_programada, comentario_supervisor, tarea_id, created_at`

func (r *pgRepository) Create(ctx context.Context, s Suggestion) (int64, error) {
	products, err := json.Marshal(s.Products)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO sugerencias_conteo
(sucursal_id, sugerido_por_id, productos, motivo, estado)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`,
		s.BranchID, s.ProposerID, products, s.Justification, string(s.Status)).Scan(&id)
	return id, err
}

func (r *pgRepository) Get(ctx context.Context, id, branchID int64) (Suggestion, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+suggestionColumns+` FROM sugerencias_conteo WHERE id = $1 AND sucursal_id = $2`, id, branchID)
	s, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Suggestion{}, shared.NotFoundf("suggestion %d not found", id)
		}
		return Suggestion{}, err
	}
	return s, nil
}

func (r *pgRepository) List(ctx context.Context, branchID int64, status Status, limit int) ([]Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM sugerencias_conteo WHERE sucursal_id = $1`
	args := []any{branchID}
	if status != "" {
		args = append(args, string(status))
		query += ` AND estado = $2`
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += ` ORDER BY fecha_sugerencia DESC LIMIT ` + itoa(limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suggestions []Suggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, rows.Err()
}

func (r *pgRepository) CountPending(ctx context.Context, branchID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sugerencias_conteo WHERE sucursal_id = $1 AND estado = $2`,
		branchID, string(StatusPending)).Scan(&count)
	return count, err
}

func (r *pgRepository) Resolve(ctx context.Context, id int64, to Status, resolverID int64, at time.Time, scheduledOn *string, comment *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE sugerencias_conteo
SET estado = $1, resuelto_por_id = $2, fecha_resolucion = $3, fecha_programada = $4, comentario_supervisor = $5
WHERE id = $6 AND estado = $7`,
		string(to), resolverID, at, scheduledOn, comment, id, string(StatusPending))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgRepository) SetSpawnedTask(ctx context.Context, id, taskID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sugerencias_conteo SET tarea_id = $1 WHERE id = $2`, taskID, id)
	return err
}

func scanSuggestion(row pgx.Row) (Suggestion, error) {
	var s Suggestion
	var products []byte
	var status string
	err := row.Scan(&s.ID, &s.BranchID, &s.ProposerID, &products, &s.Justification, &status,
		&s.SuggestedAt, &s.ResolverID, &s.ResolvedAt, &s.ScheduledOn, &s.ResolverComment,
		&s.SpawnedTaskID, &s.CreatedAt)
	if err != nil {
		return Suggestion{}, err
	}
	s.Status = Status(status)
	if err := json.Unmarshal(products, &s.Products); err != nil {
		return Suggestion{}, err
	}
	return s, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
