package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

// Repository reads employee records from the source store.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Employee, error)
	FindByID(ctx context.Context, id int64) (Employee, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository over the source pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const employeeColumns = `id, COALESCE(email, ''), COALESCE(nombre, ''), COALESCE(apellido, ''),
COALESCE(password_hash, ''), COALESCE(sucursal_id, 0), COALESCE(rol, ''), COALESCE(nivel, ''), COALESCE(puesto, ''), COALESCE(activo, true)`

func (r *pgRepository) FindByEmail(ctx context.Context, email string) (Employee, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE LOWER(email) = LOWER($1)`, email)
	return scanEmployee(row)
}

func (r *pgRepository) FindByID(ctx context.Context, id int64) (Employee, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id)
	return scanEmployee(row)
}

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.Email, &e.FirstName, &e.LastName, &e.PasswordHash,
		&e.BranchID, &e.Rol, &e.Nivel, &e.Puesto, &e.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, shared.NotFoundf("employee not found")
		}
		return Employee{}, err
	}
	return e, nil
}
