// Package refdata resolves reference data held in the read-only source
// store: the mapping from user-facing branch identifiers to the
// identifiers used by the authoritative sales database, and employee
// display names for response assembly.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

// Resolver is the collaborator interface consumed by the workflow
// services.
type Resolver interface {
	ResolveBranchRef(ctx context.Context, localBranchID int64) (int64, error)
	EmployeeName(ctx context.Context, employeeID int64) string
}

// StoreResolver resolves against the source store with a short-lived
// Redis cache in front of employee-name lookups.
type StoreResolver struct {
	pool     *pgxpool.Pool
	cache    *redis.Client
	cacheTTL time.Duration
	caser    cases.Caser
}

// New constructs a StoreResolver. cache may be nil, in which case every
// lookup hits the source store.
func New(pool *pgxpool.Pool, cache *redis.Client, cacheTTL time.Duration) *StoreResolver {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &StoreResolver{
		pool:     pool,
		cache:    cache,
		cacheTTL: cacheTTL,
		caser:    cases.Title(language.Spanish),
	}
}

// ResolveBranchRef maps a local branch id to the id used by the
// authoritative sales database.
func (r *StoreResolver) ResolveBranchRef(ctx context.Context, localBranchID int64) (int64, error) {
	var duxID int64
	err := r.pool.QueryRow(ctx,
		`SELECT dux_sucursal_id FROM sucursales WHERE id = $1`, localBranchID).Scan(&duxID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.NotFoundf("branch %d not found", localBranchID)
		}
		return 0, err
	}
	return duxID, nil
}

// EmployeeName returns the display name for an employee, "Usuario" when
// the record is missing or empty. Lookup failures degrade to the
// fallback; names decorate responses and must never fail a workflow.
func (r *StoreResolver) EmployeeName(ctx context.Context, employeeID int64) string {
	if employeeID == 0 {
		return "Usuario"
	}
	key := fmt.Sprintf("refdata:employee:%d:name", employeeID)
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, key).Result(); err == nil && cached != "" {
			return cached
		}
	}

	var first, last string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(nombre, ''), COALESCE(apellido, '') FROM employees WHERE id = $1`, employeeID).
		Scan(&first, &last)
	if err != nil {
		return "Usuario"
	}
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		return "Usuario"
	}
	name = r.caser.String(strings.ToLower(name))
	if r.cache != nil {
		_ = r.cache.Set(ctx, key, name, r.cacheTTL).Err()
	}
	return name
}
