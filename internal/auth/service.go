package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/sucursal-ops/sucursal-ops/internal/authz"
	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

// Service performs credential checks and principal resolution.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate verifies credentials and returns the employee on success.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Employee, error) {
	employee, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Employee{}, shared.ErrInvalidCredentials
		}
		return Employee{}, err
	}
	if !employee.Active || employee.PasswordHash == "" {
		return Employee{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(employee.PasswordHash), []byte(password)); err != nil {
		return Employee{}, shared.ErrInvalidCredentials
	}
	return employee, nil
}

// LoadPrincipal implements authz.PrincipalLoader.
func (s *Service) LoadPrincipal(ctx context.Context, employeeID int64) (authz.Principal, error) {
	employee, err := s.repo.FindByID(ctx, employeeID)
	if err != nil {
		return authz.Principal{}, err
	}
	if !employee.Active {
		return authz.Principal{}, shared.ErrInvalidCredentials
	}
	return authz.Principal{
		EmployeeID:  employee.ID,
		BranchID:    employee.BranchID,
		DisplayName: displayName(employee),
		Rol:         employee.Rol,
		Nivel:       employee.Nivel,
		Puesto:      employee.Puesto,
	}, nil
}

func displayName(e Employee) string {
	name := strings.TrimSpace(e.FirstName + " " + e.LastName)
	if name == "" {
		return "Usuario"
	}
	return name
}
