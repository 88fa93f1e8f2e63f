package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sucursal-ops/sucursal-ops/internal/authz"
	"github.com/sucursal-ops/sucursal-ops/internal/platform/httpx"
	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		sessions: sessions,
		csrf:     csrf,
		validate: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	EmployeeID  int64  `json:"employee_id"`
	DisplayName string `json:"display_name"`
	BranchID    int64  `json:"branch_id"`
	Supervisor  bool   `json:"supervisor"`
	CSRFToken   string `json:"csrf_token"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "bad request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "validation error", err.Error())
		return
	}

	employee, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	if err := h.sessions.Rotate(r.Context(), sess); err != nil {
		h.logger.Error("rotate session", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	sess.SetEmployee(employee.ID)
	token, _ := h.csrf.EnsureToken(r.Context(), sess)

	principal := authz.Principal{Rol: employee.Rol, Nivel: employee.Nivel, Puesto: employee.Puesto, BranchID: employee.BranchID}
	httpx.JSON(w, http.StatusOK, loginResponse{
		EmployeeID:  employee.ID,
		DisplayName: displayName(employee),
		BranchID:    employee.BranchID,
		Supervisor:  authz.IsSupervisor(principal),
		CSRFToken:   token,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	h.sessions.Destroy(sess)
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.Employee() == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "no active session")
		return
	}
	principal, err := h.service.LoadPrincipal(r.Context(), sess.Employee())
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "no active session")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"employee_id":  principal.EmployeeID,
		"display_name": principal.DisplayName,
		"branch_id":    principal.BranchID,
		"supervisor":   authz.IsSupervisor(principal),
	})
}
