package task

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sucursal-ops/sucursal-ops/internal/authz"
	"github.com/sucursal-ops/sucursal-ops/internal/platform/httpx"
	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

// Handler exposes task endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers task routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}/iniciar", h.start)
	r.Put("/{id}/completar", h.complete)
}

type createTaskRequest struct {
	Category    string `json:"categoria" validate:"required"`
	Title       string `json:"titulo" validate:"required,max=300"`
	Description string `json:"descripcion"`
	DueDate     string `json:"fecha_vencimiento" validate:"required"`
}

type taskResponse struct {
	ID           int64   `json:"id"`
	BranchID     int64   `json:"sucursal_id"`
	Category     string  `json:"categoria"`
	Title        string  `json:"titulo"`
	Description  string  `json:"descripcion"`
	AssignerID   int64   `json:"asignado_por"`
	AssignerName string  `json:"asignado_por_nombre"`
	AssignedOn   string  `json:"fecha_asignacion"`
	DueOn        string  `json:"fecha_vencimiento"`
	Status       string  `json:"estado"`
	CompleterID  *int64  `json:"completado_por,omitempty"`
	CompletedAt  *string `json:"fecha_completado,omitempty"`
}

func toTaskResponse(t Task) taskResponse {
	resp := taskResponse{
		ID:           t.ID,
		BranchID:     t.BranchID,
		Category:     string(t.Category),
		Title:        t.Title,
		Description:  t.Description,
		AssignerID:   t.AssignerID,
		AssignerName: t.AssignerName,
		AssignedOn:   t.AssignedOn.Format("2006-01-02"),
		DueOn:        t.DueOn.Format("2006-01-02"),
		Status:       string(t.Status),
		CompleterID:  t.CompleterID,
	}
	if t.CompletedAt != nil {
		formatted := t.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &formatted
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	var req createTaskRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "bad request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "validation error", err.Error())
		return
	}
	due, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		httpx.Error(w, shared.Validationf("invalid date format, use YYYY-MM-DD"))
		return
	}

	created, err := h.service.Create(r.Context(), principal, CreateTaskInput{
		Category:    Category(req.Category),
		Title:       req.Title,
		Description: req.Description,
		DueOn:       due,
	})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTaskResponse(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	req := ListTasksRequest{
		Category: Category(r.URL.Query().Get("categoria")),
		Status:   Status(r.URL.Query().Get("estado")),
	}
	tasks, err := h.service.List(r.Context(), principal, req)
	if err != nil {
		h.logger.Error("list tasks", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	h.withTask(w, r, func(principal authz.Principal, id int64) (Task, error) {
		return h.service.Get(r.Context(), principal, id)
	})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.withTask(w, r, func(principal authz.Principal, id int64) (Task, error) {
		return h.service.Start(r.Context(), principal, id)
	})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.withTask(w, r, func(principal authz.Principal, id int64) (Task, error) {
		return h.service.Complete(r.Context(), principal, id)
	})
}

func (h *Handler) withTask(w http.ResponseWriter, r *http.Request, fn func(authz.Principal, int64) (Task, error)) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "bad request", "invalid task id")
		return
	}
	t, err := fn(principal, id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTaskResponse(t))
}
