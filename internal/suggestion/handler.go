package suggestion

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sucursal-ops/sucursal-ops/internal/authz"
	"github.com/sucursal-ops/sucursal-ops/internal/platform/httpx"
)

// Handler exposes suggestion endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers suggestion routes under /api/control-stock.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sugerencias", h.list)
	r.Post("/sugerencias", h.create)
	r.Put("/sugerencias/{id}/resolver", h.resolve)
	r.Get("/sugerencias/pendientes/count", h.pendingCount)
}

type productRequest struct {
	ItemCode    string  `json:"cod_item" validate:"required,max=50"`
	Name        string  `json:"nombre" validate:"required,max=500"`
	UnitPrice   float64 `json:"precio" validate:"gte=0"`
	SystemStock int     `json:"stock_sistema"`
}

type createSuggestionRequest struct {
	Products      []productRequest `json:"productos" validate:"required,min=1,dive"`
	Justification string           `json:"motivo" validate:"required"`
}

type resolveSuggestionRequest struct {
	Action      string  `json:"accion" validate:"required"`
	ScheduledOn string  `json:"fecha_programada"`
	Comment     *string `json:"comentario"`
}

type suggestionResponse struct {
	ID              int64     `json:"id"`
	BranchID        int64     `json:"sucursal_id"`
	Products        []Product `json:"productos"`
	Justification   string    `json:"motivo"`
	Status          string    `json:"estado"`
	SuggestedAt     string    `json:"fecha_sugerencia"`
	ProposerID      int64     `json:"sugerido_por_id"`
	ProposerName    string    `json:"sugerido_por_nombre"`
	ResolverID      *int64    `json:"resuelto_por_id"`
	ResolverName    *string   `json:"resuelto_por_nombre"`
	ResolvedAt      *string   `json:"fecha_resolucion"`
	ScheduledOn     *string   `json:"fecha_programada"`
	ResolverComment *string   `json:"comentario_supervisor"`
	SpawnedTaskID   *int64    `json:"tarea_id"`
}

func toSuggestionResponse(s Suggestion) suggestionResponse {
	resp := suggestionResponse{
		ID:              s.ID,
		BranchID:        s.BranchID,
		Products:        s.Products,
		Justification:   s.Justification,
		Status:          string(s.Status),
		SuggestedAt:     s.SuggestedAt.Format(time.RFC3339),
		ProposerID:      s.ProposerID,
		ProposerName:    s.ProposerName,
		ResolverID:      s.ResolverID,
		ScheduledOn:     s.ScheduledOn,
		ResolverComment: s.ResolverComment,
		SpawnedTaskID:   s.SpawnedTaskID,
	}
	if s.ResolvedAt != nil {
		formatted := s.ResolvedAt.Format(time.RFC3339)
		resp.ResolvedAt = &formatted
	}
	if s.ResolverName != "" {
		resp.ResolverName = &s.ResolverName
	}
	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	suggestions, err := h.service.List(r.Context(), principal, Status(r.URL.Query().Get("estado")), 50)
	if err != nil {
		h.logger.Error("list suggestions", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	out := make([]suggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, toSuggestionResponse(s))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	var req createSuggestionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "bad request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "validation error", err.Error())
		return
	}
	products := make([]Product, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, Product{
			ItemCode:    p.ItemCode,
			Name:        p.Name,
			UnitPrice:   p.UnitPrice,
			SystemStock: p.SystemStock,
		})
	}
	created, err := h.service.Create(r.Context(), principal, CreateSuggestionInput{
		Products:      products,
		Justification: req.Justification,
	})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSuggestionResponse(created))
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "bad request", "invalid suggestion id")
		return
	}
	var req resolveSuggestionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "bad request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "validation error", err.Error())
		return
	}
	resolved, err := h.service.Resolve(r.Context(), principal, id, ResolveInput{
		Action:      ResolveAction(req.Action),
		ScheduledOn: req.ScheduledOn,
		Comment:     req.Comment,
	})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSuggestionResponse(resolved))
}

func (h *Handler) pendingCount(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	count, err := h.service.PendingCount(r.Context(), principal)
	if err != nil {
		h.logger.Error("pending suggestion count", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"count": count})
}
