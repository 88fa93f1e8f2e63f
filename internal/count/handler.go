package count

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

// Handler exposes the count workflow endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers count routes under /api/control-stock.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/tareas", h.createCount)
	r.Get("/conteo/{tareaID}", h.getByTask)
	r.Put("/conteo/{conteoID}/producto/{productoID}", h.updateLine)
	r.Put("/conteo/{conteoID}/guardar", h.saveDraft)
	r.Post("/conteo/{conteoID}/enviar", h.submit)
	r.Put("/conteo/{conteoID}/revisar", h.review)
	r.Put("/conteo/{conteoID}/cerrar", h.closeCount)
	r.Get("/auditoria/resumen", h.auditSummary)
	r.Get("/auditoria/conteos", h.auditList)
}

type lineSnapshotRequest struct {
	ItemCode    string  `json:"cod_item" validate:"required,max=50"`
	Name        string  `json:"nombre" validate:"required,max=500"`
	UnitPrice   float64 `json:"precio" validate:"gte=0"`
	SystemStock int     `json:"stock_sistema"`
}

type createCountRequest struct {
	Title       string                `json:"titulo" validate:"required,max=300"`
	Description string                `json:"descripcion"`
	DueDate     string                `json:"fecha_vencimiento" validate:"required"`
	Products    []lineSnapshotRequest `json:"productos" validate:"required,min=1,dive"`
}

type lineUpdateRequest struct {
	ID     int64   `json:"id" validate:"required"`
	Actual *int    `json:"stock_real"`
	Notes  *string `json:"observaciones"`
}

type saveDraftRequest struct {
	Products []lineUpdateRequest `json:"productos" validate:"required,min=1,dive"`
}

type reviewRequest struct {
	Decision string  `json:"estado" validate:"required"`
	Comment  *string `json:"comentarios"`
}

type lineResponse struct {
	ID          int64   `json:"id"`
	ItemCode    string  `json:"cod_item"`
	Name        string  `json:"nombre"`
	UnitPrice   float64 `json:"precio"`
	SystemStock int     `json:"stock_sistema"`
	Actual      *int    `json:"stock_real"`
	Variance    *int    `json:"diferencia"`
	Notes       *string `json:"observaciones"`
}

type countResponse struct {
	ID                int64          `json:"id"`
	TaskID            int64          `json:"tarea_id"`
	BranchID          int64          `json:"sucursal_id"`
	Status            string         `json:"estado"`
	CountedAt         *string        `json:"fecha_conteo"`
	EmployeeID        int64          `json:"empleado_id"`
	EmployeeName      string         `json:"empleado_nombre"`
	ReviewerID        *int64         `json:"revisado_por"`
	ReviewerName      *string        `json:"revisado_por_nombre"`
	ReviewedAt        *string        `json:"fecha_revision"`
	ReviewerComment   *string        `json:"comentarios_auditor"`
	TotalItems        int            `json:"total_productos"`
	ItemsCounted      int            `json:"productos_contados"`
	ItemsWithVariance int            `json:"productos_con_diferencia"`
	VarianceValue     float64        `json:"valorizacion_diferencia"`
	Lines             []lineResponse `json:"productos"`
	CreatedAt         string         `json:"created_at"`
}

func toCountResponse(c StockCount) countResponse {
	resp := countResponse{
		ID:                c.ID,
		TaskID:            c.TaskID,
		BranchID:          c.BranchID,
		Status:            string(c.Status),
		CountedAt:         formatTimePtr(c.CountedAt),
		EmployeeID:        c.EmployeeID,
		EmployeeName:      c.EmployeeName,
		ReviewerID:        c.ReviewerID,
		ReviewedAt:        formatTimePtr(c.ReviewedAt),
		ReviewerComment:   c.ReviewerComment,
		TotalItems:        c.TotalItems,
		ItemsCounted:      c.ItemsCounted,
		ItemsWithVariance: c.ItemsWithVariance,
		VarianceValue:     c.VarianceValue,
		CreatedAt:         c.CreatedAt.Format(time.RFC3339),
		Lines:             make([]lineResponse, 0, len(c.Lines)),
	}
	if c.ReviewerName != "" {
		resp.ReviewerName = &c.ReviewerName
	}
	for _, line := range c.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:          line.ID,
			ItemCode:    line.ItemCode,
			Name:        line.Name,
			UnitPrice:   line.UnitPrice,
			SystemStock: line.SystemStock,
			Actual:      line.Actual,
			Variance:    line.Variance,
			Notes:       line.Notes,
		})
	}
	return resp
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(time.RFC3339)
	return &formatted
}

func (h *Handler) createCount(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	var req createCountRequest
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

	lines := make([]LineSnapshot, 0, len(req.Products))
	for _, p := range req.Products {
		lines = append(lines, LineSnapshot{
			ItemCode:    p.ItemCode,
			Name:        p.Name,
			UnitPrice:   p.UnitPrice,
			SystemStock: p.SystemStock,
		})
	}

	created, err := h.service.CreateCount(r.Context(), principal, CreateCountInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     due,
		Lines:       lines,
	})
	if err != nil {
		h.logger.Error("create count", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCountResponse(created))
}

func (h *Handler) getByTask(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	taskID, err := strconv.ParseInt(chi.URLParam(r, "tareaID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "bad request", "invalid task id")
		return
	}
	c, err := h.service.GetByTask(r.Context(), principal, taskID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCountResponse(c))
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	principal, countID, ok := h.countParams(w, r)
	if !ok {
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "productoID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "bad request", "invalid line id")
		return
	}
	var req lineUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "bad request", "invalid JSON body")
		return
	}
	line, err := h.service.UpdateLineItem(r.Context(), principal, countID, LineUpdate{
		LineID: lineID,
		Actual: req.Actual,
		Notes:  req.Notes,
	})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lineResponse{
		ID:          line.ID,
		ItemCode:    line.ItemCode,
		Name:        line.Name,
		UnitPrice:   line.UnitPrice,
		SystemStock: line.SystemStock,
		Actual:      line.Actual,
		Variance:    line.Variance,
		Notes:       line.Notes,
	})
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	principal, countID, ok := h.countParams(w, r)
	if !ok {
		return
	}
	var req saveDraftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "bad request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "validation error", err.Error())
		return
	}
	updates := make([]LineUpdate, 0, len(req.Products))
	for _, p := range req.Products {
		updates = append(updates, LineUpdate{LineID: p.ID, Actual: p.Actual, Notes: p.Notes})
	}
	c, err := h.service.SaveDraft(r.Context(), principal, countID, updates)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCountResponse(c))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	principal, countID, ok := h.countParams(w, r)
	if !ok {
		return
	}
	c, err := h.service.Submit(r.Context(), principal, countID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCountResponse(c))
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	principal, countID, ok := h.countParams(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "bad request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "validation error", err.Error())
		return
	}
	c, err := h.service.Review(r.Context(), principal, countID, ReviewDecision(req.Decision), req.Comment)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCountResponse(c))
}

func (h *Handler) closeCount(w http.ResponseWriter, r *http.Request) {
	principal, countID, ok := h.countParams(w, r)
	if !ok {
		return
	}
	c, err := h.service.Close(r.Context(), principal, countID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCountResponse(c))
}

func (h *Handler) auditSummary(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	summary, err := h.service.AuditSummary(r.Context(), principal)
	if err != nil {
		h.logger.Error("audit summary", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) auditList(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	counts, err := h.service.AuditList(r.Context(), principal, AuditListRequest{
		Status: Status(r.URL.Query().Get("estado")),
		Month:  r.URL.Query().Get("mes"),
	})
	if err != nil {
		h.logger.Error("audit list", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	out := make([]countResponse, 0, len(counts))
	for _, c := range counts {
		out = append(out, toCountResponse(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) countParams(w http.ResponseWriter, r *http.Request) (authz.Principal, int64, bool) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return authz.Principal{}, 0, false
	}
	countID, err := strconv.ParseInt(chi.URLParam(r, "conteoID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "bad request", "invalid count id")
		return authz.Principal{}, 0, false
	}
	return principal, countID, true
}
