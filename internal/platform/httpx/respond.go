// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

// Error maps the workflow error taxonomy onto problem responses.
func Error(w http.ResponseWriter, err error) {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "not found", shared.ReasonOf(err))
	case shared.KindPreconditionFailed:
		Problem(w, http.StatusConflict, "precondition failed", shared.ReasonOf(err))
	case shared.KindValidationError:
		Problem(w, http.StatusUnprocessableEntity, "validation error", shared.ReasonOf(err))
	case shared.KindDependencyWriteFailed:
		Problem(w, http.StatusBadGateway, "dependency write failed", shared.ReasonOf(err))
	default:
		Problem(w, http.StatusInternalServerError, "internal error", "")
	}
}
