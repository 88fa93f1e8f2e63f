// Package count implements the stock-count approval workflow: a count
// moves draft → submitted → approved/rejected, and an approved count is
// closed in a second supervisor action that completes the linked task.
package count

import "time"

// Status enumerates the workflow states. Values keep the labels the
// annex store already uses.
type Status string

const (
	StatusDraft     Status = "borrador"
	StatusSubmitted Status = "enviado"
	StatusApproved  Status = "aprobado"
	StatusRejected  Status = "rechazado"
	StatusClosed    Status = "cerrado"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusClosed
}

// StockCount records one physical count tied 1:1 to a task.
type StockCount struct {
	ID       int64
	TaskID   int64
	BranchID int64
	// EmployeeID is the performer who initiated the count.
	EmployeeID int64
	Status     Status
	// CountedAt is the business-critical moment of count, set on every
	// save and submit. Purchasing decisions read it.
	CountedAt       *time.Time
	ReviewerID      *int64
	ReviewedAt      *time.Time
	ReviewerComment *string
	Aggregates
	CreatedAt time.Time
	UpdatedAt time.Time

	EmployeeName string
	ReviewerName string
	Lines        []CountLine
}

// CountLine is one product row: an immutable snapshot of product
// identity, price and system stock at count creation, plus the mutable
// actual count and note.
type CountLine struct {
	ID          int64
	CountID     int64
	ItemCode    string
	Name        string
	UnitPrice   float64
	SystemStock int
	Actual      *int
	Variance    *int
	Notes       *string
	CreatedAt   time.Time
}

// Aggregates are derived counters persisted on the count. They are
// always a pure function of the lines (see Recalculate) and are never
// hand-edited.
type Aggregates struct {
	TotalItems        int
	ItemsCounted      int
	ItemsWithVariance int
	VarianceValue     float64
}

// LineSnapshot is the immutable product portion of a new line.
type LineSnapshot struct {
	ItemCode    string
	Name        string
	UnitPrice   float64
	SystemStock int
}

// CreateCountInput describes the two-store create operation.
type CreateCountInput struct {
	Title       string
	Description string
	DueDate     time.Time
	Lines       []LineSnapshot
}

// LineUpdate carries one mutable-line change. Nil Actual clears the
// count; nil Notes leaves notes untouched on single-line edits.
type LineUpdate struct {
	LineID int64
	Actual *int
	Notes  *string
}

// ReviewDecision is the reviewer verdict.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "aprobado"
	DecisionReject  ReviewDecision = "rechazado"
)

// AuditSummary aggregates counts for the branch audit view.
type AuditSummary struct {
	PendingReview   int     `json:"conteos_pendientes"`
	ReviewedMonth   int     `json:"conteos_revisados_mes"`
	VarianceMonth   int     `json:"diferencia_total_mes"`
	ValuationMonth  float64 `json:"valorizacion_diferencia_mes"`
	AwaitingClosure int     `json:"conteos_por_cerrar"`
}

// AuditListRequest filters the audit listing.
type AuditListRequest struct {
	Status Status
	// Month filters by count timestamp, format YYYY-MM.
	Month string
	Limit int
}
