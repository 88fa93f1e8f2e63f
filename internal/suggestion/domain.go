// Package suggestion implements the count-suggestion workflow: any
// employee proposes a product set to count, a supervisor resolves the
// proposal, and approval spawns a stock-control task.
package suggestion

import "time"

// Status enumerates suggestion states. Resolution is terminal.
type Status string

const (
	StatusPending  Status = "pendiente"
	StatusApproved Status = "aprobada"
	StatusRejected Status = "rechazada"
)

// Product is one proposed item, embedded as JSON on the suggestion.
type Product struct {
	ItemCode    string  `json:"cod_item"`
	Name        string  `json:"nombre"`
	UnitPrice   float64 `json:"precio"`
	SystemStock int     `json:"stock_sistema"`
}

// Suggestion is an employee proposal pending supervisor decision.
type Suggestion struct {
	ID            int64
	BranchID      int64
	ProposerID    int64
	Products      []Product
	Justification string
	Status        Status
	SuggestedAt   time.Time
	ResolverID    *int64
	ResolvedAt    *time.Time
	// ScheduledOn is the agreed count date, format YYYY-MM-DD. Required
	// on approval.
	ScheduledOn     *string
	ResolverComment *string
	// SpawnedTaskID links the task created on approval. One-way: the
	// count against that task is initiated separately.
	SpawnedTaskID *int64
	CreatedAt     time.Time

	ProposerName string
	ResolverName string
}

// CreateSuggestionInput carries a new proposal.
type CreateSuggestionInput struct {
	Products      []Product
	Justification string
}

// ResolveAction is the supervisor verdict.
type ResolveAction string

const (
	ActionApprove ResolveAction = "aprobar"
	ActionReject  ResolveAction = "rechazar"
)

// ResolveInput carries the resolution.
type ResolveInput struct {
	Action      ResolveAction
	ScheduledOn string
	Comment     *string
}
