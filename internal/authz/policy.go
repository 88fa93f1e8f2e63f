package authz

import "strings"

// Operation names a guarded workflow transition.
type Operation string

const (
	OpCreateCount       Operation = "count.create"
	OpEditCount         Operation = "count.edit"
	OpSubmitCount       Operation = "count.submit"
	OpReviewCount       Operation = "count.review"
	OpCloseCount        Operation = "count.close"
	OpCreateTask        Operation = "task.create"
	OpUpdateTaskStatus  Operation = "task.update_status"
	OpCreateSuggestion  Operation = "suggestion.create"
	OpResolveSuggestion Operation = "suggestion.resolve"
)

// supervisorRoles are matched as substrings against rol/nivel/puesto,
// mirroring how the employee records actually store them ("Encargado de
// sucursal", "GERENCIA", etc).
var supervisorRoles = []string{"supervisor", "encargado", "admin", "gerente", "gerencia"}

// supervisorOnly lists operations gated to supervisor-or-above.
var supervisorOnly = map[Operation]bool{
	OpCreateCount:       true,
	OpReviewCount:       true,
	OpCloseCount:        true,
	OpCreateTask:        true,
	OpResolveSuggestion: true,
}

// IsSupervisor reports whether the principal holds a supervisor-or-above
// role in any of its role attributes.
func IsSupervisor(p Principal) bool {
	attrs := []string{strings.ToLower(p.Rol), strings.ToLower(p.Nivel), strings.ToLower(p.Puesto)}
	for _, role := range supervisorRoles {
		for _, attr := range attrs {
			if attr != "" && strings.Contains(attr, role) {
				return true
			}
		}
	}
	return false
}

// CanPerform reports whether the principal may attempt the operation.
// Branch ownership is checked separately against the target entity.
func CanPerform(p Principal, op Operation) bool {
	if p.BranchID == 0 {
		return false
	}
	if supervisorOnly[op] {
		return IsSupervisor(p)
	}
	return true
}
