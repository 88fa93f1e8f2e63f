package auth

// Employee mirrors the read-only employee record in the source store.
// Role attributes are free-text columns maintained by HR; the
// authorization policy matches against all three.
type Employee struct {
	ID           int64
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	BranchID     int64
	Rol          string
	Nivel        string
	Puesto       string
	Active       bool
}
