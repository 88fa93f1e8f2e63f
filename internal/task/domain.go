package task

import "time"

// Category enumerates branch task categories. Values keep the labels
// the authoritative store already uses.
type Category string

const (
	CategoryCleanliness  Category = "ORDEN Y LIMPIEZA"
	CategoryMaintenance  Category = "MANTENIMIENTO SUCURSAL"
	CategoryStockControl Category = "CONTROL Y GESTION DE STOCK"
	CategoryAdmin        Category = "GESTION ADMINISTRATIVA EN SISTEMA"
)

// Categories lists all valid categories.
var Categories = []Category{CategoryCleanliness, CategoryMaintenance, CategoryStockControl, CategoryAdmin}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Status enumerates task lifecycle states.
type Status string

const (
	StatusPending    Status = "pendiente"
	StatusInProgress Status = "en_progreso"
	StatusCompleted  Status = "completada"
)

// Task is a unit of assigned branch work in the source-adjacent store.
type Task struct {
	ID           int64
	BranchID     int64
	Category     Category
	Title        string
	Description  string
	AssignerID   int64
	AssignedOn   time.Time
	DueOn        time.Time
	Status       Status
	CompleterID  *int64
	CompletedAt  *time.Time
	CreatedAt    time.Time
	AssignerName string
}

// CreateTaskInput carries the fields needed to insert a task.
type CreateTaskInput struct {
	BranchID    int64
	Category    Category
	Title       string
	Description string
	AssignerID  int64
	AssignedOn  time.Time
	DueOn       time.Time
}

// ListTasksRequest filters the task listing.
type ListTasksRequest struct {
	BranchID int64
	Category Category
	Status   Status
	Limit    int
}
