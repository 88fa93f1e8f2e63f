package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskWeeklyArchive archives last week's tasks into summary rows.
	TaskWeeklyArchive = "tareas:archivo_semanal"
	// TaskReconcileOrphans sweeps stock-control tasks without a count.
	TaskReconcileOrphans = "conteos:reconciliar_huerfanas"
)

// WeeklyArchivePayload carries scheduling metadata for the archival run.
type WeeklyArchivePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewWeeklyArchiveTask constructs an Asynq task for the weekly archival.
func NewWeeklyArchiveTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(WeeklyArchivePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWeeklyArchive, body, asynq.Queue(QueueDefault)), nil
}

// ReconcileOrphansPayload configures the orphan sweep.
type ReconcileOrphansPayload struct {
	GraceMinutes int `json:"grace_minutes"`
}

// NewReconcileOrphansTask constructs an Asynq task for the orphan sweep.
func NewReconcileOrphansTask(graceMinutes int) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcileOrphansPayload{GraceMinutes: graceMinutes})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileOrphans, body, asynq.Queue(QueueDefault)), nil
}
