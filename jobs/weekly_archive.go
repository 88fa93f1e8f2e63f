package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/sucursal-ops/sucursal-ops/internal/jobs"
	"github.com/sucursal-ops/sucursal-ops/internal/task"
)

// WeeklyArchiveJob archives last week's branch tasks into summary rows
// and removes the archived task data. The summary insert is idempotent
// via the (branch, category, week-start) unique key, so a re-run after
// a partial failure never double-counts.
type WeeklyArchiveJob struct {
	Source  *pgxpool.Pool
	Annex   *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewWeeklyArchiveJob initialises the weekly archival handler.
func NewWeeklyArchiveJob(source, annex *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *WeeklyArchiveJob {
	return &WeeklyArchiveJob{
		Source:  source,
		Annex:   annex,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// archiveWindow returns the previous Monday-to-Sunday week for a given
// day.
func archiveWindow(today time.Time) (start, end time.Time) {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	sinceMonday := (int(day.Weekday()) + 6) % 7
	currentMonday := day.AddDate(0, 0, -sinceMonday)
	start = currentMonday.AddDate(0, 0, -7)
	end = currentMonday.AddDate(0, 0, -1)
	return start, end
}

// completionScore is the weekly branch score: completed tasks over all
// archived tasks, as a rounded percentage.
func completionScore(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// Handle executes the archival run.
func (j *WeeklyArchiveJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil || j.Annex == nil {
		return errors.New("weekly archive: handler not configured")
	}
	var payload WeeklyArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskWeeklyArchive)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	weekStart, weekEnd := archiveWindow(j.now())
	logger := j.logger().With(
		slog.String("week_start", weekStart.Format("2006-01-02")),
		slog.String("week_end", weekEnd.Format("2006-01-02")),
	)
	logger.Info("starting weekly task archival")

	branches, err := listBranchIDs(ctx, j.Source)
	if err != nil {
		resultErr = err
		logger.Error("list branches", slog.Any("error", err))
		return resultErr
	}

	summaries := 0
	archived := 0
	photosRemoved := 0
	for _, branchID := range branches {
		for _, category := range task.Categories {
			n, photos, err := j.archiveBranchCategory(ctx, branchID, category, weekStart, weekEnd)
			if err != nil {
				resultErr = err
				logger.Error("archive branch category",
					slog.Int64("branch_id", branchID),
					slog.String("category", string(category)),
					slog.Any("error", err))
				return resultErr
			}
			if n > 0 {
				summaries++
				archived += n
				photosRemoved += photos
				j.metrics().AddArchivedTasks(string(category), n)
			}
		}
	}

	logger.Info("weekly task archival finished",
		slog.Int("summaries", summaries),
		slog.Int("tasks_archived", archived),
		slog.Int("photos_removed", photosRemoved))
	return nil
}

// archiveBranchCategory summarises and removes one (branch, category)
// slice. Returns the number of archived tasks and removed photos.
func (j *WeeklyArchiveJob) archiveBranchCategory(ctx context.Context, branchID int64, category task.Category, weekStart, weekEnd time.Time) (int, int, error) {
	var completed, overdueInProgress, stalePending int
	err := j.Source.QueryRow(ctx, `SELECT
    COALESCE(SUM(CASE WHEN estado = 'completada' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN estado = 'en_progreso' AND fecha_vencimiento < CURRENT_DATE THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN estado = 'pendiente' AND fecha_asignacion < CURRENT_DATE - INTERVAL '7 days' THEN 1 ELSE 0 END), 0)
FROM tareas_sucursal WHERE sucursal_id = $1 AND categoria = $2`,
		branchID, string(category)).Scan(&completed, &overdueInProgress, &stalePending)
	if err != nil {
		return 0, 0, err
	}

	overdue := overdueInProgress + stalePending
	total := completed + overdue
	if total == 0 {
		return 0, 0, nil
	}

	_, err = j.Annex.Exec(ctx, `INSERT INTO tareas_resumen_semanal
(sucursal_id, categoria, semana_inicio, semana_fin, periodo, completadas, vencidas, pendientes_archivadas, total, puntaje)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
ON CONFLICT (sucursal_id, categoria, semana_inicio) DO NOTHING`,
		branchID, string(category), weekStart, weekEnd, weekStart.Format("2006-01"),
		completed, overdue, total, completionScore(completed, total))
	if err != nil {
		return 0, 0, err
	}

	rows, err := j.Source.Query(ctx, `SELECT id FROM tareas_sucursal
WHERE sucursal_id = $1 AND categoria = $2
  AND (
    estado = 'completada'
    OR (estado = 'en_progreso' AND fecha_vencimiento < CURRENT_DATE)
    OR (estado = 'pendiente' AND fecha_asignacion < CURRENT_DATE - INTERVAL '7 days')
  )`, branchID, string(category))
	if err != nil {
		return 0, 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}

	// Photos first: the summary row already committed, and a crash here
	// just leaves tasks for the next run.
	tag, err := j.Annex.Exec(ctx, `DELETE FROM tareas_fotos WHERE tarea_id = ANY($1)`, ids)
	if err != nil {
		return 0, 0, err
	}
	photos := int(tag.RowsAffected())

	if _, err := j.Source.Exec(ctx, `DELETE FROM tareas_sucursal WHERE id = ANY($1)`, ids); err != nil {
		return 0, photos, err
	}
	return len(ids), photos, nil
}

func (j *WeeklyArchiveJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *WeeklyArchiveJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *WeeklyArchiveJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
