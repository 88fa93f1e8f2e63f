package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sucursal-ops/sucursal-ops/jobs"
)

// Enqueuer places jobs on the queue. Satisfied by jobs.Client.
type Enqueuer interface {
	EnqueueWeeklyArchive(ctx context.Context, at time.Time) (*asynq.TaskInfo, error)
	EnqueueReconcileOrphans(ctx context.Context, graceMinutes int) (*asynq.TaskInfo, error)
	Close() error
}

// QueueInspector reads queue state for reporting.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for the background jobs.
type JobsCLI struct {
	enqueuer  Enqueuer
	inspector QueueInspector
	closers   []io.Closer
}

// NewJobsCLI initialises the CLI helpers against the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{
		enqueuer:  client,
		inspector: inspector,
		closers:   []io.Closer{client, inspector},
	}, nil
}

// Close releases underlying connections.
func (c *JobsCLI) Close() error {
	var err error
	for _, closer := range c.closers {
		if closeErr := closer.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// TriggerOptions defines available flags for the jobs trigger command.
type TriggerOptions struct {
	Job          string
	GraceMinutes int
	JSONOutput   bool
	Stdout       io.Writer
	Stderr       io.Writer
}

// TriggerCommand enqueues a supported job by name and prints the outcome.
func (c *JobsCLI) TriggerCommand(ctx context.Context, opts TriggerOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if c == nil || c.enqueuer == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "jobs trigger: client not configured")
		return 1
	}

	var info *asynq.TaskInfo
	var err error
	switch opts.Job {
	case jobs.TaskWeeklyArchive:
		info, err = c.enqueuer.EnqueueWeeklyArchive(ctx, time.Now().UTC())
	case jobs.TaskReconcileOrphans:
		grace := opts.GraceMinutes
		if grace <= 0 {
			grace = 60
		}
		info, err = c.enqueuer.EnqueueReconcileOrphans(ctx, grace)
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: unsupported job %q (want %s or %s)\n",
			opts.Job, jobs.TaskWeeklyArchive, jobs.TaskReconcileOrphans)
		return 1
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: enqueue: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		payload := map[string]string{"id": info.ID, "queue": info.Queue, "type": info.Type}
		if err := json.NewEncoder(opts.Stdout).Encode(payload); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s as %s on queue %s\n", info.Type, info.ID, info.Queue)
	return 0
}

// StatusOptions defines available flags for the jobs status command.
type StatusOptions struct {
	ScheduledPageSize int
	JSONOutput        bool
	Stdout            io.Writer
	Stderr            io.Writer
}

// QueueStatus summarises the current queue state.
type QueueStatus struct {
	Queue     string          `json:"queue"`
	Pending   int             `json:"pending"`
	Active    int             `json:"active"`
	Scheduled int             `json:"scheduled"`
	Retry     int             `json:"retry"`
	Upcoming  []ScheduledTask `json:"upcoming"`
}

// ScheduledTask reports one scheduled entry.
type ScheduledTask struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	NextAt time.Time `json:"next_at"`
}

// StatusCommand reports queue depth and the next scheduled runs.
func (c *JobsCLI) StatusCommand(ctx context.Context, opts StatusOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	status, err := c.queueStatus(ctx, opts.ScheduledPageSize)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs status: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(status); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs status: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "queue %s: pending=%d active=%d scheduled=%d retry=%d\n",
		status.Queue, status.Pending, status.Active, status.Scheduled, status.Retry)
	if len(status.Upcoming) == 0 {
		_, _ = fmt.Fprintln(opts.Stdout, "no scheduled tasks")
		return 0
	}
	_, _ = fmt.Fprintln(opts.Stdout, "next scheduled:")
	for _, entry := range status.Upcoming {
		_, _ = fmt.Fprintf(opts.Stdout, " - %s (%s) at %s\n", entry.Type, entry.ID, entry.NextAt.Format(time.RFC3339))
	}
	return 0
}

func (c *JobsCLI) queueStatus(_ context.Context, pageSize int) (QueueStatus, error) {
	if c == nil || c.inspector == nil {
		return QueueStatus{}, errors.New("inspector not configured")
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStatus{}, err
	}
	status := QueueStatus{Queue: jobs.QueueDefault}
	if info != nil {
		status.Pending = info.Pending
		status.Active = info.Active
		status.Scheduled = info.Scheduled
		status.Retry = info.Retry
	}
	scheduled, err := c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(pageSize), asynq.Page(1))
	if err != nil {
		return QueueStatus{}, err
	}
	status.Upcoming = make([]ScheduledTask, 0, len(scheduled))
	for _, entry := range scheduled {
		status.Upcoming = append(status.Upcoming, ScheduledTask{
			ID:     entry.ID,
			Type:   entry.Type,
			NextAt: entry.NextProcessAt,
		})
	}
	return status, nil
}
