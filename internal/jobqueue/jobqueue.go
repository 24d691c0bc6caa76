/*
Package jobqueue provides a River-based job queue for durable reminder
scheduling. A reminder job carries only the request handle; the worker
re-reads live request state when the job fires, so a reminder scheduled
before a restart stays inert if the request resolved in the meantime.
*/
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/fineflow/internal/approval"
)

// ReminderArgs are the arguments of one reminder job.
type ReminderArgs struct {
	Handle string `json:"handle"`
}

// Kind returns the job kind for River
func (ReminderArgs) Kind() string { return "fine_reminder" }

// ReminderWorker fires due reminders through the approval service.
type ReminderWorker struct {
	river.WorkerDefaults[ReminderArgs]
	svc *approval.Service
}

// Work fires one reminder.
func (w *ReminderWorker) Work(ctx context.Context, job *river.Job[ReminderArgs]) error {
	log.Debug().Str("handle", job.Args.Handle).Msg("reminder job firing")
	return w.svc.FireReminder(ctx, job.Args.Handle)
}

// Queue manages the River job queue. It implements
// approval.ReminderScheduler.
type Queue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
}

// NewQueue creates the reminder queue on an existing connection pool.
func NewQueue(pool *pgxpool.Pool, svc *approval.Service, cfg *QueueConfig) (*Queue, error) {
	if cfg == nil {
		cfg = DefaultQueueConfig()
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &ReminderWorker{svc: svc})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:      cfg.RiverQueueConfig(),
		Workers:     workers,
		MaxAttempts: cfg.MaxRetries,
		JobTimeout:  cfg.JobTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &Queue{client: client, pool: pool}, nil
}

// Start starts the job queue workers
func (q *Queue) Start(ctx context.Context) error {
	return q.client.Start(ctx)
}

// Stop stops the job queue workers
func (q *Queue) Stop(ctx context.Context) error {
	return q.client.Stop(ctx)
}

// ScheduleReminder enqueues the one-shot reminder job for a request.
func (q *Queue) ScheduleReminder(ctx context.Context, handle string, at time.Time) error {
	_, err := q.client.Insert(ctx, ReminderArgs{Handle: handle}, &river.InsertOpts{
		ScheduledAt: at,
	})
	if err != nil {
		return fmt.Errorf("failed to queue reminder job: %w", err)
	}
	return nil
}
