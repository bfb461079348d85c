package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/imagegenio/orchestrator/internal/infrastructure/storage/models"
)

// ErrNoJobAvailable is returned by LeaseNext when the queue is empty.
var ErrNoJobAvailable = errors.New("no job available")

// maxJobAttempts bounds C8's at-least-once redelivery before a job is
// abandoned rather than re-leased forever.
const maxJobAttempts = 5

// Job is the durable queue's view of one dispatch request.
type Job struct {
	ID             string
	RequestID      string
	OrganizationID string
	Status         string
	Attempts       int
}

// JobRepository backs C8's durable FIFO dispatch queue with a Postgres
// jobs table. Lease acquisition uses raw SQL because bun's query builder
// has no helper for FOR UPDATE SKIP LOCKED.
type JobRepository struct {
	db *bun.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *bun.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Enqueue inserts a new queued job for a request.
func (r *JobRepository) Enqueue(ctx context.Context, requestID, organizationID string) (string, error) {
	m := &models.JobModel{
		ID:             uuid.New().String(),
		RequestID:      requestID,
		OrganizationID: organizationID,
		Status:         models.JobStatusQueued,
		Attempts:       0,
	}
	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return m.ID, nil
}

// LeaseNext atomically claims the oldest queued job, or ErrNoJobAvailable
// if none is waiting. SKIP LOCKED lets concurrent workers each pop a
// distinct row without blocking on one another.
func (r *JobRepository) LeaseNext(ctx context.Context) (*Job, error) {
	var job Job
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, request_id, organization_id, attempts
			FROM jobs
			WHERE status = ?
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		`, models.JobStatusQueued)

		if err := row.Scan(&job.ID, &job.RequestID, &job.OrganizationID, &job.Attempts); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoJobAvailable
			}
			return fmt.Errorf("scan leased job: %w", err)
		}

		now := time.Now()
		_, err := tx.NewUpdate().
			Model((*models.JobModel)(nil)).
			Set("status = ?", models.JobStatusLeased).
			Set("attempts = attempts + 1").
			Set("leased_at = ?", now).
			Where("id = ?", job.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("mark job leased: %w", err)
		}
		job.Status = models.JobStatusLeased
		job.Attempts++
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoJobAvailable) {
			return nil, ErrNoJobAvailable
		}
		return nil, err
	}
	return &job, nil
}

// Ack marks a leased job done after its request has reached a terminal state.
func (r *JobRepository) Ack(ctx context.Context, jobID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.JobModel)(nil)).
		Set("status = ?", models.JobStatusDone).
		Where("id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	return nil
}

// Nack returns a failed job to the queue for redelivery, unless it has
// exhausted its attempt budget, in which case it is marked done so it is
// not retried forever.
func (r *JobRepository) Nack(ctx context.Context, jobID string) error {
	m := &models.JobModel{}
	if err := r.db.NewSelect().Model(m).Where("id = ?", jobID).Scan(ctx); err != nil {
		return fmt.Errorf("load job for nack: %w", err)
	}

	status := models.JobStatusQueued
	if m.Attempts >= maxJobAttempts {
		status = models.JobStatusDone
	}
	_, err := r.db.NewUpdate().
		Model((*models.JobModel)(nil)).
		Set("status = ?", status).
		Set("leased_at = NULL").
		Where("id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("nack job: %w", err)
	}
	return nil
}
