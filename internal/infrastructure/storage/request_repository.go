package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/imagegenio/orchestrator/internal/domain"
	"github.com/imagegenio/orchestrator/internal/infrastructure/storage/models"
)

// RequestRepository persists GenerationRequest and its append-only
// iteration snapshots using bun.
type RequestRepository struct {
	db *bun.DB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *bun.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new generation request row.
func (r *RequestRepository) Create(ctx context.Context, req *domain.GenerationRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	m := requestToStorage(req)
	_, err := r.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("create generation request: %w", err)
	}
	return nil
}

// FindByID loads a request by id, excluding soft-deleted rows.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	m := &models.GenerationRequestModel{}
	err := r.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("generation request not found: %s", id)
		}
		return nil, fmt.Errorf("find generation request: %w", err)
	}
	return requestFromStorage(m), nil
}

// FindIterations loads every committed iteration snapshot for a request,
// ordered by iteration number, so in-memory state can be rebuilt.
func (r *RequestRepository) FindIterations(ctx context.Context, requestID string) ([]domain.IterationSnapshot, error) {
	var rows []*models.IterationSnapshotModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("request_id = ?", requestID).
		Order("iteration_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find iteration snapshots: %w", err)
	}
	snapshots := make([]domain.IterationSnapshot, len(rows))
	for i, row := range rows {
		snapshots[i] = snapshotFromStorage(row)
	}
	return snapshots, nil
}

// UpdateStatus persists a status transition (and optional completion
// fields) as its own write, per spec's per-boundary status updates.
func (r *RequestRepository) UpdateStatus(ctx context.Context, req *domain.GenerationRequest) error {
	m := requestToStorage(req)
	_, err := r.db.NewUpdate().
		Model(m).
		Column("status", "completion_reason", "error_message", "final_image_id", "completed_at", "costs").
		Where("id = ?", req.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update generation request status: %w", err)
	}
	return nil
}

// CommitIteration appends one iteration snapshot and advances
// currentIteration in a single transaction, matching spec.md §4.1's
// persistence ordering: crash before this commit loses the iteration;
// crash after resumes from currentIteration+1.
func (r *RequestRepository) CommitIteration(ctx context.Context, req *domain.GenerationRequest, snapshot domain.IterationSnapshot) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		snapshotModel := snapshotToStorage(req.ID, snapshot, uuid.New().String())
		if _, err := tx.NewInsert().Model(snapshotModel).Exec(ctx); err != nil {
			return fmt.Errorf("insert iteration snapshot: %w", err)
		}

		reqModel := requestToStorage(req)
		_, err := tx.NewUpdate().
			Model(reqModel).
			Column("current_iteration", "costs", "negative_prompts", "status").
			Where("id = ?", req.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("advance current iteration: %w", err)
		}
		return nil
	})
}

// UpdateNegativePrompts persists the negative-prompt accumulator text when
// it changed this iteration.
func (r *RequestRepository) UpdateNegativePrompts(ctx context.Context, req *domain.GenerationRequest) error {
	m := requestToStorage(req)
	_, err := r.db.NewUpdate().
		Model(m).
		Column("negative_prompts").
		Where("id = ?", req.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update negative prompts: %w", err)
	}
	return nil
}

// SoftDelete marks a request deleted without removing its row.
func (r *RequestRepository) SoftDelete(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*models.GenerationRequestModel)(nil)).
		Set("deleted_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("soft delete generation request: %w", err)
	}
	return nil
}
