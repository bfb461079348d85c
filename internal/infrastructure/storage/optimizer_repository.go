package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/imagegenio/orchestrator/internal/domain"
	"github.com/imagegenio/orchestrator/internal/infrastructure/storage/models"
)

// OptimizerRepository persists the process-wide prompt optimizer singleton.
// It implements optimizer.Store.
type OptimizerRepository struct {
	db *bun.DB
}

// NewOptimizerRepository creates a new OptimizerRepository.
func NewOptimizerRepository(db *bun.DB) *OptimizerRepository {
	return &OptimizerRepository{db: db}
}

// LoadOptimizerConfig returns the singleton row, or (nil, nil) if it has
// never been created.
func (r *OptimizerRepository) LoadOptimizerConfig(ctx context.Context) (*domain.PromptOptimizerConfig, error) {
	m := &models.PromptOptimizerModel{}
	err := r.db.NewSelect().Model(m).Where("id = ?", models.SingletonOptimizerID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load optimizer config: %w", err)
	}
	return optimizerFromStorage(m), nil
}

// SaveOptimizerConfig upserts the singleton row.
func (r *OptimizerRepository) SaveOptimizerConfig(ctx context.Context, cfg *domain.PromptOptimizerConfig) error {
	m := optimizerToStorage(cfg)
	_, err := r.db.NewInsert().
		Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("system_prompt = EXCLUDED.system_prompt").
		Set("model = EXCLUDED.model").
		Set("temperature = EXCLUDED.temperature").
		Set("max_tokens = EXCLUDED.max_tokens").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save optimizer config: %w", err)
	}
	return nil
}
