package storage

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/imagegenio/orchestrator/internal/domain"
	"github.com/imagegenio/orchestrator/internal/infrastructure/storage/models"
)

// AgentRepository loads judge agents and their owned documents/chunks.
type AgentRepository struct {
	db *bun.DB
}

// NewAgentRepository creates a new AgentRepository.
func NewAgentRepository(db *bun.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// FindByIDs loads the agents referenced by a request's judgeAgentIds, with
// their documents and chunks eagerly loaded.
func (r *AgentRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Agent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []*models.AgentModel
	err := r.db.NewSelect().
		Model(&rows).
		Relation("Documents").
		Relation("Documents.Chunks").
		Where("ag.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find agents by ids: %w", err)
	}
	agents := make([]domain.Agent, len(rows))
	for i, row := range rows {
		agents[i] = agentFromStorage(row)
	}
	return agents, nil
}
