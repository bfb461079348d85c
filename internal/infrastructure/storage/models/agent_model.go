package models

import "github.com/uptrace/bun"

// AgentModel is the judge-facing view of an agent: rubric, weight, model
// tier, and owned documents.
type AgentModel struct {
	bun.BaseModel `bun:"table:agents,alias:ag"`

	ID                   string      `bun:"id,pk,type:uuid" json:"id"`
	OrganizationID       string      `bun:"organization_id,notnull" json:"organization_id"`
	Name                 string      `bun:"name,notnull" json:"name"`
	SystemPrompt         string      `bun:"system_prompt,notnull" json:"system_prompt"`
	JudgePrompt          string      `bun:"judge_prompt" json:"judge_prompt,omitempty"`
	ScoringWeight        float64     `bun:"scoring_weight,notnull,default:0" json:"scoring_weight"`
	CanJudge             bool        `bun:"can_judge,notnull,default:false" json:"can_judge"`
	EvaluationCategories StringArray `bun:"evaluation_categories,type:text[]" json:"evaluation_categories,omitempty"`
	RAGTopK              int         `bun:"rag_top_k,notnull,default:5" json:"rag_top_k"`
	RAGSimilarityThreshold float64   `bun:"rag_similarity_threshold,notnull,default:0.7" json:"rag_similarity_threshold"`
	ModelTier            string      `bun:"model_tier,notnull,default:'FLASH'" json:"model_tier"`

	Documents []*AgentDocumentModel `bun:"rel:has-many,join:id=agent_id" json:"documents,omitempty"`
}

func (AgentModel) TableName() string { return "agents" }
