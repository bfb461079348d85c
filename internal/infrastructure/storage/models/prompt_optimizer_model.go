package models

import "github.com/uptrace/bun"

// SingletonOptimizerID is the fixed row id of the process-wide optimizer
// singleton.
const SingletonOptimizerID = "singleton"

// PromptOptimizerModel is the process-wide singleton optimizer config row.
type PromptOptimizerModel struct {
	bun.BaseModel `bun:"table:prompt_optimizer,alias:po"`

	ID           string  `bun:"id,pk" json:"id"`
	SystemPrompt string  `bun:"system_prompt,notnull" json:"system_prompt"`
	Model        string  `bun:"model,notnull" json:"model"`
	Temperature  float64 `bun:"temperature,notnull" json:"temperature"`
	MaxTokens    int     `bun:"max_tokens,notnull" json:"max_tokens"`
}

func (PromptOptimizerModel) TableName() string { return "prompt_optimizer" }
