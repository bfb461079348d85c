package models

import (
	"time"

	"github.com/uptrace/bun"
)

// GenerationRequestModel is the root aggregate row driving one iteration loop.
type GenerationRequestModel struct {
	bun.BaseModel `bun:"table:generation_requests,alias:gr"`

	ID                 string     `bun:"id,pk,type:uuid" json:"id"`
	OrganizationID      string     `bun:"organization_id,notnull" json:"organization_id"`
	CreatedByUserID     string     `bun:"created_by_user_id,notnull" json:"created_by_user_id"`
	Brief               string     `bun:"brief,notnull" json:"brief"`
	InitialPrompt       string     `bun:"initial_prompt" json:"initial_prompt,omitempty"`
	ReferenceImageURLs  StringArray `bun:"reference_image_urls,type:text[]" json:"reference_image_urls,omitempty"`
	NegativePrompts     string     `bun:"negative_prompts" json:"negative_prompts,omitempty"`
	JudgeAgentIDs       StringArray `bun:"judge_agent_ids,type:text[],notnull" json:"judge_agent_ids"`
	Image               JSONBMap   `bun:"image,type:jsonb,notnull,default:'{}'" json:"image"`
	Threshold           float64    `bun:"threshold,notnull" json:"threshold"`
	MaxIterations       int        `bun:"max_iterations,notnull" json:"max_iterations"`
	GenerationMode      string     `bun:"generation_mode,notnull" json:"generation_mode"`
	Status              string     `bun:"status,notnull,default:'PENDING'" json:"status"`
	CompletionReason    string     `bun:"completion_reason" json:"completion_reason,omitempty"`
	CurrentIteration    int        `bun:"current_iteration,notnull,default:0" json:"current_iteration"`
	Costs               JSONBMap   `bun:"costs,type:jsonb,notnull,default:'{}'" json:"costs"`
	FinalImageID        string     `bun:"final_image_id" json:"final_image_id,omitempty"`
	ErrorMessage        string     `bun:"error_message" json:"error_message,omitempty"`
	CreatedAt           time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	CompletedAt         *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
	DeletedAt           *time.Time `bun:"deleted_at,soft_delete" json:"deleted_at,omitempty"`
}

func (GenerationRequestModel) TableName() string { return "generation_requests" }
