package models

import (
	"time"

	"github.com/uptrace/bun"
)

// IterationSnapshotModel is one immutable iteration row, append-only per request.
type IterationSnapshotModel struct {
	bun.BaseModel `bun:"table:iteration_snapshots,alias:isn"`

	ID                   string    `bun:"id,pk,type:uuid" json:"id"`
	RequestID            string    `bun:"request_id,notnull" json:"request_id"`
	IterationNumber      int       `bun:"iteration_number,notnull" json:"iteration_number"`
	OptimizedPrompt      string    `bun:"optimized_prompt,notnull" json:"optimized_prompt"`
	Mode                 string    `bun:"mode,notnull" json:"mode"`
	EditSourceImageID    string    `bun:"edit_source_image_id" json:"edit_source_image_id,omitempty"`
	ConsecutiveEditCount int       `bun:"consecutive_edit_count,notnull,default:0" json:"consecutive_edit_count"`
	SelectedImageID      string    `bun:"selected_image_id,notnull" json:"selected_image_id"`
	AggregateScore       float64   `bun:"aggregate_score,notnull" json:"aggregate_score"`
	Evaluations          JSONBList `bun:"evaluations,type:jsonb,notnull,default:'[]'" json:"evaluations"`
	CreatedAt            time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (IterationSnapshotModel) TableName() string { return "iteration_snapshots" }
