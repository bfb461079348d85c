package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Job lease states for C8's durable FIFO queue.
const (
	JobStatusQueued = "queued"
	JobStatusLeased = "leased"
	JobStatusDone   = "done"
)

// JobModel is one durable job row in C8's at-least-once delivery queue.
type JobModel struct {
	bun.BaseModel `bun:"table:jobs,alias:jb"`

	ID             string     `bun:"id,pk,type:uuid" json:"id"`
	RequestID      string     `bun:"request_id,notnull" json:"request_id"`
	OrganizationID string     `bun:"organization_id,notnull" json:"organization_id"`
	Status         string     `bun:"status,notnull,default:'queued'" json:"status"`
	Attempts       int        `bun:"attempts,notnull,default:0" json:"attempts"`
	LeasedAt       *time.Time `bun:"leased_at" json:"leased_at,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (JobModel) TableName() string { return "jobs" }
