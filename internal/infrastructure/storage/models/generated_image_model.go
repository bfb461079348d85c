package models

import (
	"time"

	"github.com/uptrace/bun"
)

// GeneratedImageModel is one immutable generated artifact row.
type GeneratedImageModel struct {
	bun.BaseModel `bun:"table:generated_images,alias:gi"`

	ID              string    `bun:"id,pk,type:uuid" json:"id"`
	RequestID       string    `bun:"request_id,notnull" json:"request_id"`
	IterationNumber int       `bun:"iteration_number,notnull" json:"iteration_number"`
	StorageKey      string    `bun:"storage_key,notnull" json:"storage_key"`
	PublicURL       string    `bun:"public_url,notnull" json:"public_url"`
	PromptUsed      string    `bun:"prompt_used,notnull" json:"prompt_used"`
	MimeType        string    `bun:"mime_type,notnull" json:"mime_type"`
	FileSizeBytes   int64     `bun:"file_size_bytes,notnull,default:0" json:"file_size_bytes"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (GeneratedImageModel) TableName() string { return "generated_images" }
