package models

import "github.com/uptrace/bun"

// AgentDocumentModel exclusively owns an ordered set of DocumentChunkModel.
type AgentDocumentModel struct {
	bun.BaseModel `bun:"table:agent_documents,alias:ad"`

	ID      string `bun:"id,pk,type:uuid" json:"id"`
	AgentID string `bun:"agent_id,notnull" json:"agent_id"`
	Name    string `bun:"name,notnull" json:"name"`

	Chunks []*DocumentChunkModel `bun:"rel:has-many,join:id=document_id" json:"chunks,omitempty"`
}

func (AgentDocumentModel) TableName() string { return "agent_documents" }

// DocumentChunkModel is one embedded slice of a document, addressable by index.
type DocumentChunkModel struct {
	bun.BaseModel `bun:"table:document_chunks,alias:dc"`

	ID         string  `bun:"id,pk,type:uuid" json:"id"`
	DocumentID string  `bun:"document_id,notnull" json:"document_id"`
	ChunkIndex int     `bun:"chunk_index,notnull" json:"chunk_index"`
	Content    string  `bun:"content,notnull" json:"content"`
	Embedding  JSONBList `bun:"embedding,type:jsonb,notnull,default:'[]'" json:"embedding"`
}

func (DocumentChunkModel) TableName() string { return "document_chunks" }
