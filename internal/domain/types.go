// Package domain holds the core entities and enums of the iteration
// orchestrator, independent of persistence or transport concerns.
package domain

import "time"

// RequestStatus is the lifecycle status of a GenerationRequest.
type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusOptimizing RequestStatus = "OPTIMIZING"
	StatusGenerating RequestStatus = "GENERATING"
	StatusEvaluating RequestStatus = "EVALUATING"
	StatusCompleted  RequestStatus = "COMPLETED"
	StatusFailed     RequestStatus = "FAILED"
	StatusCancelled  RequestStatus = "CANCELLED"
)

// IsTerminal reports whether the status is a terminal state.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CompletionReason explains why a request reached a terminal status.
type CompletionReason string

const (
	ReasonSuccess           CompletionReason = "SUCCESS"
	ReasonMaxRetriesReached CompletionReason = "MAX_RETRIES_REACHED"
	ReasonDiminishingReturns CompletionReason = "DIMINISHING_RETURNS"
	ReasonCancelled         CompletionReason = "CANCELLED"
	ReasonError             CompletionReason = "ERROR"
)

// GenerationMode selects the strategy family for a request.
type GenerationMode string

const (
	ModeRegeneration GenerationMode = "REGENERATION"
	ModeEdit         GenerationMode = "EDIT"
	ModeMixed        GenerationMode = "MIXED"
)

// IterationMode is the strategy actually used for one iteration.
type IterationMode string

const (
	IterationRegenerate IterationMode = "regeneration"
	IterationEdit       IterationMode = "edit"
)

// Severity ranks the impact of a judge's top issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// severityRank orders severities from most to least impactful, lower is worse.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityMajor:    1,
	SeverityModerate: 2,
	SeverityMinor:    3,
}

// Rank returns a sortable rank for the severity; unknown severities sort last.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// ModelTier selects which model family a judge or optimizer call uses.
type ModelTier string

const (
	ModelTierPro   ModelTier = "PRO"
	ModelTierFlash ModelTier = "FLASH"
)

// ImageParams bundles the per-request image generation tuning knobs.
type ImageParams struct {
	ImagesPerGeneration int
	AspectRatio         string
	Quality             string
	PlateauWindowSize   int
	PlateauThreshold    float64
}

// CostAccumulator is a monotone-increasing tally of resource usage.
type CostAccumulator struct {
	LLMTokens           int64   `json:"llmTokens"`
	ImageGenerations    int64   `json:"imageGenerations"`
	EmbeddingTokens     int64   `json:"embeddingTokens"`
	TotalEstimatedCost  float64 `json:"totalEstimatedCost"`
}

// Add merges delta into the accumulator. All fields are monotone-increasing
// so Add never decreases any field.
func (c *CostAccumulator) Add(delta CostAccumulator) {
	c.LLMTokens += delta.LLMTokens
	c.ImageGenerations += delta.ImageGenerations
	c.EmbeddingTokens += delta.EmbeddingTokens
	c.TotalEstimatedCost += delta.TotalEstimatedCost
}

// GenerationRequest is the root aggregate driving one iteration loop.
type GenerationRequest struct {
	ID                 string
	OrganizationID     string
	CreatedByUserID    string
	Brief              string
	InitialPrompt      string
	ReferenceImageURLs []string
	NegativePrompts    string
	JudgeAgentIDs      []string
	Image              ImageParams
	Threshold          float64
	MaxIterations      int
	GenerationMode     GenerationMode
	Status             RequestStatus
	CompletionReason   CompletionReason
	CurrentIteration   int
	Iterations         []IterationSnapshot
	Costs              CostAccumulator
	FinalImageID       string
	ErrorMessage       string
	CreatedAt          time.Time
	CompletedAt        *time.Time
	DeletedAt          *time.Time
}

// BestIteration returns the highest-scoring iteration seen so far, with
// ties broken in favor of the later iteration (>= comparison), matching the
// source system's "overwrite best on tie" behavior.
func (r *GenerationRequest) BestIteration() *IterationSnapshot {
	var best *IterationSnapshot
	for i := range r.Iterations {
		it := &r.Iterations[i]
		if best == nil || it.AggregateScore >= best.AggregateScore {
			best = it
		}
	}
	return best
}

// IterationSnapshot is immutable once appended to a GenerationRequest.
type IterationSnapshot struct {
	IterationNumber      int
	OptimizedPrompt      string
	Mode                 IterationMode
	EditSourceImageID    string
	ConsecutiveEditCount int
	SelectedImageID      string
	AggregateScore       float64
	Evaluations          []EvaluationRecord
	CreatedAt            time.Time
}

// TopIssue is the single most impactful flaw a judge identified.
type TopIssue struct {
	Problem  string   `json:"problem"`
	Severity Severity `json:"severity"`
	Fix      string   `json:"fix"`
}

// ChecklistItem is one named pass/fail check a judge reports.
type ChecklistItem struct {
	Passed bool   `json:"passed"`
	Note   string `json:"note"`
}

// EvaluationRecord is one judge's scoring of one image.
type EvaluationRecord struct {
	AgentID             string
	AgentName           string
	ImageID             string
	OverallScore        float64
	Weight              float64
	Feedback            string
	CategoryScores      map[string]float64
	TopIssue            *TopIssue
	WhatWorked          []string
	Checklist           map[string]ChecklistItem
	PromptInstructions  []string
}

// GeneratedImage is an immutable artifact produced during one iteration.
type GeneratedImage struct {
	ID              string
	RequestID       string
	IterationNumber int
	StorageKey      string
	PublicURL       string
	PromptUsed      string
	MimeType        string
	FileSizeBytes   int64
	CreatedAt       time.Time
}

// RAGConfig tunes per-agent retrieval behavior.
type RAGConfig struct {
	TopK               int
	SimilarityThreshold float64
}

// DefaultRAGConfig returns the spec's defaults (topK=5, threshold=0.7).
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{TopK: 5, SimilarityThreshold: 0.7}
}

// Agent is the judge-facing view of an agent: its rubric, weight, model
// tier, and owned document set.
type Agent struct {
	ID                   string
	OrganizationID       string
	Name                 string
	SystemPrompt         string
	JudgePrompt          string
	ScoringWeight        float64
	CanJudge             bool
	EvaluationCategories []string
	RAG                  RAGConfig
	ModelTier            ModelTier
	Documents            []AgentDocument
}

// AgentDocument exclusively owns an ordered set of DocumentChunks.
type AgentDocument struct {
	ID      string
	AgentID string
	Name    string
	Chunks  []DocumentChunk
}

// DocumentChunk is one embedded slice of a document, addressable by index.
type DocumentChunk struct {
	ID         string
	ChunkIndex int
	Content    string
	Embedding  []float64
}

// PromptOptimizerConfig is the process-wide singleton optimizer state.
type PromptOptimizerConfig struct {
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// DefaultOptimizerSystemPrompt is used to lazily create the singleton.
const DefaultOptimizerSystemPrompt = `You are an expert prompt engineer for AI image generation. ` +
	`Given a brief, prior judge feedback, and retrieved reference guidelines, write a single, ` +
	`highly detailed prompt that addresses every critical issue while preserving what already works.`

// NewDefaultOptimizerConfig returns the optimizer's lazily-created defaults.
func NewDefaultOptimizerConfig() *PromptOptimizerConfig {
	return &PromptOptimizerConfig{
		SystemPrompt: DefaultOptimizerSystemPrompt,
		Model:        "gpt-4o",
		Temperature:  0.7,
		MaxTokens:    2000,
	}
}
