// Package judge implements C4, the evaluation panel: scoring one image
// against one agent's rubric, running the full panel in parallel, parsing
// the model's JSON response, and aggregating weighted scores.
package judge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/imagegenio/orchestrator/internal/domain"
	"github.com/imagegenio/orchestrator/internal/infrastructure/metrics"
	"github.com/imagegenio/orchestrator/internal/infrastructure/tracing"
	"github.com/imagegenio/orchestrator/internal/rag"
)

const evaluationTemperature = 0.3

const defaultJudgeTemplate = `Evaluate the attached image against the brief and your rubric.

Respond with a single JSON object only, no prose outside it:
{
  "score": <0-100>,
  "feedback": "<2-4 sentences>",
  "categoryScores": {"<category>": <0-100>, ...},
  "topIssue": {"problem": "...", "severity": "critical|major|moderate|minor", "fix": "..."},
  "whatWorked": ["..."],
  "checklist": {"<item>": {"passed": true|false, "note": "..."}},
  "promptInstructions": ["..."]
}`

// ChatClient is the subset of go-openai's chat completion surface the
// evaluator depends on, so tests can substitute a fake.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ModelResolver maps a judge's model tier to a concrete model id.
type ModelResolver interface {
	ModelFor(tier domain.ModelTier) string
}

// IterationContext carries the scoring history the judge must not inflate
// against.
type IterationContext struct {
	IterationNumber int
	MaxIterations   int
	PreviousScores  []float64
}

// Evaluator runs judge agents against generated images.
type Evaluator struct {
	Client   ChatClient
	Models   ModelResolver
	Embedder rag.Embedder
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(client ChatClient, models ModelResolver, embedder rag.Embedder) *Evaluator {
	return &Evaluator{Client: client, Models: models, Embedder: embedder}
}

// hasOutputFormatSection reports whether text contains a recognizable
// "OUTPUT FORMAT" heading, case-insensitively.
func hasOutputFormatSection(text string) bool {
	return strings.Contains(strings.ToUpper(text), "OUTPUT FORMAT")
}

// effectiveSystemMessage composes a judge's system prompt per spec: the
// agent's own prompt, plus its judgePrompt if that prompt defines its own
// output format, else the default judge template.
func effectiveSystemMessage(agent domain.Agent) string {
	var b strings.Builder
	b.WriteString(agent.SystemPrompt)
	if hasOutputFormatSection(agent.JudgePrompt) {
		b.WriteString("\n---\n")
		b.WriteString(agent.JudgePrompt)
	} else {
		b.WriteString("\n---\n")
		b.WriteString(defaultJudgeTemplate)
	}
	return b.String()
}

func buildUserText(brief, promptUsed string, ragChunks []rag.ScoredChunk, iter *IterationContext) string {
	var b strings.Builder

	if iter != nil && len(iter.PreviousScores) > 0 {
		fmt.Fprintf(&b, "Iteration %d of %d. Previous scores: %v.\n", iter.IterationNumber, iter.MaxIterations, iter.PreviousScores)
		b.WriteString("Score this attempt strictly on its own merits. Do not inflate the score relative to earlier iterations.\n\n")
	}

	fmt.Fprintf(&b, "Brief: %s\n", brief)
	fmt.Fprintf(&b, "Prompt used to generate this image: %s\n", promptUsed)

	if len(ragChunks) > 0 {
		b.WriteString("\nReference guidelines:\n")
		for _, c := range ragChunks {
			fmt.Fprintf(&b, "- %s\n", c.Chunk.Content)
		}
	}

	return b.String()
}

// EvaluateImage scores one image against one agent's rubric.
func (e *Evaluator) EvaluateImage(ctx context.Context, agent domain.Agent, image domain.GeneratedImage, brief string, iter *IterationContext) (*domain.EvaluationRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "judge.EvaluateImage")
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.JudgeCallDurationSeconds.WithLabelValues(agent.Name).Observe(time.Since(start).Seconds())
	}()

	var ragChunks []rag.ScoredChunk
	if e.Embedder != nil && len(agent.Documents) > 0 {
		query := brief + " " + image.PromptUsed
		chunks, err := rag.Retrieve(ctx, e.Embedder, query, agent.Documents, agent.RAG)
		if err == nil {
			ragChunks = chunks
		}
	}

	systemMsg := effectiveSystemMessage(agent)
	userText := buildUserText(brief, image.PromptUsed, ragChunks, iter)

	model := e.Models.ModelFor(agent.ModelTier)

	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: evaluationTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMsg},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: userText},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: image.PublicURL}},
				},
			},
		},
	}

	resp, err := e.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		metrics.JudgeCallFailuresTotal.WithLabelValues(agent.Name, "transport").Inc()
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("judge %s chat completion: %w", agent.ID, err)
	}
	if len(resp.Choices) == 0 {
		metrics.JudgeCallFailuresTotal.WithLabelValues(agent.Name, "no_choices").Inc()
		return nil, fmt.Errorf("judge %s returned no choices", agent.ID)
	}

	parsed, err := ParseJudgeResponse(agent.ID, image.ID, resp.Choices[0].Message.Content)
	if err != nil {
		metrics.JudgeCallFailuresTotal.WithLabelValues(agent.Name, "parse").Inc()
		tracing.RecordError(ctx, err)
		return nil, err
	}

	return &domain.EvaluationRecord{
		AgentID:            agent.ID,
		AgentName:          agent.Name,
		ImageID:            image.ID,
		OverallScore:       parsed.Score,
		Weight:             agent.ScoringWeight,
		Feedback:           parsed.Feedback,
		CategoryScores:     parsed.CategoryScores,
		TopIssue:           parsed.TopIssue,
		WhatWorked:         parsed.WhatWorked,
		Checklist:          parsed.Checklist,
		PromptInstructions: parsed.PromptInstructions,
	}, nil
}

// EvaluateWithAllJudges runs every agent in the panel against one image in
// parallel. A judge whose evaluation fails (transport error or unparseable
// response) is dropped silently; the image can still be scored by the
// remaining judges.
func (e *Evaluator) EvaluateWithAllJudges(ctx context.Context, agents []domain.Agent, image domain.GeneratedImage, brief string, iter *IterationContext) []domain.EvaluationRecord {
	ctx, span := tracing.StartSpan(ctx, "judge.EvaluateWithAllJudges")
	defer span.End()

	results := make([]*domain.EvaluationRecord, len(agents))

	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range agents {
		i, agent := i, agent
		if !agent.CanJudge {
			continue
		}
		g.Go(func() error {
			record, err := e.EvaluateImage(gctx, agent, image, brief, iter)
			if err != nil {
				return nil
			}
			results[i] = record
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.EvaluationRecord, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// AggregateScore computes the weighted mean aggregate score for one image's
// evaluations. An all-zero total weight aggregates to exactly 0.
func AggregateScore(evaluations []domain.EvaluationRecord) float64 {
	var weightedSum, totalWeight float64
	for _, e := range evaluations {
		weightedSum += e.OverallScore * e.Weight
		totalWeight += e.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// RankedImage pairs an image with its aggregate score for ranking.
type RankedImage struct {
	Image       domain.GeneratedImage
	Evaluations []domain.EvaluationRecord
	Aggregate   float64
}

// RankImages orders images by aggregate score descending. Ties are broken
// by later insertion order: a stable descending sort is followed by a
// reversal of each run of equal scores, so the later element comes first.
func RankImages(images []RankedImage) []RankedImage {
	ranked := make([]RankedImage, len(images))
	copy(ranked, images)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Aggregate > ranked[j].Aggregate
	})

	// SliceStable preserves original relative order among equal scores,
	// which favors the earlier element. The spec wants later-insertion to
	// win ties, so reverse equal-score runs back to descending insertion
	// order.
	start := 0
	for start < len(ranked) {
		end := start + 1
		for end < len(ranked) && ranked[end].Aggregate == ranked[start].Aggregate {
			end++
		}
		reverseRanked(ranked[start:end])
		start = end
	}

	return ranked
}

func reverseRanked(s []RankedImage) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
