// Package optimizer implements C5: turning judge feedback into the next
// generation prompt, and building short instruction text for in-place edits.
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/imagegenio/orchestrator/internal/domain"
	"github.com/imagegenio/orchestrator/internal/rag"
)

const editTemperature = 0.3
const minOptimizedWords = 500
const maxEditIssues = 5
const maxPreviousAttempts = 3
const previousAttemptTruncateLen = 300

// ChatClient is the chat-completion surface the optimizer depends on.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Store persists the process-wide optimizer singleton.
type Store interface {
	LoadOptimizerConfig(ctx context.Context) (*domain.PromptOptimizerConfig, error)
	SaveOptimizerConfig(ctx context.Context, cfg *domain.PromptOptimizerConfig) error
}

// Optimizer lazily loads and caches the singleton optimizer config, and
// drives prompt construction for both full regenerations and edits.
type Optimizer struct {
	Client ChatClient
	Store  Store

	mu     sync.RWMutex
	cached *domain.PromptOptimizerConfig
}

// NewOptimizer constructs an Optimizer.
func NewOptimizer(client ChatClient, store Store) *Optimizer {
	return &Optimizer{Client: client, Store: store}
}

// Config returns the current optimizer singleton, creating it with defaults
// on first use.
func (o *Optimizer) Config(ctx context.Context) (*domain.PromptOptimizerConfig, error) {
	o.mu.RLock()
	cached := o.cached
	o.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cached != nil {
		return o.cached, nil
	}

	cfg, err := o.Store.LoadOptimizerConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = domain.NewDefaultOptimizerConfig()
		if err := o.Store.SaveOptimizerConfig(ctx, cfg); err != nil {
			return nil, err
		}
	}
	o.cached = cfg
	return cfg, nil
}

// UpdateConfig persists a new singleton config and invalidates the cache.
func (o *Optimizer) UpdateConfig(ctx context.Context, cfg *domain.PromptOptimizerConfig) error {
	if err := o.Store.SaveOptimizerConfig(ctx, cfg); err != nil {
		return err
	}
	o.mu.Lock()
	o.cached = cfg
	o.mu.Unlock()
	return nil
}

// JudgeFeedback is one judge's evaluation, carried alongside its weight for
// ordering purposes.
type JudgeFeedback struct {
	AgentName          string
	Weight             float64
	TopIssue           *domain.TopIssue
	WhatWorked         []string
	Feedback           string
	PromptInstructions []string
}

// Input bundles everything optimizePrompt needs to build the next prompt.
type Input struct {
	Brief              string
	CurrentPrompt      string
	Feedback           []JudgeFeedback
	PreviousPrompts    []string
	NegativePrompts    string
	RAGContext         []rag.ScoredChunk
	HasReferenceImages bool
}

type prioritizedIssue struct {
	agentName string
	weight    float64
	issue     domain.TopIssue
}

func collectPrioritizedIssues(feedback []JudgeFeedback) []prioritizedIssue {
	var issues []prioritizedIssue
	for _, f := range feedback {
		if f.TopIssue == nil {
			continue
		}
		issues = append(issues, prioritizedIssue{agentName: f.AgentName, weight: f.Weight, issue: *f.TopIssue})
	}
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].issue.Severity.Rank() != issues[j].issue.Severity.Rank() {
			return issues[i].issue.Severity.Rank() < issues[j].issue.Severity.Rank()
		}
		return issues[i].weight > issues[j].weight
	})
	return issues
}

func dedupStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func collectWhatWorked(feedback []JudgeFeedback) []string {
	var all []string
	for _, f := range feedback {
		all = append(all, f.WhatWorked...)
	}
	return dedupStrings(all)
}

func collectPromptInstructions(feedback []JudgeFeedback) []string {
	var all []string
	for _, f := range feedback {
		all = append(all, f.PromptInstructions...)
	}
	return dedupStrings(all)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// buildUserMessage composes the fixed-order section text that drives
// optimizePrompt.
func buildUserMessage(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Brief\n%s\n\n", in.Brief)

	if in.HasReferenceImages {
		b.WriteString("## Reference Images\nReference images were provided; the result must visually match them where applicable.\n\n")
	}

	if in.CurrentPrompt != "" {
		fmt.Fprintf(&b, "## Current Prompt\n%s\n\n", in.CurrentPrompt)
	}

	issues := collectPrioritizedIssues(in.Feedback)
	if len(issues) > 0 {
		b.WriteString("## Critical Issues to Fix (priority order)\n")
		for i, pi := range issues {
			fmt.Fprintf(&b, "%d. [%s] %s — fix: %s\n", i+1, pi.issue.Severity, pi.issue.Problem, pi.issue.Fix)
		}
		b.WriteString("\n")
	}

	if worked := collectWhatWorked(in.Feedback); len(worked) > 0 {
		b.WriteString("## What Worked (Preserve These)\n")
		for _, w := range worked {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	if in.NegativePrompts != "" {
		fmt.Fprintf(&b, "## Things to Avoid\n%s\n\n", in.NegativePrompts)
	}

	if len(in.RAGContext) > 0 {
		b.WriteString("## Reference Guidelines\n")
		for _, c := range in.RAGContext {
			fmt.Fprintf(&b, "- %s\n", c.Chunk.Content)
		}
		b.WriteString("\n")
	}

	feedbackByWeight := make([]JudgeFeedback, len(in.Feedback))
	copy(feedbackByWeight, in.Feedback)
	sort.SliceStable(feedbackByWeight, func(i, j int) bool { return feedbackByWeight[i].Weight > feedbackByWeight[j].Weight })
	if len(feedbackByWeight) > 0 {
		b.WriteString("## Detailed Judge Feedback\n")
		for _, f := range feedbackByWeight {
			fmt.Fprintf(&b, "- %s (weight %.2f): %s\n", f.AgentName, f.Weight, f.Feedback)
		}
		b.WriteString("\n")
	}

	if len(in.PreviousPrompts) > 0 {
		start := 0
		if len(in.PreviousPrompts) > maxPreviousAttempts {
			start = len(in.PreviousPrompts) - maxPreviousAttempts
		}
		b.WriteString("## Previous Attempts\n")
		for _, p := range in.PreviousPrompts[start:] {
			fmt.Fprintf(&b, "- %s\n", truncate(p, previousAttemptTruncateLen))
		}
		b.WriteString("\n")
	}

	if instructions := collectPromptInstructions(in.Feedback); len(instructions) > 0 {
		b.WriteString("## Judge Prompt Instructions (verbatim)\n")
		for _, instr := range instructions {
			fmt.Fprintf(&b, "- %s\n", instr)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Task\n")
	fmt.Fprintf(&b, "Write a single image generation prompt of at least %d words. ", minOptimizedWords)
	b.WriteString("Use labeled sections. Address every critical issue above in priority order. ")
	b.WriteString("Preserve everything listed under What Worked. ")
	b.WriteString("Inline every verbatim judge prompt instruction above word for word. ")
	if in.HasReferenceImages {
		b.WriteString("Ensure the description matches the provided reference images where applicable. ")
	}
	b.WriteString("Respond with only the prompt text, nothing else.\n")

	return b.String()
}

// OptimizePrompt produces the next generation prompt from judge feedback
// and retrieval context.
func (o *Optimizer) OptimizePrompt(ctx context.Context, in Input) (string, error) {
	cfg, err := o.Config(ctx)
	if err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Temperature: float32(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserMessage(in)},
		},
	}

	resp, err := o.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("optimizer chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("optimizer returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// EditInput bundles the inputs to buildEditInstruction.
type EditInput struct {
	Brief      string
	TopIssues  []domain.TopIssue
	WhatWorked []string
}

func dedupIssuesByProblemPrefix(issues []domain.TopIssue) []domain.TopIssue {
	seen := make(map[string]struct{}, len(issues))
	out := make([]domain.TopIssue, 0, len(issues))
	for _, issue := range issues {
		prefix := issue.Problem
		if len(prefix) > 40 {
			prefix = prefix[:40]
		}
		key := strings.ToLower(strings.TrimSpace(prefix))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, issue)
	}
	return out
}

// BuildEditInstruction produces an in-place edit instruction from up to 5
// severity-sorted, deduplicated issues.
func BuildEditInstruction(in EditInput) string {
	issues := make([]domain.TopIssue, len(in.TopIssues))
	copy(issues, in.TopIssues)
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Severity.Rank() < issues[j].Severity.Rank() })
	issues = dedupIssuesByProblemPrefix(issues)
	if len(issues) > maxEditIssues {
		issues = issues[:maxEditIssues]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Brief: %s\n\n", truncate(in.Brief, 200))
	b.WriteString("Apply the following fixes to this image:\n")
	for i, issue := range issues {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, issue.Problem, issue.Fix)
	}

	if worked := dedupStrings(in.WhatWorked); len(worked) > 0 {
		b.WriteString("\nPreserve:\n")
		for _, w := range worked {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	b.WriteString("\nKeep everything else exactly the same.")
	return b.String()
}
