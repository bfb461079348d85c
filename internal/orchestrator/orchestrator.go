// Package orchestrator implements C7, the worker-side iteration loop: the
// OPTIMIZING -> GENERATING -> EVALUATING state machine that drives one
// generation request from its first iteration to a terminal status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imagegenio/orchestrator/internal/domain"
	domainerrors "github.com/imagegenio/orchestrator/internal/domain/errors"
	"github.com/imagegenio/orchestrator/internal/eventbus"
	"github.com/imagegenio/orchestrator/internal/generator"
	"github.com/imagegenio/orchestrator/internal/infrastructure/logger"
	"github.com/imagegenio/orchestrator/internal/infrastructure/metrics"
	"github.com/imagegenio/orchestrator/internal/infrastructure/tracing"
	"github.com/imagegenio/orchestrator/internal/judge"
	"github.com/imagegenio/orchestrator/internal/negprompt"
	"github.com/imagegenio/orchestrator/internal/objectstore"
	"github.com/imagegenio/orchestrator/internal/optimizer"
	"github.com/imagegenio/orchestrator/internal/rag"
	"github.com/imagegenio/orchestrator/internal/retry"
)

// RequestStore is the persistence seam for the request aggregate and its
// append-only iteration snapshots.
type RequestStore interface {
	FindByID(ctx context.Context, id string) (*domain.GenerationRequest, error)
	FindIterations(ctx context.Context, requestID string) ([]domain.IterationSnapshot, error)
	UpdateStatus(ctx context.Context, req *domain.GenerationRequest) error
	CommitIteration(ctx context.Context, req *domain.GenerationRequest, snapshot domain.IterationSnapshot) error
	UpdateNegativePrompts(ctx context.Context, req *domain.GenerationRequest) error
}

// ImageStore is the persistence seam for generated image rows.
type ImageStore interface {
	CreateBatch(ctx context.Context, images []*domain.GeneratedImage) error
	FindByID(ctx context.Context, id string) (*domain.GeneratedImage, error)
}

// AgentStore loads the judge panel referenced by a request.
type AgentStore interface {
	FindByIDs(ctx context.Context, ids []string) ([]domain.Agent, error)
}

// JudgePanel runs one image through every judging agent in parallel.
type JudgePanel interface {
	EvaluateWithAllJudges(ctx context.Context, agents []domain.Agent, image domain.GeneratedImage, brief string, iter *judge.IterationContext) []domain.EvaluationRecord
}

// PromptOptimizer turns judge feedback into the next generation prompt.
type PromptOptimizer interface {
	OptimizePrompt(ctx context.Context, in optimizer.Input) (string, error)
}

// Embedder is the RAG embedding backend used to retrieve reference
// guidelines ahead of a regenerate call.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Cancellation reports whether a request should stop iterating.
type Cancellation interface {
	IsCancelled(requestID string) bool
	Clear(requestID string)
}

// Orchestrator wires the durable stores and model-backed components into
// one executeRequest worker loop.
type Orchestrator struct {
	Requests     RequestStore
	Images       ImageStore
	Agents       AgentStore
	Objects      objectstore.Store
	Generator    generator.Generator
	Judges       JudgePanel
	Optimizer    PromptOptimizer
	Embedder     Embedder
	Bus          *eventbus.Bus
	Cancellation Cancellation
	Logger       *logger.Logger
	TimeBudget   time.Duration
	RetryPolicy  func() *retry.RetryPolicy
}

// NewOrchestrator constructs an Orchestrator. timeBudget is the wall-clock
// ceiling for one executeRequest call (default 10 minutes per spec.md §4.1).
func NewOrchestrator(
	requests RequestStore,
	images ImageStore,
	agents AgentStore,
	objects objectstore.Store,
	gen generator.Generator,
	judges JudgePanel,
	opt PromptOptimizer,
	embedder Embedder,
	bus *eventbus.Bus,
	cancellation Cancellation,
	log *logger.Logger,
	timeBudget time.Duration,
) *Orchestrator {
	if timeBudget <= 0 {
		timeBudget = 10 * time.Minute
	}
	return &Orchestrator{
		Requests:     requests,
		Images:       images,
		Agents:       agents,
		Objects:      objects,
		Generator:    gen,
		Judges:       judges,
		Optimizer:    opt,
		Embedder:     embedder,
		Bus:          bus,
		Cancellation: cancellation,
		Logger:       log,
		TimeBudget:   timeBudget,
		RetryPolicy: func() *retry.RetryPolicy {
			return &retry.RetryPolicy{
				MaxAttempts:  3,
				InitialDelay: time.Second,
				MaxDelay:     8 * time.Second,
			}
		},
	}
}

// runState is the in-memory working set ExecuteRequest rebuilds from
// persisted iterations on every call, per spec.md §4.1's stateless-worker
// requirement.
type runState struct {
	req             *domain.GenerationRequest
	agents          []domain.Agent
	retries         int
	anyCompleted    bool
	deadlineReached bool
}

// ExecuteRequest is the worker entry point: it loads the request, runs
// iterations startIteration..maxIterations through the OPTIMIZING ->
// GENERATING -> EVALUATING phases, and persists a terminal status before
// returning. A nil return means the request reached a terminal status
// (including FAILED); only infrastructure errors that could not even be
// recorded against the request propagate to the caller for redelivery.
func (o *Orchestrator) ExecuteRequest(ctx context.Context, requestID string) error {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.ExecuteRequest")
	defer span.End()
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	req, err := o.Requests.FindByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load request: %w", err)
	}
	if req.Status.IsTerminal() {
		return nil
	}

	iterations, err := o.Requests.FindIterations(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load iterations: %w", err)
	}
	req.Iterations = iterations

	agents, err := o.Agents.FindByIDs(ctx, req.JudgeAgentIDs)
	if err != nil {
		return fmt.Errorf("load agents: %w", err)
	}
	judgingAgents := make([]domain.Agent, 0, len(agents))
	for _, a := range agents {
		if a.CanJudge {
			judgingAgents = append(judgingAgents, a)
		}
	}
	if len(judgingAgents) == 0 {
		return o.failRequest(ctx, req, fmt.Errorf("no judging agents remain in the panel"), 0)
	}

	state := &runState{req: req, agents: judgingAgents}

	runCtx, cancel := context.WithTimeout(ctx, o.TimeBudget)
	defer cancel()

	for iterNum := req.CurrentIteration + 1; iterNum <= req.MaxIterations; iterNum++ {
		if o.Cancellation.IsCancelled(requestID) {
			return o.finalizeCancelled(ctx, req, state.retries)
		}
		if runCtx.Err() != nil {
			state.deadlineReached = true
			break
		}

		terminal, err := o.runIteration(runCtx, state, iterNum)
		if err != nil {
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				// The time budget elapsed mid-iteration; runIteration's error
				// is just the deadline surfacing through a model/storage
				// call, not a genuine failure. Let the post-loop
				// deadlineReached handling decide FAILED vs COMPLETED based
				// on whether an earlier iteration already committed.
				state.deadlineReached = true
				break
			}
			return o.failRequest(ctx, req, err, state.retries)
		}
		state.anyCompleted = true
		if terminal {
			return nil
		}
	}

	if state.deadlineReached {
		if state.anyCompleted {
			return o.finalizeCompleted(ctx, req, domain.ReasonMaxRetriesReached, state.retries)
		}
		return o.failRequest(ctx, req, fmt.Errorf("request exceeded its time budget before completing any iteration"), state.retries)
	}

	// Loop exhausted maxIterations without an explicit terminal check firing
	// (e.g. maxIterations reached exactly on the final pass already handles
	// this inside runIteration; this is a defensive fallback).
	return o.finalizeCompleted(ctx, req, domain.ReasonMaxRetriesReached, state.retries)
}

// runIteration executes one OPTIMIZING -> GENERATING -> EVALUATING pass and
// returns whether the request reached a terminal status as a result.
func (o *Orchestrator) runIteration(ctx context.Context, state *runState, iterNum int) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.runIteration")
	defer span.End()
	start := time.Now()
	defer func() { metrics.IterationDurationSeconds.Observe(time.Since(start).Seconds()) }()

	req := state.req
	policy := o.RetryPolicy()
	policy.OnRetry = func(attempt int, err error) {
		state.retries++
		op := "backend_call"
		var tbf *domainerrors.TransientBackendFailure
		if errors.As(err, &tbf) {
			op = tbf.Op
		}
		metrics.RetriesTotal.WithLabelValues(op).Inc()
	}

	prev := lastSnapshot(req.Iterations)
	var (
		lastScore            float64
		lastSeverity         domain.Severity
		consecutiveEditCount int
	)
	if prev != nil {
		lastScore = prev.AggregateScore
		consecutiveEditCount = prev.ConsecutiveEditCount
		lastSeverity = mostSevereTopIssue(winningEvaluations(*prev))
	}

	dec := selectStrategy(req.GenerationMode, iterNum, lastScore, lastSeverity, consecutiveEditCount, aggregateScores(req.Iterations))
	if dec.Warning {
		o.Logger.WarnContext(ctx, "consecutive edit streak exceeds 5; mode still honored", "requestId", req.ID, "iteration", iterNum)
	}

	req.Status = domain.StatusOptimizing
	if err := o.Requests.UpdateStatus(ctx, req); err != nil {
		return false, err
	}
	o.Bus.Emit(req.ID, eventbus.EventStatusChange, map[string]any{"status": req.Status, "iteration": iterNum})

	mode := dec.Mode
	var (
		rawImages     []generator.GeneratedImage
		optimizedPrompt string
		editSourceID  string
	)

	if mode == domain.IterationEdit && prev != nil {
		images, prompt, sourceID, err := o.runEditPath(ctx, req, *prev, policy)
		if err != nil {
			o.Logger.WarnContext(ctx, "edit path failed, falling back to regenerate", "requestId", req.ID, "error", err)
			mode = domain.IterationRegenerate
			consecutiveEditCount = 0
			images, prompt, err = o.runRegeneratePath(ctx, req, iterNum, prev, state.agents, policy)
			if err != nil {
				return false, fmt.Errorf("regenerate fallback after edit failure: %w", err)
			}
			rawImages, optimizedPrompt = images, prompt
		} else {
			rawImages, optimizedPrompt, editSourceID = images, prompt, sourceID
			consecutiveEditCount++
		}
	} else {
		images, prompt, err := o.runRegeneratePath(ctx, req, iterNum, prev, state.agents, policy)
		if err != nil {
			return false, fmt.Errorf("regenerate: %w", err)
		}
		rawImages, optimizedPrompt = images, prompt
		mode = domain.IterationRegenerate
		consecutiveEditCount = 0
	}

	req.Status = domain.StatusGenerating
	if err := o.Requests.UpdateStatus(ctx, req); err != nil {
		return false, err
	}

	persisted, err := o.persistImages(ctx, req, iterNum, optimizedPrompt, rawImages, policy)
	if err != nil {
		return false, fmt.Errorf("persist images: %w", err)
	}
	req.Costs.Add(domain.CostAccumulator{ImageGenerations: int64(len(persisted))})
	metrics.ImagesGeneratedTotal.Add(float64(len(persisted)))

	req.Status = domain.StatusEvaluating
	if err := o.Requests.UpdateStatus(ctx, req); err != nil {
		return false, err
	}
	o.Bus.Emit(req.ID, eventbus.EventStatusChange, map[string]any{"status": req.Status, "iteration": iterNum})

	ranked := o.evaluateImages(ctx, state.agents, persisted, req.Brief, iterNum, req.MaxIterations, aggregateScores(req.Iterations))
	ranked = judge.RankImages(ranked)
	if len(ranked) == 0 || allZeroEvaluations(ranked) {
		return false, domainerrors.NewAggregationEmptyError(req.ID, iterNum)
	}
	winner := ranked[0]
	metrics.IterationsTotal.WithLabelValues(string(mode)).Inc()

	snapshot := domain.IterationSnapshot{
		IterationNumber:      iterNum,
		OptimizedPrompt:      optimizedPrompt,
		Mode:                 mode,
		EditSourceImageID:    editSourceID,
		ConsecutiveEditCount: consecutiveEditCount,
		SelectedImageID:      winner.Image.ID,
		AggregateScore:       winner.Aggregate,
		Evaluations:          flattenEvaluations(ranked),
		CreatedAt:            time.Now(),
	}

	req.CurrentIteration = iterNum
	req.Iterations = append(req.Iterations, snapshot)

	if err := o.Requests.CommitIteration(ctx, req, snapshot); err != nil {
		return false, fmt.Errorf("commit iteration: %w", err)
	}
	o.Bus.Emit(req.ID, eventbus.EventIterationComplete, map[string]any{
		"iteration":      iterNum,
		"aggregateScore": winner.Aggregate,
		"selectedImage":  winner.Image.ID,
	})

	if changed := o.recomputeNegativePrompts(ctx, req, winner); changed {
		if err := o.Requests.UpdateNegativePrompts(ctx, req); err != nil {
			o.Logger.ErrorContext(ctx, "persist negative prompts failed", "requestId", req.ID, "error", err)
		}
	}

	return o.checkTermination(ctx, req, iterNum, winner.Aggregate, state.retries)
}

func (o *Orchestrator) runRegeneratePath(ctx context.Context, req *domain.GenerationRequest, iterNum int, prev *domain.IterationSnapshot, agents []domain.Agent, policy *retry.RetryPolicy) ([]generator.GeneratedImage, string, error) {
	if iterNum == 1 && req.InitialPrompt != "" {
		images, err := o.generateWithRetry(ctx, req, req.InitialPrompt, policy)
		return images, req.InitialPrompt, err
	}

	ragChunks := o.retrieveRAGContext(ctx, req.Brief, agents)
	feedback := buildJudgeFeedback(prev)
	currentPrompt := ""
	if prev != nil {
		currentPrompt = prev.OptimizedPrompt
	}

	previousPrompts := make([]string, 0, len(req.Iterations))
	for _, snapshot := range req.Iterations {
		if snapshot.OptimizedPrompt != "" {
			previousPrompts = append(previousPrompts, snapshot.OptimizedPrompt)
		}
	}

	prompt, err := o.Optimizer.OptimizePrompt(ctx, optimizer.Input{
		Brief:              req.Brief,
		CurrentPrompt:      currentPrompt,
		Feedback:           feedback,
		PreviousPrompts:    previousPrompts,
		NegativePrompts:    req.NegativePrompts,
		RAGContext:         ragChunks,
		HasReferenceImages: len(req.ReferenceImageURLs) > 0,
	})
	if err != nil {
		return nil, "", fmt.Errorf("optimize prompt: %w", err)
	}

	images, err := o.generateWithRetry(ctx, req, prompt, policy)
	return images, prompt, err
}

func (o *Orchestrator) runEditPath(ctx context.Context, req *domain.GenerationRequest, prev domain.IterationSnapshot, policy *retry.RetryPolicy) ([]generator.GeneratedImage, string, string, error) {
	var (
		sourceBase64 string
		fetchErr     error
	)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sourceBase64, fetchErr = o.fetchSourceImageBase64(ctx, prev.SelectedImageID)
	}()

	evals := winningEvaluations(prev)
	instruction := optimizer.BuildEditInstruction(optimizer.EditInput{
		Brief:      req.Brief,
		TopIssues:  topIssuesOf(evals),
		WhatWorked: whatWorkedOf(evals),
	})

	wg.Wait()
	if fetchErr != nil {
		return nil, "", "", fmt.Errorf("fetch source image: %w", fetchErr)
	}

	var images []generator.GeneratedImage
	err := policy.Execute(ctx, func() error {
		result, err := o.Generator.EditImages(ctx, sourceBase64, instruction, req.Image.ImagesPerGeneration, generator.Options{
			AspectRatio: req.Image.AspectRatio,
		})
		if err != nil {
			return domainerrors.NewTransientBackendFailure(req.ID, "editImages", err)
		}
		images = result
		return nil
	})
	if err != nil {
		return nil, "", "", err
	}
	return images, prev.OptimizedPrompt, prev.SelectedImageID, nil
}

func (o *Orchestrator) generateWithRetry(ctx context.Context, req *domain.GenerationRequest, prompt string, policy *retry.RetryPolicy) ([]generator.GeneratedImage, error) {
	var images []generator.GeneratedImage
	err := policy.Execute(ctx, func() error {
		result, err := o.Generator.GenerateImages(ctx, prompt, req.Image.ImagesPerGeneration, generator.Options{
			AspectRatio:        req.Image.AspectRatio,
			Quality:            req.Image.Quality,
			ReferenceImageURLs: req.ReferenceImageURLs,
		})
		if err != nil {
			return domainerrors.NewTransientBackendFailure(req.ID, "generateImages", err)
		}
		images = result
		return nil
	})
	return images, err
}

func (o *Orchestrator) fetchSourceImageBase64(ctx context.Context, imageID string) (string, error) {
	meta, err := o.Images.FindByID(ctx, imageID)
	if err != nil {
		return "", fmt.Errorf("load image metadata: %w", err)
	}
	reader, err := o.Objects.Get(ctx, meta.StorageKey)
	if err != nil {
		return "", err
	}
	defer reader.Close()
	data, err := readAllBase64(reader)
	if err != nil {
		return "", err
	}
	return data, nil
}

func (o *Orchestrator) persistImages(ctx context.Context, req *domain.GenerationRequest, iterNum int, prompt string, raw []generator.GeneratedImage, policy *retry.RetryPolicy) ([]domain.GeneratedImage, error) {
	images := make([]*domain.GeneratedImage, len(raw))
	var wg sync.WaitGroup
	errs := make([]error, len(raw))
	for i, img := range raw {
		wg.Add(1)
		go func(i int, img generator.GeneratedImage) {
			defer wg.Done()
			id := uuid.New().String()
			key := fmt.Sprintf("%s/%d/%s", req.ID, iterNum, id)
			err := policy.Execute(ctx, func() error {
				if putErr := o.Objects.Put(ctx, key, img.MimeType, img.Bytes); putErr != nil {
					return domainerrors.NewTransientBackendFailure(req.ID, "storeImage", putErr)
				}
				return nil
			})
			if err != nil {
				errs[i] = err
				return
			}
			images[i] = &domain.GeneratedImage{
				ID:              id,
				RequestID:       req.ID,
				IterationNumber: iterNum,
				StorageKey:      key,
				PromptUsed:      prompt,
				MimeType:        img.MimeType,
				FileSizeBytes:   int64(len(img.Bytes)),
				CreatedAt:       time.Now(),
			}
		}(i, img)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	if err := o.Images.CreateBatch(ctx, images); err != nil {
		return nil, err
	}

	out := make([]domain.GeneratedImage, len(images))
	for i, img := range images {
		out[i] = *img
	}
	return out, nil
}

func (o *Orchestrator) evaluateImages(ctx context.Context, agents []domain.Agent, images []domain.GeneratedImage, brief string, iterNum, maxIterations int, previousScores []float64) []judge.RankedImage {
	iterCtx := &judge.IterationContext{
		IterationNumber: iterNum,
		MaxIterations:   maxIterations,
		PreviousScores:  previousScores,
	}

	ranked := make([]judge.RankedImage, len(images))
	var wg sync.WaitGroup
	for i, img := range images {
		wg.Add(1)
		go func(i int, img domain.GeneratedImage) {
			defer wg.Done()
			evals := o.Judges.EvaluateWithAllJudges(ctx, agents, img, brief, iterCtx)
			ranked[i] = judge.RankedImage{Image: img, Evaluations: evals, Aggregate: judge.AggregateScore(evals)}
		}(i, img)
	}
	wg.Wait()
	return ranked
}

func (o *Orchestrator) retrieveRAGContext(ctx context.Context, brief string, agents []domain.Agent) []rag.ScoredChunk {
	var all []rag.ScoredChunk
	for _, a := range agents {
		if len(a.Documents) == 0 {
			continue
		}
		chunks, err := rag.Retrieve(ctx, o.Embedder, brief, a.Documents, a.RAG)
		if err != nil {
			o.Logger.WarnContext(ctx, "rag retrieve failed for agent", "agent", a.ID, "error", err)
			continue
		}
		all = append(all, chunks...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Similarity > all[j].Similarity })
	if len(all) > 10 {
		all = all[:10]
	}
	return all
}

func (o *Orchestrator) recomputeNegativePrompts(ctx context.Context, req *domain.GenerationRequest, winner judge.RankedImage) bool {
	sources := make([]negprompt.IssueSource, 0, len(winner.Evaluations))
	for _, e := range winner.Evaluations {
		if e.TopIssue != nil {
			sources = append(sources, negprompt.IssueSource{Issue: *e.TopIssue, AgentName: e.AgentName})
		}
	}
	updated, changed := negprompt.Accumulate(req.NegativePrompts, sources)
	if changed {
		req.NegativePrompts = updated
	}
	return changed
}

func (o *Orchestrator) checkTermination(ctx context.Context, req *domain.GenerationRequest, iterNum int, aggregateScore float64, retries int) (bool, error) {
	if aggregateScore >= req.Threshold {
		return true, o.finalizeCompleted(ctx, req, domain.ReasonSuccess, retries)
	}
	if terminationPlateaued(aggregateScores(req.Iterations), req.Image.PlateauWindowSize, req.Image.PlateauThreshold) {
		return true, o.finalizeCompleted(ctx, req, domain.ReasonDiminishingReturns, retries)
	}
	if iterNum == req.MaxIterations {
		return true, o.finalizeCompleted(ctx, req, domain.ReasonMaxRetriesReached, retries)
	}
	return false, nil
}

func (o *Orchestrator) finalizeCompleted(ctx context.Context, req *domain.GenerationRequest, reason domain.CompletionReason, retries int) error {
	best := req.BestIteration()
	if best != nil {
		req.FinalImageID = best.SelectedImageID
	}
	now := time.Now()
	req.Status = domain.StatusCompleted
	req.CompletionReason = reason
	req.CompletedAt = &now
	if err := o.Requests.UpdateStatus(ctx, req); err != nil {
		return err
	}
	o.Bus.Emit(req.ID, eventbus.EventCompleted, map[string]any{"reason": reason, "finalImageId": req.FinalImageID, "retries": retries})
	metrics.RequestsCompletedTotal.WithLabelValues(string(reason)).Inc()
	return nil
}

func (o *Orchestrator) finalizeCancelled(ctx context.Context, req *domain.GenerationRequest, retries int) error {
	now := time.Now()
	req.Status = domain.StatusCancelled
	req.CompletionReason = domain.ReasonCancelled
	req.CompletedAt = &now
	if err := o.Requests.UpdateStatus(ctx, req); err != nil {
		return err
	}
	o.Cancellation.Clear(req.ID)
	o.Bus.Emit(req.ID, eventbus.EventCompleted, map[string]any{"reason": domain.ReasonCancelled, "retries": retries})
	metrics.RequestsCompletedTotal.WithLabelValues(string(domain.ReasonCancelled)).Inc()
	return nil
}

func (o *Orchestrator) failRequest(ctx context.Context, req *domain.GenerationRequest, cause error, retries int) error {
	now := time.Now()
	req.Status = domain.StatusFailed
	req.CompletionReason = domain.ReasonError
	req.ErrorMessage = cause.Error()
	req.CompletedAt = &now
	if err := o.Requests.UpdateStatus(ctx, req); err != nil {
		return fmt.Errorf("persist failure for request %s after %q: %w", req.ID, cause, err)
	}
	o.Bus.Emit(req.ID, eventbus.EventFailed, map[string]any{"error": cause.Error(), "retries": retries})
	metrics.RequestsCompletedTotal.WithLabelValues(string(domain.ReasonError)).Inc()
	return nil
}
