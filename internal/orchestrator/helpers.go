package orchestrator

import (
	"encoding/base64"
	"io"

	"github.com/imagegenio/orchestrator/internal/domain"
	"github.com/imagegenio/orchestrator/internal/judge"
	"github.com/imagegenio/orchestrator/internal/optimizer"
)

func lastSnapshot(iterations []domain.IterationSnapshot) *domain.IterationSnapshot {
	if len(iterations) == 0 {
		return nil
	}
	return &iterations[len(iterations)-1]
}

func aggregateScores(iterations []domain.IterationSnapshot) []float64 {
	scores := make([]float64, len(iterations))
	for i, it := range iterations {
		scores[i] = it.AggregateScore
	}
	return scores
}

// winningEvaluations returns the evaluations judges gave the image that
// actually won a snapshot's iteration, out of every image's evaluations
// recorded in that snapshot.
func winningEvaluations(snapshot domain.IterationSnapshot) []domain.EvaluationRecord {
	out := make([]domain.EvaluationRecord, 0, len(snapshot.Evaluations))
	for _, e := range snapshot.Evaluations {
		if e.ImageID == snapshot.SelectedImageID {
			out = append(out, e)
		}
	}
	return out
}

// mostSevereTopIssue picks the highest-severity top issue across a set of
// evaluations, used to feed strategy selection.
func mostSevereTopIssue(evaluations []domain.EvaluationRecord) domain.Severity {
	best := domain.Severity("")
	bestRank := -1
	for _, e := range evaluations {
		if e.TopIssue == nil {
			continue
		}
		rank := e.TopIssue.Severity.Rank()
		if bestRank == -1 || rank < bestRank {
			bestRank = rank
			best = e.TopIssue.Severity
		}
	}
	return best
}

func topIssuesOf(evaluations []domain.EvaluationRecord) []domain.TopIssue {
	out := make([]domain.TopIssue, 0, len(evaluations))
	for _, e := range evaluations {
		if e.TopIssue != nil {
			out = append(out, *e.TopIssue)
		}
	}
	return out
}

func whatWorkedOf(evaluations []domain.EvaluationRecord) []string {
	var out []string
	for _, e := range evaluations {
		out = append(out, e.WhatWorked...)
	}
	return out
}

func buildJudgeFeedback(prev *domain.IterationSnapshot) []optimizer.JudgeFeedback {
	if prev == nil {
		return nil
	}
	evals := winningEvaluations(*prev)
	feedback := make([]optimizer.JudgeFeedback, len(evals))
	for i, e := range evals {
		feedback[i] = optimizer.JudgeFeedback{
			AgentName:          e.AgentName,
			Weight:             e.Weight,
			TopIssue:           e.TopIssue,
			WhatWorked:         e.WhatWorked,
			Feedback:           e.Feedback,
			PromptInstructions: e.PromptInstructions,
		}
	}
	return feedback
}

func flattenEvaluations(ranked []judge.RankedImage) []domain.EvaluationRecord {
	var out []domain.EvaluationRecord
	for _, r := range ranked {
		out = append(out, r.Evaluations...)
	}
	return out
}

func allZeroEvaluations(ranked []judge.RankedImage) bool {
	for _, r := range ranked {
		if len(r.Evaluations) > 0 {
			return false
		}
	}
	return true
}

func readAllBase64(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
