package judge

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imagegenio/orchestrator/internal/domain"
)

type fakeChatClient struct {
	responses []string
	calls     int
	lastReq   openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	resp := f.responses[f.calls%len(f.responses)]
	f.calls++
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: resp}},
		},
	}, nil
}

type fakeModelResolver struct{}

func (fakeModelResolver) ModelFor(tier domain.ModelTier) string {
	if tier == domain.ModelTierPro {
		return "gpt-4o"
	}
	return "gpt-4o-mini"
}

func testAgent(name string, weight float64) domain.Agent {
	return domain.Agent{
		ID:            name + "-id",
		Name:          name,
		SystemPrompt:  "You are a discerning art director.",
		ScoringWeight: weight,
		CanJudge:      true,
		ModelTier:     domain.ModelTierFlash,
	}
}

func testImage() domain.GeneratedImage {
	return domain.GeneratedImage{ID: "img-1", PublicURL: "https://example.com/img-1.png", PromptUsed: "a red apple"}
}

func TestEvaluateImage_ParsesWellFormedResponse(t *testing.T) {
	client := &fakeChatClient{responses: []string{
		`Here is my evaluation: {"score": 82, "feedback": "Good composition.", "topIssue": {"problem": "background is flat", "severity": "minor", "fix": "add depth"}}`,
	}}
	e := NewEvaluator(client, fakeModelResolver{}, nil)

	record, err := e.EvaluateImage(context.Background(), testAgent("composition", 1), testImage(), "a red apple on a table", nil)
	require.NoError(t, err)
	assert.Equal(t, 82.0, record.OverallScore)
	assert.Equal(t, "Good composition.", record.Feedback)
	require.NotNil(t, record.TopIssue)
	assert.Equal(t, domain.SeverityMinor, record.TopIssue.Severity)
}

func TestEvaluateImage_UnparseableResponseReturnsError(t *testing.T) {
	client := &fakeChatClient{responses: []string{"I refuse to use JSON today."}}
	e := NewEvaluator(client, fakeModelResolver{}, nil)

	_, err := e.EvaluateImage(context.Background(), testAgent("composition", 1), testImage(), "brief", nil)
	assert.Error(t, err)
}

func TestEvaluateWithAllJudges_DropsFailingJudgesKeepsOthers(t *testing.T) {
	client := &fakeChatClient{responses: []string{
		`{"score": 90, "feedback": "great"}`,
		`not json at all`,
		`{"score": 70, "feedback": "ok"}`,
	}}
	e := NewEvaluator(client, fakeModelResolver{}, nil)

	agents := []domain.Agent{
		testAgent("a", 1),
		testAgent("b", 1),
		testAgent("c", 1),
	}

	records := e.EvaluateWithAllJudges(context.Background(), agents, testImage(), "brief", nil)
	assert.Len(t, records, 2)
}

func TestEvaluateWithAllJudges_SkipsNonJudgingAgents(t *testing.T) {
	client := &fakeChatClient{responses: []string{`{"score": 90, "feedback": "great"}`}}
	e := NewEvaluator(client, fakeModelResolver{}, nil)

	judging := testAgent("a", 1)
	nonJudging := testAgent("b", 1)
	nonJudging.CanJudge = false

	records := e.EvaluateWithAllJudges(context.Background(), []domain.Agent{judging, nonJudging}, testImage(), "brief", nil)
	assert.Len(t, records, 1)
	assert.Equal(t, "a-id", records[0].AgentID)
}

func TestAggregateScore_WeightedMean(t *testing.T) {
	evals := []domain.EvaluationRecord{
		{OverallScore: 80, Weight: 2},
		{OverallScore: 60, Weight: 1},
	}
	assert.InDelta(t, 73.333, AggregateScore(evals), 0.01)
}

func TestAggregateScore_ZeroWeightYieldsZero(t *testing.T) {
	evals := []domain.EvaluationRecord{
		{OverallScore: 80, Weight: 0},
		{OverallScore: 60, Weight: 0},
	}
	assert.Equal(t, 0.0, AggregateScore(evals))
}

func TestRankImages_DescendingWithLaterInsertionTieBreak(t *testing.T) {
	images := []RankedImage{
		{Image: domain.GeneratedImage{ID: "first"}, Aggregate: 70},
		{Image: domain.GeneratedImage{ID: "second"}, Aggregate: 90},
		{Image: domain.GeneratedImage{ID: "third"}, Aggregate: 70},
	}

	ranked := RankImages(images)
	require.Len(t, ranked, 3)
	assert.Equal(t, "second", ranked[0].Image.ID)
	assert.Equal(t, "third", ranked[1].Image.ID)
	assert.Equal(t, "first", ranked[2].Image.ID)
}

func TestHasOutputFormatSection(t *testing.T) {
	assert.True(t, hasOutputFormatSection("Please follow this OUTPUT FORMAT exactly"))
	assert.True(t, hasOutputFormatSection("output format:\n{...}"))
	assert.False(t, hasOutputFormatSection("Just be thorough and fair."))
}
