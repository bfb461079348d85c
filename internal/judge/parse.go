package judge

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/imagegenio/orchestrator/internal/domain"
	"github.com/imagegenio/orchestrator/internal/domain/errors"
)

// extractJSONObject isolates the first balanced {...} run in s. No example
// repo in the corpus ships a bracket-counting scanner for this, so it is
// hand-rolled here rather than pulled from a library.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParsedEvaluation is the raw, case/snake-insensitively parsed judge output
// before it's attached to an EvaluationRecord.
type ParsedEvaluation struct {
	Score              float64
	Feedback           string
	CategoryScores     map[string]float64
	TopIssue           *domain.TopIssue
	WhatWorked         []string
	Checklist          map[string]domain.ChecklistItem
	PromptInstructions []string
}

// ParseJudgeResponse extracts and decodes one judge's raw response into a
// ParsedEvaluation. Keys are accepted case/snake-insensitively. Score is
// clamped to [0,100] and defaults to 50 on NaN/missing, but 0 is preserved.
// A response with no recoverable JSON object is a JudgeParseFailure.
func ParseJudgeResponse(agentID, imageID, raw string) (*ParsedEvaluation, error) {
	jsonStr, ok := extractJSONObject(raw)
	if !ok {
		return nil, errors.NewJudgeParseFailure(agentID, imageID, errNoJSONFound)
	}

	var fields map[string]any
	if err := sonic.UnmarshalString(jsonStr, &fields); err != nil {
		return nil, errors.NewJudgeParseFailure(agentID, imageID, err)
	}

	lookup := normalizeKeys(fields)

	result := &ParsedEvaluation{
		Score:    parseScore(lookup),
		Feedback: stringField(lookup, "feedback"),
	}

	if raw, ok := lookup["categoryscores"].(map[string]any); ok {
		result.CategoryScores = make(map[string]float64, len(raw))
		for k, v := range raw {
			if f, ok := toFloat(v); ok {
				result.CategoryScores[k] = clamp(f, 0, 100)
			}
		}
	}

	if raw, ok := lookup["topissue"].(map[string]any); ok {
		inner := normalizeKeys(raw)
		severity := domain.Severity(strings.ToLower(stringField(inner, "severity")))
		if severity == "" {
			severity = domain.SeverityModerate
		}
		result.TopIssue = &domain.TopIssue{
			Problem:  stringField(inner, "problem"),
			Severity: severity,
			Fix:      stringField(inner, "fix"),
		}
	}

	if raw, ok := lookup["whatworked"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				result.WhatWorked = append(result.WhatWorked, s)
			}
		}
	}

	if raw, ok := lookup["checklist"].(map[string]any); ok {
		result.Checklist = make(map[string]domain.ChecklistItem, len(raw))
		for k, v := range raw {
			if item, ok := v.(map[string]any); ok {
				inner := normalizeKeys(item)
				passed, _ := inner["passed"].(bool)
				result.Checklist[k] = domain.ChecklistItem{
					Passed: passed,
					Note:   stringField(inner, "note"),
				}
			}
		}
	}

	if raw, ok := lookup["promptinstructions"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					result.PromptInstructions = append(result.PromptInstructions, trimmed)
				}
			}
		}
	}

	return result, nil
}

var errNoJSONFound = jsonNotFoundError{}

type jsonNotFoundError struct{}

func (jsonNotFoundError) Error() string { return "no balanced JSON object found in response" }

// normalizeKeys lowercases and strips underscores from every top-level key
// so "TOP_ISSUE", "topIssue", and "top_issue" all resolve the same way.
func normalizeKeys(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		key := strings.ReplaceAll(strings.ToLower(k), "_", "")
		out[key] = v
	}
	return out
}

func stringField(fields map[string]any, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// parseScore reads the "score" field, clamping to [0,100] and defaulting to
// 50 when the field is missing or not a number, while preserving an
// explicit 0.
func parseScore(fields map[string]any) float64 {
	v, ok := fields["score"]
	if !ok {
		return 50
	}
	f, ok := toFloat(v)
	if !ok {
		return 50
	}
	return clamp(f, 0, 100)
}
