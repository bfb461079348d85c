// Package negprompt implements C6: accumulating a bounded, deduplicated
// list of "AVOID" lines distilled from judge feedback, so later iterations
// steer away from recurring problems.
package negprompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/imagegenio/orchestrator/internal/domain"
)

const maxNewIssuesPerIteration = 3
const maxAccumulatedLines = 10

func avoidLine(issue domain.TopIssue, agentName string) string {
	return fmt.Sprintf("AVOID: %s - %s (from %s)", issue.Problem, issue.Fix, agentName)
}

func problemKey(line string) string {
	lower := strings.ToLower(line)
	if idx := strings.Index(lower, " - "); idx != -1 {
		return strings.TrimSpace(lower[:idx])
	}
	return strings.TrimSpace(lower)
}

// IssueSource pairs a judge's top issue with the agent that raised it.
type IssueSource struct {
	Issue     domain.TopIssue
	AgentName string
}

// Accumulate extends existing (a newline-delimited list of prior AVOID
// lines) with up to 3 new severity-sorted, deduplicated issues from this
// iteration's evaluations, capping the result at 10 lines. It returns the
// updated value and whether it actually changed.
func Accumulate(existing string, sources []IssueSource) (updated string, changed bool) {
	var existingLines []string
	if strings.TrimSpace(existing) != "" {
		existingLines = strings.Split(existing, "\n")
	}

	seen := make(map[string]struct{}, len(existingLines))
	for _, line := range existingLines {
		seen[problemKey(line)] = struct{}{}
	}

	sorted := make([]IssueSource, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Issue.Severity.Rank() < sorted[j].Issue.Severity.Rank()
	})

	var newLines []string
	for _, src := range sorted {
		if len(newLines) >= maxNewIssuesPerIteration {
			break
		}
		line := avoidLine(src.Issue, src.AgentName)
		key := problemKey(line)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		newLines = append(newLines, line)
	}

	if len(newLines) == 0 {
		return existing, false
	}

	allLines := append(existingLines, newLines...)
	if len(allLines) > maxAccumulatedLines {
		allLines = allLines[len(allLines)-maxAccumulatedLines:]
	}

	result := strings.Join(allLines, "\n")
	return result, result != existing
}
