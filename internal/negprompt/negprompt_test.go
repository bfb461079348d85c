package negprompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imagegenio/orchestrator/internal/domain"
)

func TestAccumulate_AddsUpToThreeNewIssuesSeveritySorted(t *testing.T) {
	sources := []IssueSource{
		{Issue: domain.TopIssue{Problem: "minor blemish", Severity: domain.SeverityMinor, Fix: "retouch"}, AgentName: "retoucher"},
		{Issue: domain.TopIssue{Problem: "waxy skin", Severity: domain.SeverityCritical, Fix: "add texture"}, AgentName: "realism"},
		{Issue: domain.TopIssue{Problem: "flat lighting", Severity: domain.SeverityMajor, Fix: "add rim light"}, AgentName: "lighting"},
		{Issue: domain.TopIssue{Problem: "odd framing", Severity: domain.SeverityModerate, Fix: "recenter"}, AgentName: "composition"},
	}

	updated, changed := Accumulate("", sources)
	assert.True(t, changed)
	lines := strings.Split(updated, "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "waxy skin")
	assert.Contains(t, lines[1], "flat lighting")
	assert.Contains(t, lines[2], "odd framing")
}

func TestAccumulate_DedupesCaseInsensitivelyAgainstExisting(t *testing.T) {
	existing := "AVOID: Waxy Skin - add texture (from realism)"
	sources := []IssueSource{
		{Issue: domain.TopIssue{Problem: "waxy skin", Severity: domain.SeverityCritical, Fix: "different fix"}, AgentName: "realism"},
	}

	updated, changed := Accumulate(existing, sources)
	assert.False(t, changed)
	assert.Equal(t, existing, updated)
}

func TestAccumulate_CapsAtTenLines(t *testing.T) {
	var existing []string
	for i := 0; i < 9; i++ {
		existing = append(existing, "AVOID: old issue "+string(rune('a'+i))+" - fix (from agent)")
	}
	sources := []IssueSource{
		{Issue: domain.TopIssue{Problem: "new issue one", Severity: domain.SeverityCritical, Fix: "fix"}, AgentName: "a"},
		{Issue: domain.TopIssue{Problem: "new issue two", Severity: domain.SeverityMajor, Fix: "fix"}, AgentName: "b"},
	}

	updated, changed := Accumulate(strings.Join(existing, "\n"), sources)
	assert.True(t, changed)
	lines := strings.Split(updated, "\n")
	assert.Len(t, lines, 10)
	assert.Contains(t, updated, "new issue one")
	assert.Contains(t, updated, "new issue two")
	assert.NotContains(t, updated, "old issue a")
}

func TestAccumulate_NoNewIssuesLeavesUnchanged(t *testing.T) {
	updated, changed := Accumulate("AVOID: x - y (from z)", nil)
	assert.False(t, changed)
	assert.Equal(t, "AVOID: x - y (from z)", updated)
}
