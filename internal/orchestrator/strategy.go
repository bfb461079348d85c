package orchestrator

import "github.com/imagegenio/orchestrator/internal/domain"

// strategyPlateauWindow and strategyPlateauSpread are the fixed constants
// the MIXED-mode strategy rule uses to detect a plateau worth switching to
// editing over. This is distinct from the configurable termination plateau
// of §4.5 (domain.ImageParams.PlateauWindowSize/PlateauThreshold), which
// decides whether to stop the whole request rather than which path one
// iteration takes.
const (
	strategyPlateauWindow = 3
	strategyPlateauSpread = 3.0
	editModeEditFromIter  = 2
	warnAfterConsecutive  = 5
)

// decision is the outcome of strategy selection for one iteration.
type decision struct {
	Mode    domain.IterationMode
	Warning bool
}

// selectStrategy implements spec.md §4.1's strategy selection rules. For
// the first iteration of a run there is no prior image to edit, so every
// mode regenerates regardless of the rest of the table.
func selectStrategy(
	mode domain.GenerationMode,
	iterationNumber int,
	lastScore float64,
	lastSeverity domain.Severity,
	consecutiveEditCount int,
	recentScores []float64,
) decision {
	if iterationNumber == 1 {
		return decision{Mode: domain.IterationRegenerate}
	}

	switch mode {
	case domain.ModeRegeneration:
		return decision{Mode: domain.IterationRegenerate}
	case domain.ModeEdit:
		if iterationNumber < editModeEditFromIter {
			return decision{Mode: domain.IterationRegenerate}
		}
		return decision{Mode: domain.IterationEdit, Warning: consecutiveEditCount+1 > warnAfterConsecutive}
	}

	// MIXED
	if lastScore < 50 || consecutiveEditCount >= 3 ||
		lastSeverity == domain.SeverityCritical || lastSeverity == domain.SeverityMajor {
		return decision{Mode: domain.IterationRegenerate}
	}

	if lastScore >= 50 && (lastSeverity == domain.SeverityModerate || lastSeverity == domain.SeverityMinor) {
		return decision{Mode: domain.IterationEdit}
	}

	if isPlateaued(recentScores) && lastScore >= 65 {
		return decision{Mode: domain.IterationEdit}
	}

	return decision{Mode: domain.IterationRegenerate}
}

// isPlateaued reports whether the spread of the last strategyPlateauWindow
// scores is below strategyPlateauSpread. Fewer scores than the window
// never plateau.
func isPlateaued(scores []float64) bool {
	if len(scores) < strategyPlateauWindow {
		return false
	}
	window := scores[len(scores)-strategyPlateauWindow:]
	max, min := window[0], window[0]
	for _, s := range window[1:] {
		if s > max {
			max = s
		}
		if s < min {
			min = s
		}
	}
	return max-min < strategyPlateauSpread
}

// terminationPlateaued implements §4.5: over the last cfg.PlateauWindowSize
// aggregate scores including the current one, max-min < threshold*100.
func terminationPlateaued(scores []float64, windowSize int, threshold float64) bool {
	if windowSize <= 0 {
		windowSize = 3
	}
	if len(scores) < windowSize {
		return false
	}
	window := scores[len(scores)-windowSize:]
	max, min := window[0], window[0]
	for _, s := range window[1:] {
		if s > max {
			max = s
		}
		if s < min {
			min = s
		}
	}
	return max-min < threshold*100
}
