package judge

import "github.com/imagegenio/orchestrator/internal/domain"

// ConfigModelResolver resolves a judge's model tier using the process
// configuration's pro/flash model ids. FLASH is the default for any
// unrecognized tier.
type ConfigModelResolver struct {
	ProModel   string
	FlashModel string
}

// ModelFor implements ModelResolver.
func (r ConfigModelResolver) ModelFor(tier domain.ModelTier) string {
	if tier == domain.ModelTierPro {
		return r.ProModel
	}
	return r.FlashModel
}
