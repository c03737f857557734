package selector

import "github.com/nanobanana/imagemcp/pkg/models"

// TierInfo describes a model tier for client-facing listings.
type TierInfo struct {
	Tier          models.ModelTier `json:"tier"`
	Name          string           `json:"name"`
	ModelID       string           `json:"model_id"`
	MaxResolution string           `json:"max_resolution"`
	Features      []string         `json:"features"`
	BestFor       string           `json:"best_for"`
}

func Info(tier models.ModelTier, modelID string) TierInfo {
	if tier == models.TierQuality {
		return TierInfo{
			Tier:          models.TierQuality,
			Name:          "Quality (high fidelity)",
			ModelID:       modelID,
			MaxResolution: "4K (3840px)",
			Features: []string{
				"4K resolution",
				"Search grounding",
				"Advanced reasoning",
				"High-quality text rendering",
			},
			BestFor: "Professional assets, production-ready images",
		}
	}
	return TierInfo{
		Tier:          models.TierFast,
		Name:          "Fast (low latency)",
		ModelID:       modelID,
		MaxResolution: "2K (2048px)",
		Features: []string{
			"Very fast generation",
			"Low latency",
			"High-volume support",
		},
		BestFor: "Rapid prototyping, quick iterations",
	}
}
