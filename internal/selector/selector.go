// Package selector routes generation requests to the fast or quality model
// tier using a deterministic, explainable keyword heuristic.
package selector

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nanobanana/imagemcp/internal/config"
	"github.com/nanobanana/imagemcp/pkg/models"
)

type input struct {
	prompt   string
	features models.ScoringFeatures
}

// A rule inspects one request signal and contributes score deltas, or forces
// a tier outright. Rules are data, not control flow: the set is evaluated in
// order and each one is independently testable.
type rule struct {
	name string
	eval func(in input) (quality, speed int, force models.ModelTier)
}

type Selector struct {
	rules []rule
	log   zerolog.Logger
}

func New(cfg *config.Config, log zerolog.Logger) *Selector {
	sel := cfg.Selection
	return &Selector{
		rules: buildRules(sel.QualityKeywords, sel.SpeedKeywords, sel.StrongKeywords),
		log:   log.With().Str("component", "selector").Logger(),
	}
}

// Select resolves the tier for a request. An explicit Fast or Quality request
// always wins; Auto (or empty) falls through to the scoring rules, with ties
// going to Fast.
func (s *Selector) Select(prompt string, requested models.ModelTier, features models.ScoringFeatures) models.ModelTier {
	if requested.Resolved() {
		s.log.Debug().Str("tier", string(requested)).Msg("explicit tier selection")
		return requested
	}

	in := input{prompt: strings.ToLower(prompt), features: features}

	var quality, speed int
	for _, r := range s.rules {
		q, sp, force := r.eval(in)
		if force.Resolved() {
			s.log.Info().Str("rule", r.name).Str("tier", string(force)).
				Msg("tier forced by override rule")
			return force
		}
		quality += q
		speed += sp
	}

	tier := models.TierFast
	if quality > speed {
		tier = models.TierQuality
	}
	s.log.Debug().Int("quality", quality).Int("speed", speed).
		Str("tier", string(tier)).Msg("auto-selected tier")
	return tier
}

func buildRules(qualityKeywords, speedKeywords, strongKeywords []string) []rule {
	return []rule{
		{
			name: "quality-keywords",
			eval: func(in input) (int, int, models.ModelTier) {
				return countMatches(in.prompt, qualityKeywords), 0, ""
			},
		},
		{
			name: "speed-keywords",
			eval: func(in input) (int, int, models.ModelTier) {
				return 0, countMatches(in.prompt, speedKeywords), ""
			},
		},
		{
			// Strong indicators score on top of the plain keyword match.
			name: "strong-quality-keywords",
			eval: func(in input) (int, int, models.ModelTier) {
				return countMatches(in.prompt, strongKeywords) * 2, 0, ""
			},
		},
		{
			name: "resolution-hint",
			eval: func(in input) (int, int, models.ModelTier) {
				return scoreResolutionHint(in.features.ResolutionHint)
			},
		},
		{
			name: "batch-size",
			eval: func(in input) (int, int, models.ModelTier) {
				if in.features.ImageCount > 2 {
					return 0, 1, ""
				}
				return 0, 0, ""
			},
		},
		{
			name: "multi-image-conditioning",
			eval: func(in input) (int, int, models.ModelTier) {
				if in.features.InputImages > 1 {
					return 1, 0, ""
				}
				return 0, 0, ""
			},
		},
		{
			name: "thinking-level",
			eval: func(in input) (int, int, models.ModelTier) {
				if strings.EqualFold(in.features.ThinkingLevel, "high") {
					return 1, 0, ""
				}
				return 0, 0, ""
			},
		},
		{
			name: "grounding",
			eval: func(in input) (int, int, models.ModelTier) {
				if in.features.Grounding {
					return 2, 0, ""
				}
				return 0, 0, ""
			},
		},
	}
}

func countMatches(prompt string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(prompt, kw) {
			count++
		}
	}
	return count
}

// scoreResolutionHint maps a requested resolution onto tier pressure. 4K is
// quality-tier-only, so it short-circuits instead of scoring.
func scoreResolutionHint(hint string) (int, int, models.ModelTier) {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return 0, 0, ""
	}

	switch {
	case strings.Contains(hint, "4k"), strings.Contains(hint, "3840"), strings.Contains(hint, "4096"):
		return 0, 0, models.TierQuality
	case strings.Contains(hint, "2k"), strings.Contains(hint, "2048"):
		return 2, 0, ""
	case hint == "high", hint == "hd", hint == "full":
		return 1, 0, ""
	case strings.Contains(hint, "x"):
		parts := strings.SplitN(hint, "x", 2)
		width, werr := strconv.Atoi(strings.TrimSpace(parts[0]))
		height, herr := strconv.Atoi(strings.TrimSpace(parts[1]))
		if werr != nil || herr != nil {
			return 0, 0, ""
		}
		switch maxDim := max(width, height); {
		case maxDim >= 3840:
			return 0, 0, models.TierQuality
		case maxDim >= 2048:
			return 2, 0, ""
		case maxDim >= 1920:
			return 1, 0, ""
		}
	}
	return 0, 0, ""
}
