package selector

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/nanobanana/imagemcp/internal/config"
	"github.com/nanobanana/imagemcp/pkg/models"
)

func testSelector(t *testing.T) *Selector {
	t.Helper()
	return New(config.Default(), zerolog.Nop())
}

func TestSelect_ExplicitTierAlwaysWins(t *testing.T) {
	s := testSelector(t)

	// Explicit fast overrides a prompt screaming quality.
	if got := s.Select("make it 4k ultra hd", models.TierFast, models.ScoringFeatures{}); got != models.TierFast {
		t.Errorf("Select(explicit fast) = %v, want fast", got)
	}
	// Explicit quality overrides a speed prompt.
	if got := s.Select("quick draft sketch", models.TierQuality, models.ScoringFeatures{}); got != models.TierQuality {
		t.Errorf("Select(explicit quality) = %v, want quality", got)
	}
}

func TestSelect_TieFavorsFast(t *testing.T) {
	s := testSelector(t)

	if got := s.Select("", models.TierAuto, models.ScoringFeatures{}); got != models.TierFast {
		t.Errorf("Select(empty prompt) = %v, want fast", got)
	}
	if got := s.Select("a red bicycle", models.TierAuto, models.ScoringFeatures{}); got != models.TierFast {
		t.Errorf("Select(neutral prompt) = %v, want fast", got)
	}
}

func TestSelect_QualityKeywords(t *testing.T) {
	s := testSelector(t)

	tests := []struct {
		name   string
		prompt string
		want   models.ModelTier
	}{
		{"professional scores double", "professional portrait", models.TierQuality},
		{"4k scores double", "a 4k wallpaper", models.TierQuality},
		{"plain quality keyword wins alone", "detailed painting", models.TierQuality},
		{"magazine print", "magazine cover, print ready", models.TierQuality},
		{"speed keywords dominate", "quick rough sketch", models.TierFast},
		{"draft prototype", "draft prototype of a logo", models.TierFast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Select(tt.prompt, models.TierAuto, models.ScoringFeatures{}); got != tt.want {
				t.Errorf("Select(%q) = %v, want %v", tt.prompt, got, tt.want)
			}
		})
	}
}

func TestSelect_ResolutionHintOverrides(t *testing.T) {
	s := testSelector(t)

	// 4K hint forces quality even with zero keyword matches.
	force := []string{"4k", "3840x2160", "4096x4096", "2160x3840"}
	for _, hint := range force {
		got := s.Select("anything", models.TierAuto, models.ScoringFeatures{ResolutionHint: hint})
		if got != models.TierQuality {
			t.Errorf("Select(hint=%q) = %v, want quality", hint, got)
		}
	}

	// The override fires even against a speed-heavy prompt.
	got := s.Select("quick rough draft", models.TierAuto, models.ScoringFeatures{ResolutionHint: "4k"})
	if got != models.TierQuality {
		t.Errorf("Select(speed prompt, 4k hint) = %v, want quality", got)
	}
}

func TestSelect_ResolutionHintScoring(t *testing.T) {
	s := testSelector(t)

	tests := []struct {
		name string
		hint string
		want models.ModelTier
	}{
		{"2k favors quality", "2k", models.TierQuality},
		{"2048 dimensions favor quality", "2048x2048", models.TierQuality},
		{"high favors quality by one", "high", models.TierQuality},
		{"1920 dimension favors quality by one", "1920x1080", models.TierQuality},
		{"small dimension is neutral", "800x600", models.TierFast},
		{"garbage dimension is ignored", "widexhigh", models.TierFast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Select("neutral subject", models.TierAuto, models.ScoringFeatures{ResolutionHint: tt.hint})
			if got != tt.want {
				t.Errorf("Select(hint=%q) = %v, want %v", tt.hint, got, tt.want)
			}
		})
	}
}

func TestSelect_StructuralFeatures(t *testing.T) {
	s := testSelector(t)

	// Batch size favors speed: one quality keyword vs batch of 3 ties -> fast.
	got := s.Select("detailed scene", models.TierAuto, models.ScoringFeatures{ImageCount: 3})
	if got != models.TierFast {
		t.Errorf("Select(detailed, n=3) = %v, want fast (tie)", got)
	}

	// Multi-image conditioning favors quality.
	got = s.Select("blend these", models.TierAuto, models.ScoringFeatures{InputImages: 2})
	if got != models.TierQuality {
		t.Errorf("Select(two input images) = %v, want quality", got)
	}

	// A single input image adds nothing.
	got = s.Select("restyle this", models.TierAuto, models.ScoringFeatures{InputImages: 1})
	if got != models.TierFast {
		t.Errorf("Select(one input image) = %v, want fast", got)
	}

	// High thinking level tips a tie.
	got = s.Select("a tree", models.TierAuto, models.ScoringFeatures{ThinkingLevel: "high"})
	if got != models.TierQuality {
		t.Errorf("Select(thinking=high) = %v, want quality", got)
	}

	// Grounding outweighs one speed keyword.
	got = s.Select("quick map of the area", models.TierAuto, models.ScoringFeatures{Grounding: true})
	if got != models.TierQuality {
		t.Errorf("Select(grounding, one speed keyword) = %v, want quality", got)
	}
}

func TestSelect_AutoAndEmptyBehaveAlike(t *testing.T) {
	s := testSelector(t)

	prompt := "premium product photography"
	auto := s.Select(prompt, models.TierAuto, models.ScoringFeatures{})
	empty := s.Select(prompt, models.ModelTier(""), models.ScoringFeatures{})
	if auto != empty {
		t.Errorf("Select(auto) = %v but Select(\"\") = %v", auto, empty)
	}
}

func TestInfo(t *testing.T) {
	q := Info(models.TierQuality, "quality-model")
	if q.Tier != models.TierQuality || q.ModelID != "quality-model" {
		t.Errorf("Info(quality) = %+v", q)
	}
	f := Info(models.TierFast, "fast-model")
	if f.Tier != models.TierFast || f.ModelID != "fast-model" {
		t.Errorf("Info(fast) = %+v", f)
	}
}
