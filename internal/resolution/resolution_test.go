package resolution

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nanobanana/imagemcp/internal/config"
	"github.com/nanobanana/imagemcp/pkg/models"
)

func testResolver(t *testing.T, modify func(*config.Config)) *Resolver {
	t.Helper()
	cfg := config.Default()
	if modify != nil {
		modify(cfg)
	}
	return NewResolver(cfg, zerolog.Nop())
}

func TestResolve_StaticPresets(t *testing.T) {
	r := testResolver(t, nil)

	tests := []struct {
		preset     string
		tier       models.ModelTier
		wantWidth  int
		wantHeight int
	}{
		{"uhd", models.TierQuality, 3840, 2160},
		{"4k", models.TierQuality, 3840, 3840},
		{"2k", models.TierFast, 2048, 2048},
		{"1080p", models.TierFast, 1920, 1080},
		{"fhd", models.TierFast, 1920, 1080},
		{"720p", models.TierFast, 1280, 720},
		{"hd", models.TierFast, 1280, 720},
		{"480p", models.TierFast, 854, 480},
		{"1024", models.TierFast, 1024, 1024},
		{"landscape_4k", models.TierQuality, 3840, 2160},
		{"portrait_fhd", models.TierFast, 1080, 1920},
		{"UHD", models.TierQuality, 3840, 2160},
		{"  2k  ", models.TierFast, 2048, 2048},
	}

	for _, tt := range tests {
		t.Run(tt.preset+"/"+string(tt.tier), func(t *testing.T) {
			w, h, err := r.Resolve(models.PresetSpec(tt.preset), tt.tier)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.preset, err)
			}
			if w != tt.wantWidth || h != tt.wantHeight {
				t.Errorf("Resolve(%q) = %dx%d, want %dx%d", tt.preset, w, h, tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestResolve_DynamicPresetsAreTierRelative(t *testing.T) {
	r := testResolver(t, nil)

	tests := []struct {
		preset string
		tier   models.ModelTier
		want   int
	}{
		{"high", models.TierQuality, 3840},
		{"high", models.TierFast, 2048},
		{"original", models.TierQuality, 3840},
		{"original", models.TierFast, 2048},
		{"medium", models.TierQuality, 1920},
		{"medium", models.TierFast, 1024},
		{"low", models.TierQuality, 960},
		{"low", models.TierFast, 512},
	}

	for _, tt := range tests {
		t.Run(tt.preset+"/"+string(tt.tier), func(t *testing.T) {
			w, h, err := r.Resolve(models.PresetSpec(tt.preset), tt.tier)
			if err != nil {
				t.Fatalf("Resolve(%q, %s) error = %v", tt.preset, tt.tier, err)
			}
			if w != tt.want || h != tt.want {
				t.Errorf("Resolve(%q, %s) = %dx%d, want %dx%d square", tt.preset, tt.tier, w, h, tt.want, tt.want)
			}
		})
	}
}

func TestResolve_DimensionStrings(t *testing.T) {
	r := testResolver(t, nil)

	w, h, err := r.Resolve(models.PresetSpec("1920x1080"), models.TierFast)
	if err != nil {
		t.Fatalf("Resolve(1920x1080) error = %v", err)
	}
	if w != 1920 || h != 1080 {
		t.Errorf("Resolve(1920x1080) = %dx%d, want 1920x1080", w, h)
	}

	// Round trip through formatting.
	if got := FormatResolution(w, h); !strings.Contains(got, "1920x1080") {
		t.Errorf("FormatResolution(%d, %d) = %q, want it to contain 1920x1080", w, h, got)
	}

	w, h, err = r.Resolve(models.PresetSpec(" 800 x 600 "), models.TierFast)
	if err != nil {
		t.Fatalf("Resolve(800 x 600) error = %v", err)
	}
	if w != 800 || h != 600 {
		t.Errorf("Resolve(800 x 600) = %dx%d, want 800x600", w, h)
	}
}

func TestResolve_InvalidSpecs(t *testing.T) {
	r := testResolver(t, nil)

	tests := []struct {
		name string
		spec *models.ResolutionSpec
	}{
		{"unknown preset", models.PresetSpec("9k")},
		{"wrong arity dimension string", models.PresetSpec("1920x1080x60")},
		{"non numeric dimensions", models.PresetSpec("widexhigh")},
		{"zero width", models.ExplicitSpec(0, 1080)},
		{"negative height", models.ExplicitSpec(1920, -1)},
		{"zero in dimension string", models.PresetSpec("0x600")},
		{"ratio too wide", models.ExplicitSpec(4100, 1000)},
		{"ratio too tall", models.ExplicitSpec(1000, 4100)},
		{"aspect ratio out of range", models.AspectMaxSpec("5:1", 2048)},
		{"malformed aspect ratio", models.AspectMaxSpec("16by9", 2048)},
		{"zero denominator ratio", models.AspectMaxSpec("16:0", 2048)},
		{"aspect without target", models.AspectSpec("16:9", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := r.Resolve(tt.spec, models.TierFast)
			if !errors.Is(err, models.ErrInvalidResolution) {
				t.Errorf("Resolve() error = %v, want ErrInvalidResolution", err)
			}
		})
	}
}

func TestResolve_AspectRatioTargets(t *testing.T) {
	r := testResolver(t, nil)

	tests := []struct {
		name       string
		spec       *models.ResolutionSpec
		tier       models.ModelTier
		wantWidth  int
		wantHeight int
	}{
		{
			"landscape with preset target",
			models.AspectSpec("16:9", models.PresetSpec("2k")),
			models.TierQuality,
			2048, 1152,
		},
		{
			"portrait with max dimension",
			models.AspectMaxSpec("9:16", 1920),
			models.TierQuality,
			1080, 1920,
		},
		{
			"square decimal ratio",
			models.AspectMaxSpec("1.0", 1024),
			models.TierFast,
			1024, 1024,
		},
		{
			"nested dynamic target follows tier",
			models.AspectSpec("2:1", models.PresetSpec("high")),
			models.TierFast,
			2048, 1024,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := r.Resolve(tt.spec, tt.tier)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if w != tt.wantWidth || h != tt.wantHeight {
				t.Errorf("Resolve() = %dx%d, want %dx%d", w, h, tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestResolve_NilSpecUsesDefault(t *testing.T) {
	r := testResolver(t, nil)

	w, h, err := r.Resolve(nil, models.TierFast)
	if err != nil {
		t.Fatalf("Resolve(nil) error = %v", err)
	}
	if w != 1024 || h != 1024 {
		t.Errorf("Resolve(nil) = %dx%d, want 1024x1024", w, h)
	}
}

func TestResolve_DownscalesToTierLimit(t *testing.T) {
	r := testResolver(t, nil)

	// 4k square exceeds the fast tier's 2048 limit and scales to fit.
	w, h, err := r.Resolve(models.PresetSpec("4k"), models.TierFast)
	if err != nil {
		t.Fatalf("Resolve(4k, fast) error = %v", err)
	}
	if w != 2048 || h != 2048 {
		t.Errorf("Resolve(4k, fast) = %dx%d, want 2048x2048", w, h)
	}

	// Aspect ratio is preserved when only one dimension exceeds the limit.
	w, h, err = r.Resolve(models.ExplicitSpec(3840, 2160), models.TierFast)
	if err != nil {
		t.Fatalf("Resolve(3840x2160, fast) error = %v", err)
	}
	if w != 2048 || h != 1152 {
		t.Errorf("Resolve(3840x2160, fast) = %dx%d, want 2048x1152", w, h)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	r := testResolver(t, nil)

	cases := [][3]int{
		{3840, 2160, 2048},
		{5000, 5000, 2048},
		{1024, 768, 2048},
		{100, 30, 2048},
	}

	for _, c := range cases {
		w1, h1 := r.Normalize(c[0], c[1], c[2])
		w2, h2 := r.Normalize(w1, h1, c[2])
		if w1 != w2 || h1 != h2 {
			t.Errorf("Normalize not idempotent for %dx%d max %d: first %dx%d, second %dx%d",
				c[0], c[1], c[2], w1, h1, w2, h2)
		}
	}
}

func TestNormalize_MinimumDimension(t *testing.T) {
	r := testResolver(t, nil)

	// Extreme downscale clamps to the 16px floor.
	_, h := r.Normalize(100000, 400, 2048)
	if h < 16 {
		t.Errorf("Normalize height = %d, want >= 16", h)
	}
}

func TestResolve_MemoryBudget(t *testing.T) {
	r := testResolver(t, func(cfg *config.Config) {
		cfg.Resolution.MemoryLimitMB = 10
	})

	_, _, err := r.Resolve(models.ExplicitSpec(3840, 3840), models.TierQuality)
	if !errors.Is(err, models.ErrResourceExceeded) {
		t.Errorf("Resolve() error = %v, want ErrResourceExceeded", err)
	}
	if err != nil && !strings.Contains(err.Error(), "MB") {
		t.Errorf("Resolve() error %q should include the estimated MB", err)
	}
}

func TestEstimateMemory(t *testing.T) {
	// 1000x1000 RGBA with 1.5x overhead.
	if got := EstimateMemory(1000, 1000, models.FormatPNG); got != 6_000_000 {
		t.Errorf("EstimateMemory(png) = %d, want 6000000", got)
	}
	// Opaque formats use 3 bytes per pixel.
	if got := EstimateMemory(1000, 1000, models.FormatJPEG); got != 4_500_000 {
		t.Errorf("EstimateMemory(jpeg) = %d, want 4500000", got)
	}
}

func TestFormatResolution(t *testing.T) {
	tests := []struct {
		width, height int
		want          string
	}{
		{1920, 1080, "1920x1080 (1080p FHD)"},
		{3840, 2160, "3840x2160 (4K UHD)"},
		{1024, 1024, "1024x1024 (1K Square)"},
		{640, 480, "640x480"},
	}

	for _, tt := range tests {
		if got := FormatResolution(tt.width, tt.height); got != tt.want {
			t.Errorf("FormatResolution(%d, %d) = %q, want %q", tt.width, tt.height, got, tt.want)
		}
	}
}
