// Package resolution normalizes caller-supplied resolution specifications
// into concrete pixel dimensions for a resolved model tier.
package resolution

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nanobanana/imagemcp/internal/config"
	"github.com/nanobanana/imagemcp/pkg/models"
)

const (
	MinAspectRatio = 0.25
	MaxAspectRatio = 4.0

	bytesPerPixelAlpha  = 4
	bytesPerPixelOpaque = 3
	overheadMultiplier  = 1.5
)

// staticPresets maps well-known labels to literal dimensions. Dynamic presets
// (high/medium/low/original) are tier-relative and resolved separately.
var staticPresets = map[string][2]int{
	"4k":            {3840, 3840},
	"uhd":           {3840, 2160},
	"2k":            {2048, 2048},
	"fhd":           {1920, 1080},
	"1080p":         {1920, 1080},
	"hd":            {1280, 720},
	"720p":          {1280, 720},
	"480p":          {854, 480},
	"2048":          {2048, 2048},
	"1024":          {1024, 1024},
	"512":           {512, 512},
	"256":           {256, 256},
	"square_lg":     {1024, 1024},
	"square_md":     {512, 512},
	"square_sm":     {256, 256},
	"portrait_4k":   {2160, 3840},
	"portrait_fhd":  {1080, 1920},
	"landscape_4k":  {3840, 2160},
	"landscape_fhd": {1920, 1080},
}

var dynamicPresets = map[string]float64{
	"high":     1.0,
	"original": 1.0,
	"medium":   0.5,
	"low":      0.25,
}

type Resolver struct {
	defaultSpec   string
	fastMax       int
	qualityMax    int
	memoryLimitMB int
	bufferPercent float64
	minDimension  int
	log           zerolog.Logger
}

func NewResolver(cfg *config.Config, log zerolog.Logger) *Resolver {
	minDim := cfg.Resolution.MinDimension
	if minDim <= 0 {
		minDim = 16
	}
	return &Resolver{
		defaultSpec:   cfg.Resolution.Default,
		fastMax:       cfg.Fast.MaxResolution,
		qualityMax:    cfg.Quality.MaxResolution,
		memoryLimitMB: cfg.Resolution.MemoryLimitMB,
		bufferPercent: cfg.Resolution.BufferPercent,
		minDimension:  minDim,
		log:           log.With().Str("component", "resolution").Logger(),
	}
}

// Resolve validates and normalizes a resolution spec for the given tier.
// A nil spec resolves the configured default preset. The tier must already
// be a final Fast/Quality decision: dynamic presets depend on it.
func (r *Resolver) Resolve(spec *models.ResolutionSpec, tier models.ModelTier) (int, int, error) {
	width, height, err := r.parse(spec, tier)
	if err != nil {
		return 0, 0, err
	}

	if err := validateRatio(width, height); err != nil {
		return 0, 0, err
	}

	width, height = r.Normalize(width, height, r.tierMax(tier))

	if err := r.checkMemory(width, height, models.FormatPNG); err != nil {
		return 0, 0, err
	}

	r.log.Debug().Int("width", width).Int("height", height).
		Str("tier", string(tier)).Msg("resolution validated")

	return width, height, nil
}

func (r *Resolver) tierMax(tier models.ModelTier) int {
	if tier == models.TierQuality {
		return r.qualityMax
	}
	return r.fastMax
}

func (r *Resolver) parse(spec *models.ResolutionSpec, tier models.ModelTier) (int, int, error) {
	if spec == nil {
		spec = models.PresetSpec(r.defaultSpec)
	}

	switch spec.Kind {
	case models.SpecPreset:
		return r.parsePreset(spec.Preset, tier)
	case models.SpecExplicit:
		if spec.Width <= 0 || spec.Height <= 0 {
			return 0, 0, fmt.Errorf("%w: dimensions must be positive, got %dx%d",
				models.ErrInvalidResolution, spec.Width, spec.Height)
		}
		return spec.Width, spec.Height, nil
	case models.SpecAspect:
		return r.parseAspect(spec, tier)
	}
	return 0, 0, fmt.Errorf("%w: unsupported spec kind %d", models.ErrInvalidResolution, spec.Kind)
}

// parsePreset resolves a preset label or a "WxH" dimension string. Presets
// are checked before dimension parsing so a label can never be misrouted
// into the WxH path.
func (r *Resolver) parsePreset(name string, tier models.ModelTier) (int, int, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	if dims, ok := staticPresets[name]; ok {
		return dims[0], dims[1], nil
	}

	if factor, ok := dynamicPresets[name]; ok {
		size := int(float64(r.tierMax(tier)) * factor)
		return size, size, nil
	}

	if strings.Contains(name, "x") {
		return parseDimensionString(name)
	}

	return 0, 0, fmt.Errorf("%w: unknown preset %q", models.ErrInvalidResolution, name)
}

func parseDimensionString(s string) (int, int, error) {
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: malformed dimension string %q", models.ErrInvalidResolution, s)
	}

	width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed dimension string %q", models.ErrInvalidResolution, s)
	}
	height, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed dimension string %q", models.ErrInvalidResolution, s)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: dimensions must be positive, got %q", models.ErrInvalidResolution, s)
	}
	return width, height, nil
}

func (r *Resolver) parseAspect(spec *models.ResolutionSpec, tier models.ModelTier) (int, int, error) {
	ratio, err := parseAspectRatio(spec.AspectRatio)
	if err != nil {
		return 0, 0, err
	}

	if ratio < MinAspectRatio || ratio > MaxAspectRatio {
		return 0, 0, fmt.Errorf("%w: aspect ratio %.2f outside valid range (%.2f-%.2f)",
			models.ErrInvalidResolution, ratio, MinAspectRatio, MaxAspectRatio)
	}

	var maxDimension int
	switch {
	case spec.Target != nil:
		tw, th, err := r.parse(spec.Target, tier)
		if err != nil {
			return 0, 0, err
		}
		maxDimension = max(tw, th)
	case spec.MaxDimension > 0:
		maxDimension = spec.MaxDimension
	default:
		return 0, 0, fmt.Errorf("%w: aspect ratio requires a target size or max dimension",
			models.ErrInvalidResolution)
	}

	// Landscape and square put the max dimension on width, portrait on height.
	if ratio >= 1 {
		return maxDimension, int(float64(maxDimension) / ratio), nil
	}
	return int(float64(maxDimension) * ratio), maxDimension, nil
}

func parseAspectRatio(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: aspect ratio is required", models.ErrInvalidResolution)
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 2 {
			return 0, fmt.Errorf("%w: invalid aspect ratio %q", models.ErrInvalidResolution, s)
		}
		num, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid aspect ratio %q", models.ErrInvalidResolution, s)
		}
		den, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || den == 0 {
			return 0, fmt.Errorf("%w: invalid aspect ratio %q", models.ErrInvalidResolution, s)
		}
		return num / den, nil
	}

	ratio, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid aspect ratio %q", models.ErrInvalidResolution, s)
	}
	return ratio, nil
}

func validateRatio(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %dx%d",
			models.ErrInvalidResolution, width, height)
	}
	ratio := float64(width) / float64(height)
	if ratio < MinAspectRatio || ratio > MaxAspectRatio {
		return fmt.Errorf("%w: aspect ratio %.2f outside valid range (%.2f-%.2f)",
			models.ErrInvalidResolution, ratio, MinAspectRatio, MaxAspectRatio)
	}
	return nil
}

// Normalize uniformly downscales dimensions that exceed maxResolution,
// preserving aspect ratio and flooring each dimension at the configured
// minimum. Idempotent: normalizing an already-normalized pair is a no-op.
func (r *Resolver) Normalize(width, height, maxResolution int) (int, int) {
	if width <= maxResolution && height <= maxResolution {
		return width, height
	}

	// Integer arithmetic floors exactly; a float scale factor can land just
	// below the true quotient and truncate one pixel too far.
	larger := max(width, height)
	newWidth := max(r.minDimension, width*maxResolution/larger)
	newHeight := max(r.minDimension, height*maxResolution/larger)

	r.log.Info().
		Str("from", fmt.Sprintf("%dx%d", width, height)).
		Str("to", fmt.Sprintf("%dx%d", newWidth, newHeight)).
		Msg("downscaled resolution to tier limit")

	return newWidth, newHeight
}

// EstimateMemory returns the estimated bytes needed to process an image of
// the given dimensions, including a fixed processing-overhead multiplier.
func EstimateMemory(width, height int, format models.OutputFormat) int64 {
	bytesPerPixel := bytesPerPixelOpaque
	if format.HasAlpha() {
		bytesPerPixel = bytesPerPixelAlpha
	}
	base := int64(width) * int64(height) * int64(bytesPerPixel)
	return int64(float64(base) * overheadMultiplier)
}

func (r *Resolver) checkMemory(width, height int, format models.OutputFormat) error {
	estimated := EstimateMemory(width, height, format)
	limit := int64(r.memoryLimitMB) * 1024 * 1024
	available := int64(float64(limit) * (1 - r.bufferPercent))

	if estimated > available {
		estimatedMB := float64(estimated) / (1024 * 1024)
		return fmt.Errorf("%w: estimated %.1fMB exceeds limit %dMB with %d%% buffer",
			models.ErrResourceExceeded, estimatedMB, r.memoryLimitMB,
			int(r.bufferPercent*100))
	}
	return nil
}

// commonNames labels well-known dimension pairs in formatted output.
var commonNames = map[[2]int]string{
	{3840, 3840}: "4K Square",
	{3840, 2160}: "4K UHD",
	{2160, 3840}: "4K Portrait",
	{2048, 2048}: "2K Square",
	{1920, 1080}: "1080p FHD",
	{1080, 1920}: "1080p Portrait",
	{1280, 720}:  "720p HD",
	{1024, 1024}: "1K Square",
}

func FormatResolution(width, height int) string {
	s := fmt.Sprintf("%dx%d", width, height)
	if name, ok := commonNames[[2]int{width, height}]; ok {
		s += " (" + name + ")"
	}
	return s
}
