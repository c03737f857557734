// Package orchestrator runs the full generate/edit pipeline: tier selection,
// resolution resolution, backend calls, local persistence, index tracking.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nanobanana/imagemcp/internal/backend"
	"github.com/nanobanana/imagemcp/internal/lifecycle"
	"github.com/nanobanana/imagemcp/internal/resolution"
	"github.com/nanobanana/imagemcp/internal/selector"
	"github.com/nanobanana/imagemcp/internal/storage"
	"github.com/nanobanana/imagemcp/pkg/models"
)

// Progress reports batch advancement. Implementations must tolerate being
// called from the request goroutine; the final call always has done == total.
type Progress func(done, total int, message string)

type Orchestrator struct {
	backend  backend.Backend
	resolver *resolution.Resolver
	selector *selector.Selector
	storage  *storage.Storage
	tracker  *lifecycle.Tracker
	log      zerolog.Logger
}

func New(be backend.Backend, res *resolution.Resolver, sel *selector.Selector,
	st *storage.Storage, tracker *lifecycle.Tracker, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		backend:  be,
		resolver: res,
		selector: sel,
		storage:  st,
		tracker:  tracker,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// Generate produces req.Count images. Individual response failures are
// tolerated and returned alongside the artifacts that did succeed; the call
// fails only when no image at all could be produced.
func (o *Orchestrator) Generate(ctx context.Context, req *models.GenerateRequest, progress Progress) ([]*models.GeneratedArtifact, []*models.GenerationError, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	for i, img := range req.InputImages {
		if len(img.Data) == 0 {
			return nil, nil, fmt.Errorf("%w: input image %d is empty", models.ErrInvalidInput, i)
		}
	}

	tier := o.selector.Select(req.Prompt, req.Tier, models.ScoringFeatures{
		ResolutionHint: hintFromSpec(req.Resolution),
		ImageCount:     req.Count,
		InputImages:    len(req.InputImages),
		ThinkingLevel:  req.ThinkingLevel,
		Grounding:      req.Grounding,
	})
	width, height, err := o.resolver.Resolve(req.Resolution, tier)
	if err != nil {
		return nil, nil, err
	}

	parts := make([]backend.Part, 0, len(req.InputImages)+1)
	parts = append(parts, backend.TextPart(buildPrompt(req.Prompt, req.NegativePrompt, req.SystemInstruction)))
	for _, img := range req.InputImages {
		parts = append(parts, backend.InlinePart(img.MimeType, img.Data))
	}

	cfg := backend.GenerationConfig{Tier: tier, Width: width, Height: height}
	if req.Resolution != nil && req.Resolution.Kind == models.SpecAspect {
		cfg.AspectRatio = req.Resolution.AspectRatio
	}

	o.log.Info().Str("tier", string(tier)).Int("count", req.Count).
		Str("resolution", resolution.FormatResolution(width, height)).
		Msg("starting generation")

	meta := map[string]any{
		"operation": "generate",
		"prompt":    req.Prompt,
		"tier":      string(tier),
	}
	if req.NegativePrompt != "" {
		meta["negative_prompt"] = req.NegativePrompt
	}

	return o.runBatch(ctx, parts, cfg, req.Count, req.Format, meta, "", progress)
}

// Edit applies an instruction to an existing image. The source is either
// inline bytes or a remote file reference; lineage to the source's remote id
// is recorded. The edit always runs as a single response.
func (o *Orchestrator) Edit(ctx context.Context, req *models.EditRequest, progress Progress) ([]*models.GeneratedArtifact, []*models.GenerationError, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	tier := o.selector.Select(req.Instruction, req.Tier, models.ScoringFeatures{
		ResolutionHint: hintFromSpec(req.Resolution),
		ImageCount:     1,
		InputImages:    1,
	})
	width, height, err := o.resolver.Resolve(req.Resolution, tier)
	if err != nil {
		return nil, nil, err
	}

	source := backend.InlinePart(req.Image.MimeType, req.Image.Data)
	if req.SourceURI != "" {
		source = backend.FilePart(req.SourceMimeType, req.SourceURI)
	}
	parts := []backend.Part{
		backend.TextPart(buildPrompt(req.Instruction, "", "")),
		source,
	}
	cfg := backend.GenerationConfig{Tier: tier, Width: width, Height: height}
	if req.Resolution != nil && req.Resolution.Kind == models.SpecAspect {
		cfg.AspectRatio = req.Resolution.AspectRatio
	}

	o.log.Info().Str("tier", string(tier)).
		Str("resolution", resolution.FormatResolution(width, height)).
		Msg("starting edit")

	meta := map[string]any{
		"operation": "edit",
		"prompt":    req.Instruction,
		"tier":      string(tier),
	}
	return o.runBatch(ctx, parts, cfg, 1, req.Format, meta, req.ParentRemoteID, progress)
}

func (o *Orchestrator) runBatch(ctx context.Context, parts []backend.Part, cfg backend.GenerationConfig,
	count int, format models.OutputFormat, baseMeta map[string]any, parentRemoteID string,
	progress Progress) ([]*models.GeneratedArtifact, []*models.GenerationError, error) {

	if !format.IsValid() {
		format = models.FormatPNG
	}

	var artifacts []*models.GeneratedArtifact
	var failures []*models.GenerationError

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		resp, err := o.backend.GenerateContent(ctx, parts, cfg)
		if err != nil {
			failures = append(failures, &models.GenerationError{ResponseIndex: i, Err: err})
			o.log.Warn().Int("response", i).Err(err).Msg("generation response failed")
			report(progress, i+1, count, "response failed")
			continue
		}

		images := backend.ExtractImages(resp)
		if len(images) == 0 {
			failures = append(failures, &models.GenerationError{
				ResponseIndex: i,
				Err:           fmt.Errorf("%w: response carried no image", models.ErrBackendFailure),
			})
			report(progress, i+1, count, "empty response")
			continue
		}

		for j, data := range images {
			artifact, err := o.persist(ctx, data, format, baseMeta, i, j, parentRemoteID)
			if err != nil {
				failures = append(failures, &models.GenerationError{ResponseIndex: i, Err: err})
				continue
			}
			artifacts = append(artifacts, artifact)
		}
		report(progress, i+1, count, "image ready")
	}

	report(progress, count, count, "complete")

	if len(artifacts) == 0 {
		if len(failures) > 0 {
			return nil, failures, fmt.Errorf("%w: %v", models.ErrNoImages, failures[0])
		}
		return nil, nil, models.ErrNoImages
	}
	return artifacts, failures, nil
}

func (o *Orchestrator) persist(ctx context.Context, data []byte, format models.OutputFormat,
	baseMeta map[string]any, responseIndex, imageIndex int,
	parentRemoteID string) (*models.GeneratedArtifact, error) {

	saved, err := o.storage.Save(data, format)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]any, len(baseMeta)+4)
	for k, v := range baseMeta {
		meta[k] = v
	}
	meta["response_index"] = responseIndex
	meta["image_index"] = imageIndex
	meta["resolution"] = resolution.FormatResolution(saved.Width, saved.Height)
	// Output of these models always carries a SynthID watermark.
	meta["watermarked"] = true

	if _, err := o.tracker.Track(ctx, saved, meta, parentRemoteID); err != nil {
		return nil, err
	}

	return &models.GeneratedArtifact{
		Data:      data,
		Width:     saved.Width,
		Height:    saved.Height,
		MimeType:  saved.MimeType,
		Path:      saved.Path,
		ThumbPath: saved.ThumbPath,
		Metadata:  meta,
	}, nil
}

func buildPrompt(prompt, negative, systemInstruction string) string {
	out := prompt
	if systemInstruction != "" {
		out = systemInstruction + "\n\n" + out
	}
	if negative != "" {
		out += "\n\nConstraints (avoid): " + negative
	}
	return out
}

// hintFromSpec turns a requested resolution into the textual hint the tier
// selector scores. An absent spec contributes no hint.
func hintFromSpec(spec *models.ResolutionSpec) string {
	if spec == nil {
		return ""
	}
	switch spec.Kind {
	case models.SpecPreset:
		return spec.Preset
	case models.SpecExplicit:
		return fmt.Sprintf("%dx%d", spec.Width, spec.Height)
	case models.SpecAspect:
		if spec.Target != nil {
			return hintFromSpec(spec.Target)
		}
		if spec.MaxDimension > 0 {
			return fmt.Sprintf("%dx%d", spec.MaxDimension, spec.MaxDimension)
		}
	}
	return ""
}

func report(progress Progress, done, total int, message string) {
	if progress != nil {
		progress(done, total, message)
	}
}
