package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrEmptyPrompt         = errors.New("prompt cannot be empty")
	ErrInvalidCount        = errors.New("count must be at least 1")
	ErrInvalidResolution   = errors.New("invalid resolution")
	ErrResourceExceeded    = errors.New("resolution exceeds memory budget")
	ErrArtifactUnavailable = errors.New("artifact unavailable")
	ErrBackendFailure      = errors.New("backend request failed")
	ErrInvalidInput        = errors.New("invalid input image")
	ErrNoImages            = errors.New("no images generated")
)

type ModelTier string

const (
	TierFast    ModelTier = "fast"
	TierQuality ModelTier = "quality"
	TierAuto    ModelTier = "auto"
)

func ParseTier(s string) (ModelTier, error) {
	switch ModelTier(s) {
	case TierFast, TierQuality, TierAuto:
		return ModelTier(s), nil
	case "":
		return TierAuto, nil
	}
	return TierAuto, fmt.Errorf("unknown model tier: %q", s)
}

// Resolved reports whether the tier is a final routing decision.
// TierAuto must be resolved to Fast or Quality before use.
func (t ModelTier) Resolved() bool {
	return t == TierFast || t == TierQuality
}

type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatJPEG OutputFormat = "jpeg"
	FormatWebP OutputFormat = "webp"
)

func ValidFormats() []OutputFormat {
	return []OutputFormat{FormatPNG, FormatJPEG, FormatWebP}
}

func (f OutputFormat) IsValid() bool {
	return slices.Contains(ValidFormats(), f)
}

func (f OutputFormat) String() string {
	return string(f)
}

func (f OutputFormat) MimeType() string {
	return "image/" + string(f)
}

func (f OutputFormat) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// HasAlpha reports whether the format can carry an alpha channel, which
// raises the per-pixel memory estimate from 3 to 4 bytes.
func (f OutputFormat) HasAlpha() bool {
	return f == FormatPNG || f == FormatWebP
}

type SpecKind int

const (
	SpecPreset SpecKind = iota
	SpecExplicit
	SpecAspect
)

// ResolutionSpec is the strict internal form of a caller-supplied resolution.
// Raw tool input (strings, objects, two-element lists) is parsed into this
// union exactly once at the boundary; the resolver never re-inspects shapes.
type ResolutionSpec struct {
	Kind SpecKind

	// SpecPreset: a named preset ("4k", "high", ...) or a "WxH" string.
	Preset string

	// SpecExplicit
	Width  int
	Height int

	// SpecAspect: ratio as "W:H" or a decimal string, plus either a nested
	// target spec or a literal max dimension.
	AspectRatio  string
	Target       *ResolutionSpec
	MaxDimension int
}

func PresetSpec(name string) *ResolutionSpec {
	return &ResolutionSpec{Kind: SpecPreset, Preset: name}
}

func ExplicitSpec(width, height int) *ResolutionSpec {
	return &ResolutionSpec{Kind: SpecExplicit, Width: width, Height: height}
}

func AspectSpec(ratio string, target *ResolutionSpec) *ResolutionSpec {
	return &ResolutionSpec{Kind: SpecAspect, AspectRatio: ratio, Target: target}
}

func AspectMaxSpec(ratio string, maxDimension int) *ResolutionSpec {
	return &ResolutionSpec{Kind: SpecAspect, AspectRatio: ratio, MaxDimension: maxDimension}
}

// ScoringFeatures carries the per-request signals the tier selector scores.
// Built fresh for every request, never persisted.
type ScoringFeatures struct {
	ResolutionHint string
	ImageCount     int
	InputImages    int
	ThinkingLevel  string
	Grounding      bool
}

type InputImage struct {
	Data     []byte
	MimeType string
}

type GenerateRequest struct {
	Prompt            string
	Count             int
	NegativePrompt    string
	SystemInstruction string
	InputImages       []InputImage
	Resolution        *ResolutionSpec
	Tier              ModelTier
	Format            OutputFormat
	ThinkingLevel     string
	Grounding         bool
}

func NewGenerateRequest(prompt string) *GenerateRequest {
	return &GenerateRequest{
		Prompt: prompt,
		Count:  1,
		Tier:   TierAuto,
		Format: FormatPNG,
	}
}

func (r *GenerateRequest) Validate() error {
	if r.Prompt == "" {
		return ErrEmptyPrompt
	}
	if r.Count < 1 {
		return ErrInvalidCount
	}
	return nil
}

type EditRequest struct {
	Instruction    string
	Image          InputImage
	ParentRemoteID string
	Resolution     *ResolutionSpec
	Tier           ModelTier
	Format         OutputFormat

	// SourceURI edits a remote file in place of inline image bytes.
	SourceURI      string
	SourceMimeType string
}

func NewEditRequest(image InputImage, instruction string) *EditRequest {
	return &EditRequest{
		Instruction: instruction,
		Image:       image,
		Tier:        TierAuto,
		Format:      FormatPNG,
	}
}

func (r *EditRequest) Validate() error {
	if len(r.Image.Data) == 0 && r.SourceURI == "" {
		return fmt.Errorf("%w: image data or a remote file reference is required", ErrInvalidInput)
	}
	if r.Instruction == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// GeneratedArtifact is one generated or edited image with its normalized
// metadata, after it has been written to local storage.
type GeneratedArtifact struct {
	Data      []byte
	Width     int
	Height    int
	MimeType  string
	Path      string
	ThumbPath string
	Metadata  map[string]any
}

// GenerationError records a recoverable per-image failure inside a batch.
type GenerationError struct {
	ResponseIndex int
	Err           error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("image %d: %v", e.ResponseIndex, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ImageRecord is one row of the persistent artifact index. RemoteID and
// RemoteURI are both set or both empty; ExpiresAt is set iff RemoteID is.
type ImageRecord struct {
	ID             int64
	Path           string
	ThumbPath      string
	MimeType       string
	Width          int
	Height         int
	SizeBytes      int64
	RemoteID       string
	RemoteURI      string
	ExpiresAt      *time.Time
	ParentRemoteID string
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RemoteLive reports whether the record currently references a remote mirror
// that has not expired as of now.
func (r *ImageRecord) RemoteLive(now time.Time) bool {
	if r.RemoteID == "" {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

// RemoteFile is the identity a remote store assigns to an uploaded artifact.
type RemoteFile struct {
	ID        string
	URI       string
	State     string
	ExpiresAt time.Time
}

const RemoteStateActive = "ACTIVE"
