package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/nanobanana/imagemcp/internal/resolution"
	"github.com/nanobanana/imagemcp/internal/selector"
	"github.com/nanobanana/imagemcp/pkg/models"
)

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func GetToolDefinitions() []Tool {
	resolutionProp := map[string]any{
		"description": "Target resolution: a preset name (\"4k\", \"fhd\", \"high\", \"low\", ...), a \"WIDTHxHEIGHT\" string, a [width, height] pair, or an object with width/height or aspect_ratio plus target_size/max_dimension.",
	}
	tierProp := map[string]any{
		"type":        "string",
		"enum":        []string{"fast", "quality", "auto"},
		"description": "Model tier. \"auto\" picks based on the prompt.",
	}
	formatProp := map[string]any{
		"type":        "string",
		"enum":        []string{"png", "jpeg", "webp"},
		"description": "Output format. Default png.",
	}

	return []Tool{
		{
			Name:        "generate_image",
			Description: "Generate one or more images from a text prompt. Saves every image locally, returns paths and metadata.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prompt": map[string]any{
						"type":        "string",
						"description": "What to generate",
					},
					"count": map[string]any{
						"type":        "integer",
						"description": "Number of images. Default 1.",
						"default":     1,
					},
					"negative_prompt": map[string]any{
						"type":        "string",
						"description": "Things to avoid in the output",
					},
					"system_instruction": map[string]any{
						"type":        "string",
						"description": "Standing instruction prefixed to the prompt",
					},
					"thinking_level": map[string]any{
						"type":        "string",
						"enum":        []string{"low", "medium", "high"},
						"description": "Reasoning depth requested from the model",
					},
					"grounding": map[string]any{
						"type":        "boolean",
						"description": "Ground the generation in web search results",
					},
					"resolution": resolutionProp,
					"tier":       tierProp,
					"format":     formatProp,
					"input_paths": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Paths of reference images to condition on",
					},
					"input_images": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Base64-encoded reference images",
					},
					"input_mime_types": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Mime types matching input_images, one per image",
					},
				},
				"required": []string{"prompt"},
			},
		},
		{
			Name:        "edit_image",
			Description: "Apply an edit instruction to an existing image. The source comes from a remote file id, a local path, or inline base64.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"instruction": map[string]any{
						"type":        "string",
						"description": "What to change",
					},
					"file_id": map[string]any{
						"type":        "string",
						"description": "Remote file id of the image to edit, e.g. files/abc123. Takes precedence over image_path.",
					},
					"image_path": map[string]any{
						"type":        "string",
						"description": "Path of the image to edit",
					},
					"image_b64": map[string]any{
						"type":        "string",
						"description": "Base64-encoded image to edit, alternative to image_path",
					},
					"mime_type": map[string]any{
						"type":        "string",
						"description": "Mime type for image_b64",
					},
					"resolution": resolutionProp,
					"tier":       tierProp,
					"format":     formatProp,
				},
				"required": []string{"instruction"},
			},
		},
		{
			Name:        "ensure_file",
			Description: "Guarantee an artifact has a live remote file reference, re-uploading the local copy if the old one expired.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ref": map[string]any{
						"type":        "string",
						"description": "Local path or remote file id of the artifact",
					},
				},
				"required": []string{"ref"},
			},
		},
		{
			Name:        "run_maintenance",
			Description: "Run the housekeeping cycle: clear expired remote references, delete old local files, check quota, prune dead index rows.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"dry_run": map[string]any{
						"type":        "boolean",
						"description": "Report what would happen without changing anything",
						"default":     false,
					},
				},
			},
		},
		{
			Name:        "storage_stats",
			Description: "Report how many images are tracked, total size, and remote mirror counts.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "recommend_resolution",
			Description: "Suggest a resolution preset for a prompt and tier, with the resolution hints found in the prompt.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prompt": map[string]any{
						"type":        "string",
						"description": "The generation prompt to analyze",
					},
					"tier": tierProp,
				},
				"required": []string{"prompt"},
			},
		},
		{
			Name:        "model_info",
			Description: "Describe the configured model tiers and their capabilities.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"tools": GetToolDefinitions(),
		},
	}
}

type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}
	return textResult(req.ID, result)
}

func (s *Server) executeTool(name string, args json.RawMessage) (any, error) {
	ctx := context.Background()

	switch name {
	case "generate_image":
		return s.handleGenerateImage(ctx, args)
	case "edit_image":
		return s.handleEditImage(ctx, args)
	case "ensure_file":
		return s.handleEnsureFile(ctx, args)
	case "run_maintenance":
		return s.handleRunMaintenance(ctx, args)
	case "storage_stats":
		return s.handleStorageStats(ctx)
	case "recommend_resolution":
		return s.handleRecommendResolution(args)
	case "model_info":
		return s.handleModelInfo()
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

type generateImageArgs struct {
	Prompt            string   `json:"prompt"`
	Count             int      `json:"count"`
	NegativePrompt    string   `json:"negative_prompt"`
	SystemInstruction string   `json:"system_instruction"`
	ThinkingLevel     string   `json:"thinking_level"`
	Grounding         bool     `json:"grounding"`
	Resolution        any      `json:"resolution"`
	Tier              string   `json:"tier"`
	Format            string   `json:"format"`
	InputPaths        []string `json:"input_paths"`
	InputImages       []string `json:"input_images"`
	InputMimeTypes    []string `json:"input_mime_types"`
}

type artifactResult struct {
	Path       string         `json:"path"`
	Thumbnail  string         `json:"thumbnail,omitempty"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	MimeType   string         `json:"mime_type"`
	Resolution string         `json:"resolution"`
	Metadata   map[string]any `json:"metadata"`
}

func (s *Server) handleGenerateImage(ctx context.Context, args json.RawMessage) (any, error) {
	var a generateImageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	req := models.NewGenerateRequest(a.Prompt)
	if a.Count > 0 {
		req.Count = a.Count
	}
	req.NegativePrompt = a.NegativePrompt
	req.SystemInstruction = a.SystemInstruction
	req.ThinkingLevel = a.ThinkingLevel
	req.Grounding = a.Grounding

	var err error
	if req.Tier, err = models.ParseTier(a.Tier); err != nil {
		return nil, err
	}
	if a.Format != "" {
		req.Format = models.OutputFormat(a.Format)
		if !req.Format.IsValid() {
			return nil, fmt.Errorf("%w: unsupported format %q", models.ErrInvalidInput, a.Format)
		}
	}
	if a.Resolution != nil {
		if req.Resolution, err = resolution.ParseSpec(a.Resolution); err != nil {
			return nil, err
		}
	}
	if req.InputImages, err = s.collectInputs(a.InputPaths, a.InputImages, a.InputMimeTypes); err != nil {
		return nil, err
	}

	artifacts, genErrs, err := s.orch.Generate(ctx, req, s.logProgress)
	if err != nil {
		return nil, err
	}
	return batchResult(artifacts, genErrs), nil
}

// batchResult reports the surviving artifacts plus any per-image failures the
// batch tolerated.
func batchResult(artifacts []*models.GeneratedArtifact, genErrs []*models.GenerationError) map[string]any {
	result := map[string]any{"images": toArtifactResults(artifacts)}
	if len(genErrs) > 0 {
		msgs := make([]string, 0, len(genErrs))
		for _, e := range genErrs {
			msgs = append(msgs, e.Error())
		}
		result["errors"] = msgs
	}
	return result
}

type editImageArgs struct {
	Instruction string `json:"instruction"`
	FileID      string `json:"file_id"`
	ImagePath   string `json:"image_path"`
	ImageB64    string `json:"image_b64"`
	MimeType    string `json:"mime_type"`
	Resolution  any    `json:"resolution"`
	Tier        string `json:"tier"`
	Format      string `json:"format"`
}

func (s *Server) handleEditImage(ctx context.Context, args json.RawMessage) (any, error) {
	var a editImageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	var img models.InputImage
	var parentRemoteID string
	var sourceURI, sourceMime string
	switch {
	case a.FileID != "":
		// EnsureAvailable re-uploads the local copy when the old remote
		// reference expired, so the returned URI is always live.
		file, err := s.tracker.EnsureAvailable(ctx, a.FileID)
		if err != nil {
			return nil, err
		}
		sourceURI = file.URI
		parentRemoteID = file.ID
		if rec, err := s.store.GetByRemoteID(ctx, file.ID); err == nil && rec != nil {
			sourceMime = rec.MimeType
		}
	case a.ImagePath != "":
		loaded, err := s.storage.LoadInput(a.ImagePath)
		if err != nil {
			return nil, err
		}
		img = *loaded
		// Known artifacts keep their lineage to the source's remote id.
		if rec, err := s.store.GetByPath(ctx, a.ImagePath); err == nil && rec != nil {
			parentRemoteID = rec.RemoteID
		}
	case a.ImageB64 != "":
		data, err := base64.StdEncoding.DecodeString(a.ImageB64)
		if err != nil {
			return nil, fmt.Errorf("%w: image_b64 is not valid base64", models.ErrInvalidInput)
		}
		mime := a.MimeType
		if mime == "" {
			mime = "image/png"
		}
		img = models.InputImage{Data: data, MimeType: mime}
	default:
		return nil, fmt.Errorf("%w: file_id, image_path, or image_b64 is required", models.ErrInvalidInput)
	}

	req := models.NewEditRequest(img, a.Instruction)
	req.ParentRemoteID = parentRemoteID
	req.SourceURI = sourceURI
	req.SourceMimeType = sourceMime

	var err error
	if req.Tier, err = models.ParseTier(a.Tier); err != nil {
		return nil, err
	}
	if a.Format != "" {
		req.Format = models.OutputFormat(a.Format)
		if !req.Format.IsValid() {
			return nil, fmt.Errorf("%w: unsupported format %q", models.ErrInvalidInput, a.Format)
		}
	}
	if a.Resolution != nil {
		if req.Resolution, err = resolution.ParseSpec(a.Resolution); err != nil {
			return nil, err
		}
	}

	artifacts, genErrs, err := s.orch.Edit(ctx, req, s.logProgress)
	if err != nil {
		return nil, err
	}
	return batchResult(artifacts, genErrs), nil
}

type ensureFileArgs struct {
	Ref string `json:"ref"`
}

func (s *Server) handleEnsureFile(ctx context.Context, args json.RawMessage) (any, error) {
	var a ensureFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Ref == "" {
		return nil, fmt.Errorf("%w: ref is required", models.ErrInvalidInput)
	}

	file, err := s.tracker.EnsureAvailable(ctx, a.Ref)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"remote_id":  file.ID,
		"remote_uri": file.URI,
		"state":      file.State,
		"expires_at": file.ExpiresAt,
	}, nil
}

type runMaintenanceArgs struct {
	DryRun bool `json:"dry_run"`
}

func (s *Server) handleRunMaintenance(ctx context.Context, args json.RawMessage) (any, error) {
	var a runMaintenanceArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
	}
	return s.maint.RunCycle(ctx, a.DryRun)
}

func (s *Server) handleStorageStats(ctx context.Context) (any, error) {
	stats, err := s.store.UsageStats(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"total_images":   stats.TotalImages,
		"total_size":     humanize.Bytes(uint64(stats.TotalSizeBytes)),
		"total_bytes":    stats.TotalSizeBytes,
		"mirrored":       stats.Mirrored,
		"edited":         stats.Edited,
		"remote_active":  stats.RemoteActive,
		"remote_expired": stats.RemoteExpired,
		"output_dir":     s.storage.Root(),
		"quota":          humanize.Bytes(uint64(s.cfg.Remote.QuotaBytes)),
	}, nil
}

type recommendResolutionArgs struct {
	Prompt string `json:"prompt"`
	Tier   string `json:"tier"`
}

func (s *Server) handleRecommendResolution(args json.RawMessage) (any, error) {
	var a recommendResolutionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	tier, err := models.ParseTier(a.Tier)
	if err != nil {
		return nil, err
	}
	if !tier.Resolved() {
		tier = models.TierFast
	}

	preset := resolution.Recommend(a.Prompt, tier, nil)
	width, height, err := s.resolver.Resolve(models.PresetSpec(preset), tier)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"preset":     preset,
		"width":      width,
		"height":     height,
		"resolution": resolution.FormatResolution(width, height),
		"hints":      resolution.ExtractHints(a.Prompt),
		"tier":       string(tier),
	}, nil
}

func (s *Server) handleModelInfo() (any, error) {
	return map[string]any{
		"tiers": []selector.TierInfo{
			selector.Info(models.TierFast, s.cfg.Fast.ModelID),
			selector.Info(models.TierQuality, s.cfg.Quality.ModelID),
		},
	}, nil
}

func (s *Server) collectInputs(paths, imagesB64, mimeTypes []string) ([]models.InputImage, error) {
	var inputs []models.InputImage
	for _, p := range paths {
		img, err := s.storage.LoadInput(p)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, *img)
	}

	if len(imagesB64) > 0 {
		if len(mimeTypes) != len(imagesB64) {
			return nil, fmt.Errorf("%w: %d images but %d mime types",
				models.ErrInvalidInput, len(imagesB64), len(mimeTypes))
		}
		for i, b64 := range imagesB64 {
			data, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return nil, fmt.Errorf("%w: input image %d is not valid base64", models.ErrInvalidInput, i)
			}
			inputs = append(inputs, models.InputImage{Data: data, MimeType: mimeTypes[i]})
		}
	}
	return inputs, nil
}

func (s *Server) logProgress(done, total int, message string) {
	s.log.Debug().Int("done", done).Int("total", total).Str("status", message).
		Msg("generation progress")
}

func toArtifactResults(artifacts []*models.GeneratedArtifact) []artifactResult {
	out := make([]artifactResult, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, artifactResult{
			Path:       a.Path,
			Thumbnail:  a.ThumbPath,
			Width:      a.Width,
			Height:     a.Height,
			MimeType:   a.MimeType,
			Resolution: resolution.FormatResolution(a.Width, a.Height),
			Metadata:   a.Metadata,
		})
	}
	return out
}
