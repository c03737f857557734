// Package gemini implements the generative backend against the Gemini API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nanobanana/imagemcp/internal/backend"
	"github.com/nanobanana/imagemcp/internal/config"
	"github.com/nanobanana/imagemcp/pkg/models"
)

const defaultTimeout = 90 * time.Second

var ErrAPIKeyRequired = errors.New("API key is required")

type apiPart struct {
	Text       string       `json:"text,omitempty"`
	InlineData *apiBlob     `json:"inlineData,omitempty"`
	FileData   *apiFileData `json:"fileData,omitempty"`
}

type apiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type apiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type apiRequest struct {
	Contents         []apiContent      `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type apiResponse struct {
	Candidates []struct {
		Content apiContent `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type Client struct {
	apiKey         string
	baseURL        string
	fastModel      string
	qualityModel   string
	fastTimeout    time.Duration
	qualityTimeout time.Duration
	httpClient     *http.Client
	log            zerolog.Logger
}

func New(cfg *config.Config, log zerolog.Logger) (*Client, error) {
	if cfg.Remote.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}

	return &Client{
		apiKey:         cfg.Remote.APIKey,
		baseURL:        cfg.Remote.BaseURL,
		fastModel:      cfg.Fast.ModelID,
		qualityModel:   cfg.Quality.ModelID,
		fastTimeout:    orDefault(cfg.Fast.Timeout),
		qualityTimeout: orDefault(cfg.Quality.Timeout),
		httpClient:     &http.Client{},
		log:            log.With().Str("component", "gemini").Logger(),
	}, nil
}

func orDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return defaultTimeout
	}
	return timeout
}

func (c *Client) model(tier models.ModelTier) string {
	if tier == models.TierQuality {
		return c.qualityModel
	}
	return c.fastModel
}

func (c *Client) timeout(tier models.ModelTier) time.Duration {
	if tier == models.TierQuality {
		return c.qualityTimeout
	}
	return c.fastTimeout
}

func (c *Client) GenerateContent(ctx context.Context, parts []backend.Part, cfg backend.GenerationConfig) (*backend.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout(cfg.Tier))
	defer cancel()

	apiReq := buildRequest(parts, cfg)

	jsonData, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model(cfg.Tier))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	c.log.Debug().Str("model", c.model(cfg.Tier)).Int("parts", len(parts)).
		Msg("sending generateContent request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBackendFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", models.ErrBackendFailure, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", models.ErrBackendFailure, err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("%w: %s (%s)", models.ErrBackendFailure, apiResp.Error.Message, apiResp.Error.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", models.ErrBackendFailure, resp.StatusCode)
	}

	return decodeResponse(apiResp)
}

func buildRequest(parts []backend.Part, cfg backend.GenerationConfig) *apiRequest {
	content := apiContent{Role: "user", Parts: make([]apiPart, 0, len(parts))}
	for _, p := range parts {
		ap := apiPart{Text: p.Text}
		if p.InlineData != nil {
			ap.InlineData = &apiBlob{
				MimeType: p.InlineData.MimeType,
				Data:     base64.StdEncoding.EncodeToString(p.InlineData.Data),
			}
		}
		if p.FileData != nil {
			ap.FileData = &apiFileData{MimeType: p.FileData.MimeType, FileURI: p.FileData.URI}
		}
		content.Parts = append(content.Parts, ap)
	}

	genCfg := &generationConfig{ResponseModalities: []string{"IMAGE"}}
	imgCfg := &imageConfig{AspectRatio: cfg.AspectRatio}
	if cfg.Width > 0 && cfg.Height > 0 {
		imgCfg.ImageSize = fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
	}
	if imgCfg.AspectRatio != "" || imgCfg.ImageSize != "" {
		genCfg.ImageConfig = imgCfg
	}

	return &apiRequest{
		Contents:         []apiContent{content},
		GenerationConfig: genCfg,
	}
}

func decodeResponse(apiResp apiResponse) (*backend.Response, error) {
	resp := &backend.Response{}
	for _, candidate := range apiResp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("%w: invalid image payload: %v", models.ErrBackendFailure, err)
				}
				resp.Parts = append(resp.Parts, backend.InlinePart(part.InlineData.MimeType, data))
				continue
			}
			if part.Text != "" {
				resp.Parts = append(resp.Parts, backend.TextPart(part.Text))
			}
		}
	}
	return resp, nil
}
