// Package gemini implements the remote file store against the Gemini Files API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/nanobanana/imagemcp/internal/config"
	"github.com/nanobanana/imagemcp/internal/remote"
	"github.com/nanobanana/imagemcp/pkg/models"
)

type apiFile struct {
	Name           string `json:"name"`
	DisplayName    string `json:"displayName,omitempty"`
	MimeType       string `json:"mimeType,omitempty"`
	URI            string `json:"uri"`
	State          string `json:"state"`
	ExpirationTime string `json:"expirationTime,omitempty"`
}

type uploadResponse struct {
	File apiFile `json:"file"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type Store struct {
	apiKey     string
	baseURL    string
	ttl        time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

var _ remote.Store = (*Store)(nil)

func New(cfg *config.Config, log zerolog.Logger) (*Store, error) {
	if cfg.Remote.APIKey == "" {
		return nil, fmt.Errorf("files API key is required")
	}
	timeout := cfg.Remote.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Store{
		apiKey:     cfg.Remote.APIKey,
		baseURL:    cfg.Remote.BaseURL,
		ttl:        cfg.Remote.TTL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "files").Logger(),
	}, nil
}

func (s *Store) Upload(ctx context.Context, localPath, displayName string) (*models.RemoteFile, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read upload source: %w", err)
	}

	if displayName == "" {
		displayName = filepath.Base(localPath)
	}
	mimeType := mimeTypeForPath(localPath)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return nil, fmt.Errorf("build upload metadata: %w", err)
	}
	meta := map[string]any{"file": map[string]any{"display_name": displayName}}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, fmt.Errorf("build upload metadata: %w", err)
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Type", mimeType)
	filePart, err := writer.CreatePart(fileHeader)
	if err != nil {
		return nil, fmt.Errorf("build upload body: %w", err)
	}
	if _, err := filePart.Write(data); err != nil {
		return nil, fmt.Errorf("build upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build upload body: %w", err)
	}

	url := s.baseURL + "/upload/v1beta/files"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())
	req.Header.Set("x-goog-api-key", s.apiKey)

	s.log.Debug().Str("path", localPath).Int("bytes", len(data)).Msg("uploading file")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, body)
	}

	var uploadResp uploadResponse
	if err := json.Unmarshal(body, &uploadResp); err != nil {
		return nil, fmt.Errorf("parse upload response: %w", err)
	}

	return s.toRemoteFile(uploadResp.File), nil
}

func (s *Store) GetMetadata(ctx context.Context, id string) (*models.RemoteFile, error) {
	url := fmt.Sprintf("%s/v1beta/%s", s.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create metadata request: %w", err)
	}
	req.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read metadata response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, body)
	}

	var file apiFile
	if err := json.Unmarshal(body, &file); err != nil {
		return nil, fmt.Errorf("parse metadata response: %w", err)
	}

	return s.toRemoteFile(file), nil
}

func (s *Store) toRemoteFile(f apiFile) *models.RemoteFile {
	expires := time.Now().Add(s.ttl)
	if f.ExpirationTime != "" {
		if parsed, err := time.Parse(time.RFC3339, f.ExpirationTime); err == nil {
			expires = parsed
		}
	}
	return &models.RemoteFile{
		ID:        f.Name,
		URI:       f.URI,
		State:     f.State,
		ExpiresAt: expires,
	}
}

func decodeError(status int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("files API error: %s (%s)", apiErr.Error.Message, apiErr.Error.Status)
	}
	return fmt.Errorf("files API error: status %d", status)
}

func mimeTypeForPath(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	return "application/octet-stream"
}
