// Package storage writes generated artifacts to the local output directory
// and derives the thumbnails the picker surfaces.
package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nanobanana/imagemcp/pkg/models"
)

const (
	thumbsDirName = "thumbnails"
	thumbMaxSide  = 256
)

type SavedImage struct {
	Path      string
	ThumbPath string
	MimeType  string
	Width     int
	Height    int
	SizeBytes int64
}

type Storage struct {
	root string
	log  zerolog.Logger
}

func New(root string, log zerolog.Logger) (*Storage, error) {
	if err := os.MkdirAll(filepath.Join(root, thumbsDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Storage{
		root: root,
		log:  log.With().Str("component", "storage").Logger(),
	}, nil
}

func (s *Storage) Root() string {
	return s.root
}

// Save writes image bytes under a fresh unique name and produces a JPEG
// thumbnail alongside. Payloads the decoder cannot read are still written,
// with zero dimensions and no thumbnail.
func (s *Storage) Save(data []byte, format models.OutputFormat) (*SavedImage, error) {
	name := fmt.Sprintf("img_%s_%s.%s",
		time.Now().Format("20060102_150405"),
		uuid.NewString()[:8],
		format.Extension())
	path := filepath.Join(s.root, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}

	saved := &SavedImage{
		Path:      path,
		MimeType:  format.MimeType(),
		SizeBytes: int64(len(data)),
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		s.log.Warn().Str("path", path).Err(err).Msg("cannot decode image, skipping thumbnail")
		return saved, nil
	}

	bounds := img.Bounds()
	saved.Width = bounds.Dx()
	saved.Height = bounds.Dy()

	thumbPath := filepath.Join(s.root, thumbsDirName, strings.TrimSuffix(name, filepath.Ext(name))+"_thumb.jpg")
	thumb := imaging.Fit(img, thumbMaxSide, thumbMaxSide, imaging.Lanczos)
	if err := imaging.Save(thumb, thumbPath, imaging.JPEGQuality(85)); err != nil {
		s.log.Warn().Str("path", thumbPath).Err(err).Msg("failed to write thumbnail")
		return saved, nil
	}
	saved.ThumbPath = thumbPath

	return saved, nil
}

// LoadInput reads a conditioning image from disk and sniffs its mime type.
func (s *Storage) LoadInput(path string) (*models.InputImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read input image %s", models.ErrInvalidInput, path)
	}
	return &models.InputImage{Data: data, MimeType: MimeTypeForPath(path)}, nil
}

// WithinRoot reports whether path resolves inside the output directory.
// Maintenance uses this before deleting anything.
func (s *Storage) WithinRoot(path string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Remove deletes a stored image and its thumbnail, refusing paths outside
// the output directory.
func (s *Storage) Remove(path, thumbPath string) error {
	if !s.WithinRoot(path) {
		return fmt.Errorf("refusing to delete outside output directory: %s", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if thumbPath != "" && s.WithinRoot(thumbPath) {
		if err := os.Remove(thumbPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func MimeTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
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
