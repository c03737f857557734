package storage

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nanobanana/imagemcp/pkg/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestSaveDecodableImage(t *testing.T) {
	s := newTestStorage(t)
	data := pngBytes(t, 640, 480)

	saved, err := s.Save(data, models.FormatPNG)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if saved.Width != 640 || saved.Height != 480 {
		t.Errorf("dimensions = %dx%d, want 640x480", saved.Width, saved.Height)
	}
	if saved.SizeBytes != int64(len(data)) {
		t.Errorf("SizeBytes = %d, want %d", saved.SizeBytes, len(data))
	}
	if saved.MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", saved.MimeType)
	}
	if !strings.HasSuffix(saved.Path, ".png") {
		t.Errorf("Path = %q, want .png suffix", saved.Path)
	}

	got, err := os.ReadFile(saved.Path)
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("saved bytes differ from input")
	}

	if saved.ThumbPath == "" {
		t.Fatal("ThumbPath empty, want thumbnail")
	}
	thumbData, err := os.ReadFile(saved.ThumbPath)
	if err != nil {
		t.Fatalf("reading thumbnail: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(thumbData))
	if err != nil {
		t.Fatalf("decoding thumbnail: %v", err)
	}
	if cfg.Width > 256 || cfg.Height > 256 {
		t.Errorf("thumbnail = %dx%d, want max side 256", cfg.Width, cfg.Height)
	}
}

func TestSaveUndecodablePayload(t *testing.T) {
	s := newTestStorage(t)

	saved, err := s.Save([]byte("not an image"), models.FormatPNG)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.ThumbPath != "" {
		t.Errorf("ThumbPath = %q, want empty for undecodable payload", saved.ThumbPath)
	}
	if saved.Width != 0 || saved.Height != 0 {
		t.Errorf("dimensions = %dx%d, want 0x0", saved.Width, saved.Height)
	}
	if _, err := os.Stat(saved.Path); err != nil {
		t.Errorf("payload not written: %v", err)
	}
}

func TestSaveUniqueNames(t *testing.T) {
	s := newTestStorage(t)
	data := pngBytes(t, 8, 8)

	first, err := s.Save(data, models.FormatPNG)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second, err := s.Save(data, models.FormatPNG)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if first.Path == second.Path {
		t.Errorf("two saves produced the same path %q", first.Path)
	}
}

func TestLoadInput(t *testing.T) {
	s := newTestStorage(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "input.jpg")
	if err := os.WriteFile(path, []byte("jpeg bytes"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	img, err := s.LoadInput(path)
	if err != nil {
		t.Fatalf("LoadInput() error = %v", err)
	}
	if img.MimeType != "image/jpeg" {
		t.Errorf("MimeType = %q, want image/jpeg", img.MimeType)
	}
	if string(img.Data) != "jpeg bytes" {
		t.Error("data mismatch")
	}

	if _, err := s.LoadInput(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("LoadInput(missing) error = nil, want error")
	}
}

func TestWithinRoot(t *testing.T) {
	s := newTestStorage(t)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"inside", filepath.Join(s.Root(), "a.png"), true},
		{"nested", filepath.Join(s.Root(), thumbsDirName, "a_thumb.jpg"), true},
		{"outside", "/etc/passwd", false},
		{"traversal", filepath.Join(s.Root(), "..", "escape.png"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.WithinRoot(tt.path); got != tt.want {
				t.Errorf("WithinRoot(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	s := newTestStorage(t)
	saved, err := s.Save(pngBytes(t, 16, 16), models.FormatPNG)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := s.Remove(saved.Path, saved.ThumbPath); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(saved.Path); !os.IsNotExist(err) {
		t.Error("image not removed")
	}
	if _, err := os.Stat(saved.ThumbPath); !os.IsNotExist(err) {
		t.Error("thumbnail not removed")
	}

	// Missing files are not an error, repeated sweeps stay idempotent.
	if err := s.Remove(saved.Path, saved.ThumbPath); err != nil {
		t.Errorf("Remove() on missing files error = %v", err)
	}

	if err := s.Remove("/etc/passwd", ""); err == nil {
		t.Error("Remove() outside root error = nil, want refusal")
	}
}

func TestMimeTypeForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.png", "image/png"},
		{"a.JPG", "image/jpeg"},
		{"a.jpeg", "image/jpeg"},
		{"a.webp", "image/webp"},
		{"a.gif", "image/gif"},
		{"a.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := MimeTypeForPath(tt.path); got != tt.want {
			t.Errorf("MimeTypeForPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
