// Package backend defines the generative-model boundary. The orchestrator
// treats a backend purely as parts-in/bytes-out; the concrete HTTP client
// lives in the gemini subpackage.
package backend

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/nanobanana/imagemcp/pkg/models"
)

// Part is one element of a backend request or response: prompt text, inline
// image bytes, or a reference to a remote file.
type Part struct {
	Text       string
	InlineData *Blob
	FileData   *FileRef
}

type Blob struct {
	MimeType string
	Data     []byte
}

type FileRef struct {
	MimeType string
	URI      string
}

func TextPart(text string) Part {
	return Part{Text: text}
}

func InlinePart(mimeType string, data []byte) Part {
	return Part{InlineData: &Blob{MimeType: mimeType, Data: data}}
}

func FilePart(mimeType, uri string) Part {
	return Part{FileData: &FileRef{MimeType: mimeType, URI: uri}}
}

// CreateImageParts converts base64-encoded images into inline parts.
// The input slices must have equal length.
func CreateImageParts(imagesB64, mimeTypes []string) ([]Part, error) {
	if len(imagesB64) != len(mimeTypes) {
		return nil, fmt.Errorf("%w: %d images but %d mime types",
			models.ErrInvalidInput, len(imagesB64), len(mimeTypes))
	}

	parts := make([]Part, 0, len(imagesB64))
	for i, b64 := range imagesB64 {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d is not valid base64", models.ErrInvalidInput, i)
		}
		parts = append(parts, InlinePart(mimeTypes[i], data))
	}
	return parts, nil
}

// GenerationConfig carries the per-call knobs the orchestrator has already
// resolved: final tier and concrete pixel dimensions.
type GenerationConfig struct {
	Tier        models.ModelTier
	Width       int
	Height      int
	AspectRatio string
}

type Response struct {
	Parts []Part
}

// Backend generates content from a list of parts. One call may return
// multiple images.
type Backend interface {
	GenerateContent(ctx context.Context, parts []Part, cfg GenerationConfig) (*Response, error)
}

// ExtractImages pulls the inline image payloads out of a response, in order.
func ExtractImages(resp *Response) [][]byte {
	if resp == nil {
		return nil
	}
	var images [][]byte
	for _, part := range resp.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			images = append(images, part.InlineData.Data)
		}
	}
	return images
}
