package models

import (
	"errors"
	"testing"
	"time"
)

func TestOutputFormat_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		format OutputFormat
		want   bool
	}{
		{"valid png", FormatPNG, true},
		{"valid jpeg", FormatJPEG, true},
		{"valid webp", FormatWebP, true},
		{"invalid format", OutputFormat("gif"), false},
		{"empty format", OutputFormat(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.IsValid(); got != tt.want {
				t.Errorf("OutputFormat.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutputFormat_HasAlpha(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   bool
	}{
		{FormatPNG, true},
		{FormatWebP, true},
		{FormatJPEG, false},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.HasAlpha(); got != tt.want {
				t.Errorf("OutputFormat.HasAlpha() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ModelTier
		wantErr bool
	}{
		{"fast", "fast", TierFast, false},
		{"quality", "quality", TierQuality, false},
		{"auto", "auto", TierAuto, false},
		{"empty defaults to auto", "", TierAuto, false},
		{"unknown", "turbo", TierAuto, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTier(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTier(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseTier(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestModelTier_Resolved(t *testing.T) {
	if !TierFast.Resolved() {
		t.Error("TierFast.Resolved() = false, want true")
	}
	if !TierQuality.Resolved() {
		t.Error("TierQuality.Resolved() = false, want true")
	}
	if TierAuto.Resolved() {
		t.Error("TierAuto.Resolved() = true, want false")
	}
}

func TestGenerateRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*GenerateRequest)
		wantErr error
	}{
		{"valid request", func(r *GenerateRequest) {}, nil},
		{"empty prompt", func(r *GenerateRequest) { r.Prompt = "" }, ErrEmptyPrompt},
		{"zero count", func(r *GenerateRequest) { r.Count = 0 }, ErrInvalidCount},
		{"negative count", func(r *GenerateRequest) { r.Count = -1 }, ErrInvalidCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewGenerateRequest("a sunset over mountains")
			tt.modify(req)

			err := req.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEditRequest_Validate(t *testing.T) {
	valid := NewEditRequest(InputImage{Data: []byte{0x89}, MimeType: "image/png"}, "make it blue")
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	noData := NewEditRequest(InputImage{}, "make it blue")
	if err := noData.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Validate() error = %v, want ErrInvalidInput", err)
	}

	noInstruction := NewEditRequest(InputImage{Data: []byte{0x89}}, "")
	if err := noInstruction.Validate(); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("Validate() error = %v, want ErrEmptyPrompt", err)
	}
}

func TestImageRecord_RemoteLive(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name   string
		record ImageRecord
		want   bool
	}{
		{"no remote id", ImageRecord{}, false},
		{"live remote", ImageRecord{RemoteID: "files/abc", ExpiresAt: &future}, true},
		{"expired remote", ImageRecord{RemoteID: "files/abc", ExpiresAt: &past}, false},
		{"remote without expiry", ImageRecord{RemoteID: "files/abc"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.RemoteLive(now); got != tt.want {
				t.Errorf("RemoteLive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerationError_Unwrap(t *testing.T) {
	genErr := &GenerationError{ResponseIndex: 2, Err: ErrBackendFailure}
	if !errors.Is(genErr, ErrBackendFailure) {
		t.Error("errors.Is(genErr, ErrBackendFailure) = false, want true")
	}
	want := "image 2: backend request failed"
	if genErr.Error() != want {
		t.Errorf("Error() = %q, want %q", genErr.Error(), want)
	}
}
