package resolution

import (
	"regexp"
	"slices"
	"strings"

	"github.com/nanobanana/imagemcp/pkg/models"
)

var hintKeywords = []string{
	"4k", "uhd", "ultra hd", "ultra high definition",
	"2k", "qhd", "quad hd",
	"1080p", "full hd", "fhd",
	"720p", "hd",
	"high resolution", "high res", "hi-res",
	"low resolution", "low res",
	"professional", "production quality",
	"detailed", "ultra detailed",
	"crisp", "sharp", "pristine",
}

var dimensionPattern = regexp.MustCompile(`\b\d{3,4}\s*x\s*\d{3,4}\b`)

// ExtractHints returns the resolution-related keywords present in a prompt.
// An explicit "WxH" pattern is reported as "custom_resolution".
func ExtractHints(prompt string) []string {
	var hints []string
	lower := strings.ToLower(prompt)

	for _, keyword := range hintKeywords {
		if strings.Contains(lower, keyword) {
			hints = append(hints, keyword)
		}
	}

	if dimensionPattern.MatchString(lower) {
		hints = append(hints, "custom_resolution")
	}

	return hints
}

var qualityIndicators = []string{
	"professional", "production quality", "high resolution",
	"detailed", "ultra detailed", "crisp", "sharp",
}

// Recommend suggests a preset name based on prompt hints and the dimensions
// of any conditioning input images. Quality-tier callers get larger defaults.
func Recommend(prompt string, tier models.ModelTier, inputDims [][2]int) string {
	hints := ExtractHints(prompt)

	contains := func(names ...string) bool {
		for _, n := range names {
			if slices.Contains(hints, n) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("4k", "uhd", "ultra hd"):
		if tier == models.TierQuality {
			return "4k"
		}
		return "2k"
	case contains("2k", "qhd"):
		return "2k"
	case contains("1080p", "full hd", "fhd"):
		return "1080p"
	case contains("720p", "hd"):
		return "720p"
	}

	if contains(qualityIndicators...) {
		return "high"
	}
	if contains("low resolution", "low res") {
		return "low"
	}

	if len(inputDims) > 0 {
		maxDim := 0
		for _, d := range inputDims {
			maxDim = max(maxDim, d[0], d[1])
		}
		switch {
		case maxDim >= 3000:
			if tier == models.TierQuality {
				return "4k"
			}
			return "2k"
		case maxDim >= 2000:
			return "2k"
		case maxDim >= 1500:
			return "1080p"
		}
	}

	if tier == models.TierQuality {
		return "2k"
	}
	return "1024"
}
