package resolution

import (
	"fmt"

	"github.com/nanobanana/imagemcp/pkg/models"
)

// ParseSpec converts loosely-typed tool input (decoded JSON) into the strict
// ResolutionSpec union. This is the only place raw resolution shapes are
// inspected; everything past this boundary works with the tagged union.
//
// Accepted shapes:
//   - string: preset name or "WxH"
//   - object: {"width": W, "height": H} or
//     {"aspect_ratio": "16:9"|1.78, "target_size": <spec>|"max_dimension": N}
//   - two-element array: [W, H]
//   - nil: resolve the configured default
func ParseSpec(raw any) (*models.ResolutionSpec, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return models.PresetSpec(v), nil
	case map[string]any:
		return parseObjectSpec(v)
	case []any:
		return parseListSpec(v)
	}
	return nil, fmt.Errorf("%w: unsupported resolution type %T", models.ErrInvalidResolution, raw)
}

func parseObjectSpec(obj map[string]any) (*models.ResolutionSpec, error) {
	_, hasWidth := obj["width"]
	_, hasHeight := obj["height"]
	if hasWidth && hasHeight {
		width, err := toInt(obj["width"])
		if err != nil {
			return nil, fmt.Errorf("%w: width must be an integer", models.ErrInvalidResolution)
		}
		height, err := toInt(obj["height"])
		if err != nil {
			return nil, fmt.Errorf("%w: height must be an integer", models.ErrInvalidResolution)
		}
		return models.ExplicitSpec(width, height), nil
	}

	rawRatio, hasRatio := obj["aspect_ratio"]
	if !hasRatio {
		return nil, fmt.Errorf("%w: object must have width/height or aspect_ratio",
			models.ErrInvalidResolution)
	}

	ratio, err := toRatioString(rawRatio)
	if err != nil {
		return nil, err
	}

	if rawTarget, ok := obj["target_size"]; ok {
		target, err := ParseSpec(rawTarget)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, fmt.Errorf("%w: target_size cannot be null", models.ErrInvalidResolution)
		}
		return models.AspectSpec(ratio, target), nil
	}

	if rawMax, ok := obj["max_dimension"]; ok {
		maxDim, err := toInt(rawMax)
		if err != nil || maxDim <= 0 {
			return nil, fmt.Errorf("%w: max_dimension must be a positive integer",
				models.ErrInvalidResolution)
		}
		return models.AspectMaxSpec(ratio, maxDim), nil
	}

	return nil, fmt.Errorf("%w: aspect_ratio requires target_size or max_dimension",
		models.ErrInvalidResolution)
}

func parseListSpec(list []any) (*models.ResolutionSpec, error) {
	if len(list) != 2 {
		return nil, fmt.Errorf("%w: list resolution must have exactly 2 elements, got %d",
			models.ErrInvalidResolution, len(list))
	}
	width, err := toInt(list[0])
	if err != nil {
		return nil, fmt.Errorf("%w: list elements must be integers", models.ErrInvalidResolution)
	}
	height, err := toInt(list[1])
	if err != nil {
		return nil, fmt.Errorf("%w: list elements must be integers", models.ErrInvalidResolution)
	}
	return models.ExplicitSpec(width, height), nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("not an integer: %T", v)
}

func toRatioString(v any) (string, error) {
	switch r := v.(type) {
	case string:
		return r, nil
	case float64:
		return fmt.Sprintf("%g", r), nil
	case int:
		return fmt.Sprintf("%d", r), nil
	}
	return "", fmt.Errorf("%w: invalid aspect ratio %v", models.ErrInvalidResolution, v)
}
