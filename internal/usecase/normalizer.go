package usecase

import (
	stdjson "encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/shelflens/backend/internal/domain"
)

// Package-level compiled regex patterns for fence stripping
var (
	leadingFenceRegex  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	trailingFenceRegex = regexp.MustCompile("\\s*```$")
)

// productsKey is the wrapper key models use when asked for a JSON object
const productsKey = "products"

// ResponseNormalizer turns free-form model output into a product list
type ResponseNormalizer struct{}

// NewResponseNormalizer creates a new response normalizer
func NewResponseNormalizer() *ResponseNormalizer {
	return &ResponseNormalizer{}
}

// Normalize extracts, unfences, parses and unwraps a model response.
// Flow: extract text -> strip fences -> parse JSON -> unwrap "products" -> require list
//
// On failure the error is a *domain.NormalizationError wrapping
// domain.ErrInvalidJSON or domain.ErrUnexpectedFormat. List elements are
// returned as decoded, without any field checks.
func (n *ResponseNormalizer) Normalize(resp domain.ModelResponse) ([]any, error) {
	var parsed any

	structured, ok := decodedValue(resp)
	if ok {
		parsed = structured
	} else {
		raw := ""
		if resp != nil {
			raw = strings.TrimSpace(resp.ExtractText())
		}

		text := StripFences(raw)
		if text == "" {
			return nil, &domain.NormalizationError{Kind: domain.ErrInvalidJSON, Raw: raw}
		}
		// goccy accepts leading zeros, trailing dots and raw control characters
		if !stdjson.Valid([]byte(text)) {
			return nil, &domain.NormalizationError{Kind: domain.ErrInvalidJSON, Raw: raw}
		}
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return nil, &domain.NormalizationError{Kind: domain.ErrInvalidJSON, Raw: raw}
		}
	}

	candidate := parsed
	if wrapper, ok := parsed.(map[string]any); ok {
		if inner, exists := wrapper[productsKey]; exists {
			candidate = inner
		}
	}

	items, ok := candidate.([]any)
	if !ok {
		return nil, &domain.NormalizationError{Kind: domain.ErrUnexpectedFormat, Parsed: parsed}
	}
	if items == nil {
		items = []any{}
	}

	return items, nil
}

// decodedValue returns the pre-parsed value of a structured response, if any
func decodedValue(resp domain.ModelResponse) (any, bool) {
	sr, ok := resp.(domain.StructuredResponse)
	if !ok {
		return nil, false
	}
	return sr.Structured()
}

// StripFences removes one leading ``` / ```json marker and one trailing ``` marker.
// It is a textual strip; text without fences is returned unchanged (trimmed).
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	text = leadingFenceRegex.ReplaceAllString(text, "")
	text = trailingFenceRegex.ReplaceAllString(text, "")
	return text
}

// ValidateRecords checks every element is an object with a non-empty string
// "product" and a numeric "visibility" within [0, 100].
// When any element fails, the error is a *domain.PartialFormatError holding
// both the valid records and the rejected elements.
func ValidateRecords(items []any) ([]domain.ProductVisibility, error) {
	valid := make([]domain.ProductVisibility, 0, len(items))
	var invalid []any

	for _, item := range items {
		record, ok := toProductVisibility(item)
		if !ok {
			invalid = append(invalid, item)
			continue
		}
		valid = append(valid, record)
	}

	if len(invalid) > 0 {
		return valid, &domain.PartialFormatError{Valid: valid, Invalid: invalid}
	}
	return valid, nil
}

// toProductVisibility converts a decoded JSON element into a typed record
func toProductVisibility(item any) (domain.ProductVisibility, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return domain.ProductVisibility{}, false
	}

	product, ok := obj["product"].(string)
	if !ok || strings.TrimSpace(product) == "" {
		return domain.ProductVisibility{}, false
	}

	visibility, ok := obj["visibility"].(float64)
	if !ok || math.IsNaN(visibility) || visibility < 0 || visibility > 100 {
		return domain.ProductVisibility{}, false
	}

	return domain.ProductVisibility{Product: product, Visibility: visibility}, true
}
