package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoImageData is returned when no upload carries any image bytes
	ErrNoImageData = errors.New("no image data received")

	// ErrGatewayFailure is returned when the call to the vision model fails
	ErrGatewayFailure = errors.New("inference gateway request failed")

	// ErrInvalidJSON is returned when the model output is not valid JSON after fence stripping
	ErrInvalidJSON = errors.New("invalid JSON from model")

	// ErrUnexpectedFormat is returned when the parsed model output holds no product list
	ErrUnexpectedFormat = errors.New("unexpected format from model")

	// ErrPartialFormat is returned when strict validation rejects some product records
	ErrPartialFormat = errors.New("model returned malformed product records")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")
)

// NormalizationError carries the model output that could not be turned into a product list.
// Kind is ErrInvalidJSON (Raw is set) or ErrUnexpectedFormat (Parsed is set).
type NormalizationError struct {
	Kind   error
	Raw    string
	Parsed any
}

func (e *NormalizationError) Error() string {
	if errors.Is(e.Kind, ErrInvalidJSON) {
		return fmt.Sprintf("%v:\n%s", e.Kind, e.Raw)
	}
	return fmt.Sprintf("%v:\n%v", e.Kind, e.Parsed)
}

func (e *NormalizationError) Unwrap() error {
	return e.Kind
}

// PartialFormatError splits a model product list into records that passed
// strict validation and the raw elements that did not.
type PartialFormatError struct {
	Valid   []ProductVisibility
	Invalid []any
}

func (e *PartialFormatError) Error() string {
	return fmt.Sprintf("%v: %d valid, %d rejected", ErrPartialFormat, len(e.Valid), len(e.Invalid))
}

func (e *PartialFormatError) Unwrap() error {
	return ErrPartialFormat
}
