package domain

import (
	"context"
	"strings"
)

// ImageInput is one uploaded or picked image, held fully in memory
type ImageInput struct {
	Filename  string
	MediaType string
	Data      []byte
}

// EncodedImage is an image ready to be embedded in a model request
type EncodedImage struct {
	MediaType string
	Data      []byte
	DataURI   string // data:<media-type>;base64,<payload>
}

// InferenceRequest is the instruction plus images, in upload order
type InferenceRequest struct {
	Instruction string
	Images      []EncodedImage
}

// ModelResponse is the raw answer of a vision model.
// ExtractText prefers the convenience text field, then the raw output
// segments, and returns "" when neither is present.
type ModelResponse interface {
	ExtractText() string
}

// StructuredResponse is implemented by responses that already hold decoded JSON.
// The bool is false when no decoded value is available.
type StructuredResponse interface {
	Structured() (any, bool)
}

// TextResponse is a ModelResponse backed by plain text
type TextResponse string

func (t TextResponse) ExtractText() string {
	return strings.TrimSpace(string(t))
}

// InferenceGateway defines the interface for the external vision model service
type InferenceGateway interface {
	Infer(ctx context.Context, req *InferenceRequest) (ModelResponse, error)
	ModelName() string
}
