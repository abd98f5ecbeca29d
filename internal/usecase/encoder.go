package usecase

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/shelflens/backend/internal/domain"
)

// SingleImageInstruction asks the model to score one shelf photo
const SingleImageInstruction = `You are an expert in computer vision and retail analytics.
Given a shelf image, identify each unique product and estimate what
percentage of its front face is visible. Return *only* a JSON array, e.g.:

[
  {"product":"KitKat","visibility":60},
  {"product":"Oreo","visibility":85}
]`

// MultiImageInstruction asks the model to aggregate several photos of one shelf
const MultiImageInstruction = `You are an expert in computer vision and retail analytics.
I'm uploading multiple images of the **same** shelf.
Identify each unique product across all images and estimate
the **maximum** percentage of its front face that is visible
in any image. Return *only* a JSON array, e.g.:

[
  {"product":"KitKat","visibility":80},
  {"product":"Oreo","visibility":90}
]`

// genericMediaType is what clients send when they don't know the type
const genericMediaType = "application/octet-stream"

// RequestEncoder builds model requests from raw image buffers
type RequestEncoder struct{}

// NewRequestEncoder creates a new request encoder
func NewRequestEncoder() *RequestEncoder {
	return &RequestEncoder{}
}

// Encode drops empty buffers and embeds the rest as base64 data URIs, keeping
// upload order. It returns domain.ErrNoImageData when nothing is left.
func (e *RequestEncoder) Encode(images []domain.ImageInput) (*domain.InferenceRequest, error) {
	encoded := make([]domain.EncodedImage, 0, len(images))
	for _, img := range images {
		if len(img.Data) == 0 {
			continue
		}
		mediaType := resolveMediaType(img)
		encoded = append(encoded, domain.EncodedImage{
			MediaType: mediaType,
			Data:      img.Data,
			DataURI:   BuildDataURI(mediaType, img.Data),
		})
	}

	if len(encoded) == 0 {
		return nil, domain.ErrNoImageData
	}

	instruction := SingleImageInstruction
	if len(encoded) > 1 {
		instruction = MultiImageInstruction
	}

	return &domain.InferenceRequest{
		Instruction: instruction,
		Images:      encoded,
	}, nil
}

// BuildDataURI formats bytes as data:<media-type>;base64,<payload>
func BuildDataURI(mediaType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
}

// resolveMediaType keeps the declared type, sniffing the bytes only when none was declared
func resolveMediaType(img domain.ImageInput) string {
	declared := strings.TrimSpace(img.MediaType)
	if declared != "" && !strings.EqualFold(declared, genericMediaType) {
		return declared
	}
	return mimetype.Detect(img.Data).String()
}
