package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelflens/backend/internal/domain"
)

// MockInferenceGateway is a mock implementation of domain.InferenceGateway
type MockInferenceGateway struct {
	response    domain.ModelResponse
	err         error
	calls       int
	lastRequest *domain.InferenceRequest
	lastCtx     context.Context
}

func NewMockInferenceGateway(raw string) *MockInferenceGateway {
	return &MockInferenceGateway{response: domain.TextResponse(raw)}
}

func (m *MockInferenceGateway) Infer(ctx context.Context, req *domain.InferenceRequest) (domain.ModelResponse, error) {
	m.calls++
	m.lastRequest = req
	m.lastCtx = ctx
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *MockInferenceGateway) ModelName() string {
	return "mock-vision"
}

func shelfImage(name string) domain.ImageInput {
	return domain.ImageInput{Filename: name, MediaType: "image/jpeg", Data: []byte(name)}
}

func TestShelfAnalysisService_Analyze(t *testing.T) {
	t.Run("returns normalized products", func(t *testing.T) {
		gateway := NewMockInferenceGateway("```json\n[{\"product\":\"KitKat\",\"visibility\":60}]\n```")
		service := NewShelfAnalysisService(gateway, ShelfAnalysisServiceConfig{})

		result, err := service.Analyze(context.Background(), []domain.ImageInput{shelfImage("shelf.jpg")})

		require.NoError(t, err)
		assert.Equal(t, 1, gateway.calls)
		assert.Equal(t, "mock-vision", result.Model)
		assert.Equal(t, 1, result.ImageCount)
		assert.NotEmpty(t, result.RequestID)
		assert.Equal(t, []any{map[string]any{"product": "KitKat", "visibility": float64(60)}}, result.Products)
	})

	t.Run("sends every image in order", func(t *testing.T) {
		gateway := NewMockInferenceGateway(`{"products":[]}`)
		service := NewShelfAnalysisService(gateway, ShelfAnalysisServiceConfig{})

		result, err := service.Analyze(context.Background(), []domain.ImageInput{
			shelfImage("one.jpg"), shelfImage("two.jpg"),
		})

		require.NoError(t, err)
		assert.Empty(t, result.Products)
		assert.Equal(t, 2, result.ImageCount)
		require.Len(t, gateway.lastRequest.Images, 2)
		assert.Equal(t, []byte("one.jpg"), gateway.lastRequest.Images[0].Data)
		assert.Equal(t, []byte("two.jpg"), gateway.lastRequest.Images[1].Data)
		assert.Equal(t, MultiImageInstruction, gateway.lastRequest.Instruction)
	})

	t.Run("keeps caller request id", func(t *testing.T) {
		gateway := NewMockInferenceGateway("[]")
		service := NewShelfAnalysisService(gateway, ShelfAnalysisServiceConfig{})
		ctx := WithRequestID(context.Background(), "req-123")

		result, err := service.Analyze(ctx, []domain.ImageInput{shelfImage("shelf.jpg")})

		require.NoError(t, err)
		assert.Equal(t, "req-123", result.RequestID)
		assert.Equal(t, "req-123", RequestIDFrom(gateway.lastCtx))
	})
}

func TestShelfAnalysisService_NoImages(t *testing.T) {
	tests := []struct {
		name   string
		images []domain.ImageInput
	}{
		{"zero images", nil},
		{"only empty images", []domain.ImageInput{{Filename: "empty.jpg", MediaType: "image/jpeg"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := NewMockInferenceGateway("[]")
			service := NewShelfAnalysisService(gateway, ShelfAnalysisServiceConfig{})

			result, err := service.Analyze(context.Background(), tt.images)

			assert.Nil(t, result)
			assert.ErrorIs(t, err, domain.ErrNoImageData)
			assert.Equal(t, 0, gateway.calls, "gateway must not be called without image data")
		})
	}
}

func TestShelfAnalysisService_GatewayFailure(t *testing.T) {
	t.Run("wraps plain errors", func(t *testing.T) {
		gateway := NewMockInferenceGateway("")
		gateway.err = errors.New("connection refused")
		service := NewShelfAnalysisService(gateway, ShelfAnalysisServiceConfig{})

		result, err := service.Analyze(context.Background(), []domain.ImageInput{shelfImage("shelf.jpg")})

		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrGatewayFailure)
		assert.Contains(t, err.Error(), "connection refused")
		assert.NotErrorIs(t, err, domain.ErrInvalidJSON)
		assert.Equal(t, 1, gateway.calls, "no retries")
	})

	t.Run("keeps already wrapped errors", func(t *testing.T) {
		gateway := NewMockInferenceGateway("")
		gateway.err = fmt.Errorf("%w: status 401: invalid api key", domain.ErrGatewayFailure)
		service := NewShelfAnalysisService(gateway, ShelfAnalysisServiceConfig{})

		_, err := service.Analyze(context.Background(), []domain.ImageInput{shelfImage("shelf.jpg")})

		assert.Equal(t, gateway.err, err)
	})
}

func TestShelfAnalysisService_NormalizationFailures(t *testing.T) {
	t.Run("empty model output is a parse error", func(t *testing.T) {
		service := NewShelfAnalysisService(NewMockInferenceGateway(""), ShelfAnalysisServiceConfig{})

		_, err := service.Analyze(context.Background(), []domain.ImageInput{shelfImage("shelf.jpg")})

		assert.ErrorIs(t, err, domain.ErrInvalidJSON)
		assert.NotErrorIs(t, err, domain.ErrGatewayFailure)
	})

	t.Run("non-list output is a format error", func(t *testing.T) {
		service := NewShelfAnalysisService(NewMockInferenceGateway("42"), ShelfAnalysisServiceConfig{})

		_, err := service.Analyze(context.Background(), []domain.ImageInput{shelfImage("shelf.jpg")})

		assert.ErrorIs(t, err, domain.ErrUnexpectedFormat)
	})
}

func TestShelfAnalysisService_StrictRecords(t *testing.T) {
	t.Run("valid records become typed", func(t *testing.T) {
		gateway := NewMockInferenceGateway(`[{"product":"Oreo","visibility":90}]`)
		service := NewShelfAnalysisService(gateway, ShelfAnalysisServiceConfig{StrictRecords: true})

		result, err := service.Analyze(context.Background(), []domain.ImageInput{shelfImage("shelf.jpg")})

		require.NoError(t, err)
		assert.Equal(t, []any{domain.ProductVisibility{Product: "Oreo", Visibility: 90}}, result.Products)
	})

	t.Run("malformed records are rejected", func(t *testing.T) {
		gateway := NewMockInferenceGateway(`[{"product":"Oreo","visibility":90},{"product":"Mars","visibility":250}]`)
		service := NewShelfAnalysisService(gateway, ShelfAnalysisServiceConfig{StrictRecords: true})

		result, err := service.Analyze(context.Background(), []domain.ImageInput{shelfImage("shelf.jpg")})

		assert.Nil(t, result)
		var partial *domain.PartialFormatError
		require.ErrorAs(t, err, &partial)
		assert.Len(t, partial.Valid, 1)
		assert.Len(t, partial.Invalid, 1)
	})

	t.Run("lenient mode passes malformed records through", func(t *testing.T) {
		gateway := NewMockInferenceGateway(`[{"product":"Mars","visibility":250}]`)
		service := NewShelfAnalysisService(gateway, ShelfAnalysisServiceConfig{})

		result, err := service.Analyze(context.Background(), []domain.ImageInput{shelfImage("shelf.jpg")})

		require.NoError(t, err)
		assert.Len(t, result.Products, 1)
	})
}
