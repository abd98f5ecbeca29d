package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shelflens/backend/internal/domain"
)

type requestIDKey struct{}

// WithRequestID attaches a request id to ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored in ctx, or ""
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ShelfAnalysisServiceConfig holds configuration for the shelf analysis service
type ShelfAnalysisServiceConfig struct {
	// StrictRecords rejects list elements that are not valid ProductVisibility records
	StrictRecords bool
}

// ShelfAnalysisService runs the encode -> infer -> normalize pipeline shared
// by the HTTP and console adapters
type ShelfAnalysisService struct {
	gateway       domain.InferenceGateway
	encoder       *RequestEncoder
	normalizer    *ResponseNormalizer
	strictRecords bool
}

// NewShelfAnalysisService creates a new shelf analysis service with dependencies
func NewShelfAnalysisService(
	gateway domain.InferenceGateway,
	config ShelfAnalysisServiceConfig,
) *ShelfAnalysisService {
	return &ShelfAnalysisService{
		gateway:       gateway,
		encoder:       NewRequestEncoder(),
		normalizer:    NewResponseNormalizer(),
		strictRecords: config.StrictRecords,
	}
}

// Analyze estimates product visibility for one or more photos of a shelf.
// Empty uploads fail with domain.ErrNoImageData before the gateway is called.
func (s *ShelfAnalysisService) Analyze(ctx context.Context, images []domain.ImageInput) (*domain.ShelfAnalysis, error) {
	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = WithRequestID(ctx, requestID)
	}
	logger := log.With().Str("request_id", requestID).Logger()

	request, err := s.encoder.Encode(images)
	if err != nil {
		logger.Warn().Int("uploaded", len(images)).Msg("rejected analysis without image data")
		return nil, err
	}

	started := time.Now()
	logger.Info().
		Int("images", len(request.Images)).
		Str("model", s.gateway.ModelName()).
		Msg("sending shelf images to inference gateway")

	resp, err := s.gateway.Infer(ctx, request)
	if err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("inference gateway failed")
		if errors.Is(err, domain.ErrGatewayFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayFailure, err)
	}

	items, err := s.normalizer.Normalize(resp)
	if err != nil {
		logger.Error().Err(err).Msg("model response could not be normalized")
		return nil, err
	}

	if s.strictRecords {
		records, err := ValidateRecords(items)
		if err != nil {
			logger.Warn().Err(err).Msg("model returned malformed product records")
			return nil, err
		}
		items = recordsToItems(records)
	}

	logger.Info().
		Int("products", len(items)).
		Dur("elapsed", time.Since(started)).
		Msg("shelf analysis complete")

	return &domain.ShelfAnalysis{
		RequestID:  requestID,
		Model:      s.gateway.ModelName(),
		ImageCount: len(request.Images),
		Products:   items,
	}, nil
}

func recordsToItems(records []domain.ProductVisibility) []any {
	items := make([]any, len(records))
	for i, r := range records {
		items[i] = r
	}
	return items
}
