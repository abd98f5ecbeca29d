package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shelflens/backend/internal/domain"
	"github.com/shelflens/backend/internal/usecase"
)

// Error codes returned in the "code" field of error responses
const (
	CodeInputError    = "INPUT_ERROR"
	CodeRateLimited   = "RATE_LIMITED"
	CodeGatewayError  = "GATEWAY_ERROR"
	CodeParseError    = "PARSE_ERROR"
	CodeFormatError   = "FORMAT_ERROR"
	CodePartialFormat = "PARTIAL_FORMAT"
	CodeInternal      = "INTERNAL"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	analysisService *usecase.ShelfAnalysisService
}

// NewHandler creates a new HTTP handler
func NewHandler(analysisService *usecase.ShelfAnalysisService) *Handler {
	return &Handler{
		analysisService: analysisService,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "shelflens-backend",
		"version": "1.0.0",
	})
}

// AnalyzeImage handles a single shelf photo uploaded in the "image" field
func (h *Handler) AnalyzeImage(c *gin.Context) {
	if h.analysisService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Shelf analysis service not configured",
			"code":  CodeInternal,
		})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		h.respondError(c, uploadError(err))
		return
	}

	images, err := readUploads([]*multipart.FileHeader{file})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.analyze(c, images)
}

// AnalyzeImages handles several photos of the same shelf uploaded in the "images" field
func (h *Handler) AnalyzeImages(c *gin.Context) {
	if h.analysisService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Shelf analysis service not configured",
			"code":  CodeInternal,
		})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		h.respondError(c, uploadError(err))
		return
	}

	images, err := readUploads(form.File["images"])
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.analyze(c, images)
}

func (h *Handler) analyze(c *gin.Context, images []domain.ImageInput) {
	result, err := h.analysisService.Analyze(c.Request.Context(), images)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("X-Model", result.Model)
	c.JSON(http.StatusOK, result.Products)
}

// readUploads loads every uploaded file into memory, keeping upload order
func readUploads(files []*multipart.FileHeader) ([]domain.ImageInput, error) {
	images := make([]domain.ImageInput, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", domain.ErrInvalidRequest, fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", domain.ErrInvalidRequest, fh.Filename, err)
		}

		images = append(images, domain.ImageInput{
			Filename:  fh.Filename,
			MediaType: fh.Header.Get("Content-Type"),
			Data:      data,
		})
	}
	return images, nil
}

// uploadError maps a multipart parsing failure to a domain error
func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrInvalidRequest, tooLarge.Limit)
	}
	// Missing field or a body that is not multipart at all
	return domain.ErrNoImageData
}

// respondError writes the JSON error body for err
func (h *Handler) respondError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", usecase.RequestIDFrom(c.Request.Context())).Msg("shelf analysis failed")
	}
	c.JSON(status, body)
}

// errorResponse maps an error to its HTTP status and JSON body
func errorResponse(err error) (int, gin.H) {
	var normErr *domain.NormalizationError
	var partialErr *domain.PartialFormatError

	switch {
	case errors.Is(err, domain.ErrNoImageData):
		return http.StatusBadRequest, gin.H{"error": domain.ErrNoImageData.Error(), "code": CodeInputError}
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": CodeInputError}
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, gin.H{"error": domain.ErrRateLimited.Error(), "code": CodeRateLimited}
	case errors.Is(err, domain.ErrGatewayFailure):
		return http.StatusBadGateway, gin.H{"error": err.Error(), "code": CodeGatewayError}
	case errors.As(err, &normErr) && errors.Is(normErr.Kind, domain.ErrInvalidJSON):
		return http.StatusBadGateway, gin.H{"error": domain.ErrInvalidJSON.Error(), "code": CodeParseError, "raw": normErr.Raw}
	case errors.As(err, &normErr):
		return http.StatusBadGateway, gin.H{"error": domain.ErrUnexpectedFormat.Error(), "code": CodeFormatError, "parsed": normErr.Parsed}
	case errors.As(err, &partialErr):
		return http.StatusBadGateway, gin.H{
			"error":    domain.ErrPartialFormat.Error(),
			"code":     CodePartialFormat,
			"products": partialErr.Valid,
			"rejected": partialErr.Invalid,
		}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal server error", "code": CodeInternal}
	}
}
