package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/shelflens/backend/internal/domain"
)

// API call patterns
const (
	ModeResponses = "responses"
	ModeChat      = "chat"
)

// chatLeadIn precedes the images in the user turn of a chat completion
const chatLeadIn = "Analyze this shelf image for product visibility:"

// maxErrorBody caps how much of a failed response body is read
const maxErrorBody = 64 * 1024

// Config holds the settings of an OpenAI-compatible client
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Mode              string
	StrictJSON        bool
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerMinute int
}

// Client handles communication with an OpenAI-compatible vision API
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	mode        string
	strictJSON  bool
	maxTokens   int
	rateLimiter *rate.Limiter
	debug       bool
}

// Verify at compile time that Client implements domain.InferenceGateway
var _ domain.InferenceGateway = (*Client)(nil)

// NewClient creates a new OpenAI-compatible API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	mode := cfg.Mode
	if mode == "" {
		mode = ModeResponses
	}

	// rate.Limit is requests per second; allow a small burst of concurrent uploads
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	limiter := rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 5)

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		model:       cfg.Model,
		mode:        mode,
		strictJSON:  cfg.StrictJSON,
		maxTokens:   cfg.MaxTokens,
		rateLimiter: limiter,
	}
}

// SetDebug enables logging of raw model output
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// ModelName returns the configured model
func (c *Client) ModelName() string {
	return c.model
}

// Infer sends the instruction and images in a single request. Failures are
// wrapped in domain.ErrGatewayFailure; nothing is retried.
func (c *Client) Infer(ctx context.Context, req *domain.InferenceRequest) (domain.ModelResponse, error) {
	if req == nil || len(req.Images) == 0 {
		return nil, domain.ErrNoImageData
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrGatewayFailure, err)
	}

	var (
		endpoint string
		payload  any
	)
	switch c.mode {
	case ModeChat:
		endpoint = "/chat/completions"
		payload = buildChatRequest(c.model, c.maxTokens, c.strictJSON, req)
	default:
		endpoint = "/responses"
		payload = buildResponsesRequest(c.model, c.maxTokens, c.strictJSON, req)
	}

	body, err := c.post(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}

	var resp domain.ModelResponse
	switch c.mode {
	case ModeChat:
		resp, err = decodeChatResponse(body)
	default:
		resp, err = decodeResponsesResponse(body)
	}
	if err != nil {
		return nil, err
	}

	if c.debug {
		log.Debug().Str("model", c.model).Str("raw", resp.ExtractText()).Msg("[openai] model output")
	}
	return resp, nil
}

// post executes a JSON POST request with auth headers and error handling
func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "ShelfLens/1.0")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn().
			Int("status", resp.StatusCode).
			Str("endpoint", endpoint).
			Msg("[openai] API error")
		return nil, fmt.Errorf("%w: %s", domain.ErrGatewayFailure, describeAPIError(resp.StatusCode, body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", domain.ErrGatewayFailure, err)
	}

	log.Debug().
		Str("endpoint", endpoint).
		Dur("elapsed", time.Since(started)).
		Int("bytes", len(body)).
		Msg("[openai] request complete")
	return body, nil
}

// describeAPIError prefers the API's own error message over the raw body
func describeAPIError(status int, body []byte) string {
	var apiErr errorEnvelope
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != nil && apiErr.Error.Message != "" {
		if apiErr.Error.Type != "" {
			return fmt.Sprintf("status %d (%s): %s", status, apiErr.Error.Type, apiErr.Error.Message)
		}
		return fmt.Sprintf("status %d: %s", status, apiErr.Error.Message)
	}
	return fmt.Sprintf("status %d: %s", status, strings.TrimSpace(string(body)))
}
