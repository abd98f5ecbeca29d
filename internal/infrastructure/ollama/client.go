package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog/log"

	"github.com/shelflens/backend/internal/domain"
)

// Client wraps the Ollama API client for local vision models
type Client struct {
	client     *api.Client
	model      string
	strictJSON bool
	timeout    time.Duration
}

// Verify at compile time that Client implements domain.InferenceGateway
var _ domain.InferenceGateway = (*Client)(nil)

// reply is the assistant message of a chat turn
type reply struct {
	content string
}

func (r reply) ExtractText() string {
	return strings.TrimSpace(r.content)
}

// NewClient creates a new Ollama client against ollamaURL
func NewClient(ollamaURL, model string, strictJSON bool, timeout time.Duration) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q needs scheme and host", ollamaURL)
	}

	// Drop any path such as /api/chat; the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		client:     api.NewClient(baseURL, &http.Client{Timeout: timeout}),
		model:      model,
		strictJSON: strictJSON,
		timeout:    timeout,
	}, nil
}

// ModelName returns the configured model
func (c *Client) ModelName() string {
	return c.model
}

// Infer sends the instruction and raw image bytes as a single non-streaming chat turn
func (c *Client) Infer(ctx context.Context, req *domain.InferenceRequest) (domain.ModelResponse, error) {
	if req == nil || len(req.Images) == 0 {
		return nil, domain.ErrNoImageData
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	images := make([]api.ImageData, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, api.ImageData(img.Data))
	}

	streamFalse := false
	chatReq := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: req.Instruction,
				Images:  images,
			},
		},
		Stream: &streamFalse,
		Options: map[string]any{
			"temperature": 0,
		},
	}
	if c.strictJSON {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	var content strings.Builder
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama chat: %v", domain.ErrGatewayFailure, err)
	}

	log.Debug().
		Str("model", c.model).
		Int("images", len(images)).
		Int("chars", content.Len()).
		Msg("[ollama] chat complete")

	return reply{content: content.String()}, nil
}
