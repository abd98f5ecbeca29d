package openai

import (
	stdjson "encoding/json"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/shelflens/backend/internal/domain"
)

// --- Responses API wire types ---

type responsesRequest struct {
	Model           string           `json:"model"`
	Input           []responsesInput `json:"input"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
	Text            *responsesText   `json:"text,omitempty"`
}

type responsesInput struct {
	Role    string             `json:"role"`
	Content []responsesContent `json:"content"`
}

type responsesContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesText struct {
	Format responseFormat `json:"format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// responsesResponse is the subset of a Responses API reply we read.
// output_text and output_parsed are convenience fields some servers add.
type responsesResponse struct {
	OutputText   *string         `json:"output_text"`
	OutputParsed json.RawMessage `json:"output_parsed"`
	Output       []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// ExtractText prefers output_text, then the output_text segments of output, then ""
func (r *responsesResponse) ExtractText() string {
	if r.OutputText != nil && strings.TrimSpace(*r.OutputText) != "" {
		return strings.TrimSpace(*r.OutputText)
	}

	var sb strings.Builder
	for _, item := range r.Output {
		for _, part := range item.Content {
			if part.Type == "output_text" {
				sb.WriteString(part.Text)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// Structured returns output_parsed when the server supplied one
func (r *responsesResponse) Structured() (any, bool) {
	if len(r.OutputParsed) == 0 || string(r.OutputParsed) == "null" {
		return nil, false
	}
	// Invalid JSON falls back to the text path
	if !stdjson.Valid(r.OutputParsed) {
		return nil, false
	}
	var value any
	if err := json.Unmarshal(r.OutputParsed, &value); err != nil {
		return nil, false
	}
	return value, true
}

// --- Chat Completions wire types ---

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []chatContentPart
}

type chatContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chatText is the assistant message of the first choice
type chatText struct {
	content string
}

func (c chatText) ExtractText() string {
	return strings.TrimSpace(c.content)
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// buildResponsesRequest maps an inference request onto the Responses API:
// one user turn holding the instruction followed by every image
func buildResponsesRequest(model string, maxTokens int, strictJSON bool, req *domain.InferenceRequest) *responsesRequest {
	content := make([]responsesContent, 0, len(req.Images)+1)
	content = append(content, responsesContent{Type: "input_text", Text: req.Instruction})
	for _, img := range req.Images {
		content = append(content, responsesContent{Type: "input_image", ImageURL: img.DataURI})
	}

	out := &responsesRequest{
		Model:           model,
		Input:           []responsesInput{{Role: "user", Content: content}},
		MaxOutputTokens: maxTokens,
	}
	if strictJSON {
		out.Text = &responsesText{Format: responseFormat{Type: "json_object"}}
	}
	return out
}

// buildChatRequest maps an inference request onto Chat Completions:
// the instruction as system prompt, the images in the user turn
func buildChatRequest(model string, maxTokens int, strictJSON bool, req *domain.InferenceRequest) *chatRequest {
	parts := make([]chatContentPart, 0, len(req.Images)+1)
	parts = append(parts, chatContentPart{Type: "text", Text: chatLeadIn})
	for _, img := range req.Images {
		parts = append(parts, chatContentPart{Type: "image_url", ImageURL: &imageURL{URL: img.DataURI}})
	}

	out := &chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.Instruction},
			{Role: "user", Content: parts},
		},
		MaxTokens:   maxTokens,
		Temperature: 0,
	}
	if strictJSON {
		out.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return out
}

// decodeResponsesResponse converts a Responses API body to a domain.ModelResponse
func decodeResponsesResponse(body []byte) (domain.ModelResponse, error) {
	var resp responsesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", domain.ErrGatewayFailure, err)
	}
	return &resp, nil
}

// decodeChatResponse converts a Chat Completions body to a domain.ModelResponse.
// A reply without choices or content yields empty text.
func decodeChatResponse(body []byte) (domain.ModelResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", domain.ErrGatewayFailure, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return chatText{}, nil
	}
	return chatText{content: *resp.Choices[0].Message.Content}, nil
}
