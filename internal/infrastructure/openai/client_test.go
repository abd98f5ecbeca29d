package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelflens/backend/internal/domain"
)

func testRequest(images ...string) *domain.InferenceRequest {
	req := &domain.InferenceRequest{Instruction: "find products"}
	for _, img := range images {
		req.Images = append(req.Images, domain.EncodedImage{
			MediaType: "image/png",
			Data:      []byte(img),
			DataURI:   "data:image/png;base64," + img,
		})
	}
	return req
}

func newTestClient(serverURL, mode string, strictJSON bool) *Client {
	return NewClient(Config{
		APIKey:            "test-api-key",
		BaseURL:           serverURL,
		Model:             "gpt-4o-mini",
		Mode:              mode,
		StrictJSON:        strictJSON,
		MaxTokens:         500,
		Timeout:           5 * time.Second,
		RequestsPerMinute: 6000,
	})
}

func TestNewClient(t *testing.T) {
	client := NewClient(Config{APIKey: "test-api-key", BaseURL: "https://api.example.com/v1/", Model: "gpt-4o"})

	assert.NotNil(t, client)
	assert.Equal(t, "test-api-key", client.apiKey)
	assert.Equal(t, "https://api.example.com/v1", client.baseURL)
	assert.Equal(t, ModeResponses, client.mode)
	assert.Equal(t, 60*time.Second, client.httpClient.Timeout)
	assert.NotNil(t, client.rateLimiter)
	assert.Equal(t, "gpt-4o", client.ModelName())
	assert.False(t, client.debug)
}

func TestSetDebug(t *testing.T) {
	client := NewClient(Config{APIKey: "test-api-key"})

	client.SetDebug(true)
	assert.True(t, client.debug)

	client.SetDebug(false)
	assert.False(t, client.debug)
}

func TestInfer_ResponsesMode(t *testing.T) {
	var captured responsesRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"output_text":"[{\"product\":\"KitKat\",\"visibility\":60}]","output":[]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, ModeResponses, false)

	resp, err := client.Infer(context.Background(), testRequest("AAA", "BBB"))

	require.NoError(t, err)
	assert.Equal(t, `[{"product":"KitKat","visibility":60}]`, resp.ExtractText())

	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.Equal(t, 500, captured.MaxOutputTokens)
	assert.Nil(t, captured.Text)
	require.Len(t, captured.Input, 1)
	assert.Equal(t, "user", captured.Input[0].Role)
	require.Len(t, captured.Input[0].Content, 3)
	assert.Equal(t, responsesContent{Type: "input_text", Text: "find products"}, captured.Input[0].Content[0])
	assert.Equal(t, responsesContent{Type: "input_image", ImageURL: "data:image/png;base64,AAA"}, captured.Input[0].Content[1])
	assert.Equal(t, responsesContent{Type: "input_image", ImageURL: "data:image/png;base64,BBB"}, captured.Input[0].Content[2])
}

func TestInfer_ResponsesStrictJSON(t *testing.T) {
	var captured responsesRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		io.WriteString(w, `{"output":[]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, ModeResponses, true)

	resp, err := client.Infer(context.Background(), testRequest("AAA"))

	require.NoError(t, err)
	assert.Equal(t, "", resp.ExtractText())
	require.NotNil(t, captured.Text)
	assert.Equal(t, "json_object", captured.Text.Format.Type)
}

func TestResponsesResponse_ExtractText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "prefers output_text",
			body: `{"output_text":" [1] ","output":[{"type":"message","content":[{"type":"output_text","text":"[2]"}]}]}`,
			want: "[1]",
		},
		{
			name: "falls back to output segments",
			body: `{"output":[{"type":"message","content":[{"type":"output_text","text":"[{\"product\":"},{"type":"refusal","text":"x"},{"type":"output_text","text":"\"Oreo\",\"visibility\":90}]"}]}]}`,
			want: `[{"product":"Oreo","visibility":90}]`,
		},
		{
			name: "blank output_text falls back",
			body: `{"output_text":"  ","output":[{"type":"message","content":[{"type":"output_text","text":"[]"}]}]}`,
			want: "[]",
		},
		{
			name: "nothing present",
			body: `{}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := decodeResponsesResponse([]byte(tt.body))

			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.ExtractText())
		})
	}
}

func TestResponsesResponse_Structured(t *testing.T) {
	t.Run("output_parsed is exposed", func(t *testing.T) {
		resp, err := decodeResponsesResponse([]byte(`{"output_parsed":{"products":[{"product":"Mars","visibility":40}]}}`))
		require.NoError(t, err)

		sr, ok := resp.(domain.StructuredResponse)
		require.True(t, ok)
		value, ok := sr.Structured()
		require.True(t, ok)
		assert.Equal(t, map[string]any{
			"products": []any{map[string]any{"product": "Mars", "visibility": float64(40)}},
		}, value)
	})

	t.Run("invalid output_parsed falls back to text", func(t *testing.T) {
		for _, raw := range []string{`[01]`, `{"products":[{"product":"A","visibility":007}]}`, "[\"a\x01b\"]"} {
			resp := &responsesResponse{OutputParsed: json.RawMessage(raw)}

			_, ok := resp.Structured()
			assert.False(t, ok, raw)
		}
	})

	t.Run("missing or null output_parsed", func(t *testing.T) {
		for _, body := range []string{`{}`, `{"output_parsed":null}`} {
			resp, err := decodeResponsesResponse([]byte(body))
			require.NoError(t, err)

			_, ok := resp.(domain.StructuredResponse).Structured()
			assert.False(t, ok, body)
		}
	})
}

func TestInfer_ChatMode(t *testing.T) {
	var captured map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"products\":[{\"product\":\"Oreo\",\"visibility\":90}]}"}}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, ModeChat, true)

	resp, err := client.Infer(context.Background(), testRequest("AAA"))

	require.NoError(t, err)
	assert.Equal(t, `{"products":[{"product":"Oreo","visibility":90}]}`, resp.ExtractText())

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	assert.Equal(t, float64(0), captured["temperature"])
	assert.Equal(t, float64(500), captured["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, captured["response_format"])

	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, "find products", system["content"])

	user := messages[1].(map[string]any)
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, map[string]any{"type": "text", "text": chatLeadIn}, parts[0])
	assert.Equal(t, map[string]any{
		"type":      "image_url",
		"image_url": map[string]any{"url": "data:image/png;base64,AAA"},
	}, parts[1])
}

func TestDecodeChatResponse_Empty(t *testing.T) {
	for _, body := range []string{`{"choices":[]}`, `{"choices":[{"message":{"content":null}}]}`} {
		resp, err := decodeChatResponse([]byte(body))

		require.NoError(t, err)
		assert.Equal(t, "", resp.ExtractText())
	}
}

func TestInfer_APIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{
			name:    "error envelope",
			status:  http.StatusUnauthorized,
			body:    `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`,
			wantMsg: "status 401 (invalid_request_error): Incorrect API key provided",
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error":{"message":"Rate limit reached"}}`,
			wantMsg: "status 429: Rate limit reached",
		},
		{
			name:    "plain body",
			status:  http.StatusBadGateway,
			body:    "upstream down",
			wantMsg: "status 502: upstream down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts++
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client := newTestClient(server.URL, ModeResponses, false)

			resp, err := client.Infer(context.Background(), testRequest("AAA"))

			assert.Nil(t, resp)
			assert.ErrorIs(t, err, domain.ErrGatewayFailure)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, 1, attempts, "requests are never retried")
		})
	}
}

func TestInfer_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	client := newTestClient(serverURL, ModeResponses, false)

	resp, err := client.Infer(context.Background(), testRequest("AAA"))

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, domain.ErrGatewayFailure)
}

func TestInfer_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>gateway timeout</html>")
	}))
	defer server.Close()

	client := newTestClient(server.URL, ModeChat, false)

	_, err := client.Infer(context.Background(), testRequest("AAA"))

	assert.ErrorIs(t, err, domain.ErrGatewayFailure)
}

func TestInfer_NoImages(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0", ModeResponses, false)

	_, err := client.Infer(context.Background(), testRequest())

	assert.ErrorIs(t, err, domain.ErrNoImageData)
}

func TestInfer_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"output_text":"[]"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, ModeResponses, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Infer(ctx, testRequest("AAA"))

	assert.ErrorIs(t, err, domain.ErrGatewayFailure)
}
