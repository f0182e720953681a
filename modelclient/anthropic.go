package modelclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicEndpoint adapts the official Anthropic SDK to
// ModelEndpoint. Grounded on lonestarx1-gogrid's pkg/llm/anthropic
// Provider: a thin translation layer over anthropic.Client, with no
// streaming or tool-calling support since neither is in scope here.
type AnthropicEndpoint struct {
	client anthropic.Client
}

// AnthropicOption configures NewAnthropicEndpoint.
type AnthropicOption func(*anthropicConfig)

type anthropicConfig struct {
	baseURL    string
	httpClient *http.Client
}

// WithAnthropicBaseURL overrides the default API base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(c *anthropicConfig) { c.baseURL = url }
}

// WithAnthropicHTTPClient overrides the default HTTP client.
func WithAnthropicHTTPClient(httpClient *http.Client) AnthropicOption {
	return func(c *anthropicConfig) { c.httpClient = httpClient }
}

// NewAnthropicEndpoint constructs a ModelEndpoint backed by the
// Anthropic Messages API.
func NewAnthropicEndpoint(apiKey string, opts ...AnthropicOption) *AnthropicEndpoint {
	cfg := &anthropicConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &AnthropicEndpoint{client: anthropic.NewClient(clientOpts...)}
}

// Chat sends a single-shot message request.
func (a *AnthropicEndpoint) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 800
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("anthropic: messages: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	return ChatResponse{
		Text:         text,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// Embed is not offered by the Anthropic Messages API; callers needing
// embeddings should point modelclient.Client at a different
// ModelEndpoint for the embed half of its traffic.
func (a *AnthropicEndpoint) Embed(ctx context.Context, model, text string) (EmbedResponse, error) {
	return EmbedResponse{}, fmt.Errorf("anthropic: embeddings not supported by the Messages API")
}
