// Package anthropicprovider implements the semantic completer against the
// Anthropic Messages API.
package anthropicprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tinyland-inc/clawgate/pkg/semantic"
)

const defaultBaseURL = "https://api.anthropic.com"

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4.6"

// Completer sends single-turn, tool-free completion requests.
type Completer struct {
	client  *anthropic.Client
	model   string
	baseURL string
}

var _ semantic.Completer = (*Completer)(nil)

// NewCompleter creates a completer. An empty model picks DefaultModel; an
// empty apiBase picks the public endpoint.
func NewCompleter(apiKey, model, apiBase string) *Completer {
	if model == "" {
		model = DefaultModel
	}
	baseURL := normalizeBaseURL(apiBase)
	client := anthropic.NewClient(
		option.WithAuthToken(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &Completer{
		client:  &client,
		model:   model,
		baseURL: baseURL,
	}
}

// NewCompleterWithClient wires an existing SDK client, for tests.
func NewCompleterWithClient(client *anthropic.Client, model string) *Completer {
	if model == "" {
		model = DefaultModel
	}
	return &Completer{client: client, model: model, baseURL: defaultBaseURL}
}

func (c *Completer) Complete(ctx context.Context, req semantic.CompletionRequest) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API call: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}

// BaseURL reports the resolved endpoint.
func (c *Completer) BaseURL() string {
	return c.baseURL
}

func normalizeBaseURL(apiBase string) string {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		return defaultBaseURL
	}

	base = strings.TrimRight(base, "/")
	if b, ok := strings.CutSuffix(base, "/v1"); ok {
		base = b
	}
	if base == "" {
		return defaultBaseURL
	}

	return base
}
