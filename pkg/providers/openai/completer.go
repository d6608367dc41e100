// Package openaiprovider implements the semantic completer against the
// OpenAI Chat Completions API.
package openaiprovider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/tinyland-inc/clawgate/pkg/semantic"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Completer sends single-turn, tool-free completion requests.
type Completer struct {
	client osdk.Client
	model  string
}

var _ semantic.Completer = (*Completer)(nil)

// NewCompleter creates a completer. An empty model picks DefaultModel.
func NewCompleter(apiKey, model, apiBase string) *Completer {
	if model == "" {
		model = DefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(apiBase); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Completer{
		client: osdk.NewClient(opts...),
		model:  model,
	}
}

func (c *Completer) Complete(ctx context.Context, req semantic.CompletionRequest) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, osdk.ChatCompletionNewParams{
		Model: osdk.ChatModel(c.model),
		Messages: []osdk.ChatCompletionMessageParamUnion{
			osdk.UserMessage(req.Prompt),
		},
		MaxTokens:   osdk.Int(int64(req.MaxTokens)),
		Temperature: osdk.Float(req.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
