package openai

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/dishrec/internal/domain"
	"github.com/kailas-cloud/dishrec/internal/metrics"
)

// ChatConfig holds the chat completion settings used for recipe synthesis.
type ChatConfig struct {
	Config
	Temperature float32
	MaxTokens   int
}

// ChatCompleter sends a single user prompt and returns the first choice.
type ChatCompleter struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewChatCompleter creates a chat client.
func NewChatCompleter(cfg *ChatConfig) *ChatCompleter {
	temp := cfg.Temperature
	if temp == 0 {
		// go-openai omits a zero temperature, which the API reads as 1.
		temp = math.SmallestNonzeroFloat32
	}
	return &ChatCompleter{
		client:      newClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		temperature: temp,
		maxTokens:   cfg.MaxTokens,
	}
}

// Complete returns the model's answer to prompt. Errors wrap domain.ErrSynthesis.
func (c *ChatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	metrics.SynthesisRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.SynthesisRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", parseAPIError("chat", err, domain.ErrSynthesis)
	}
	if len(resp.Choices) == 0 {
		metrics.SynthesisRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", fmt.Errorf("no completion choices returned: %w", domain.ErrSynthesis)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		metrics.SynthesisRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", fmt.Errorf("empty completion: %w", domain.ErrSynthesis)
	}
	metrics.SynthesisRequestsTotal.WithLabelValues(c.model, "success").Inc()
	return content, nil
}
