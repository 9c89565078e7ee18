// Package openai talks to OpenAI-compatible APIs: embeddings for dish text and chat
// completions for recipe synthesis.
package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/dishrec/internal/domain"
)

// Config holds the provider connection settings shared by the embedder and the chat client.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Provider string
}

func newClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// parseAPIError turns a go-openai error into a domain error wrapping base.
// 429 responses additionally wrap domain.ErrRateLimited, or domain.ErrEmbeddingQuotaExceeded
// when the provider reports an exhausted quota.
func parseAPIError(kind string, err error, base error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if sentinel := throttleSentinel(apiErr.HTTPStatusCode, apiErr.Type, apiErr.Code); sentinel != nil {
			return fmt.Errorf("%s API error %d: %s: %w: %w", kind, apiErr.HTTPStatusCode, apiErr.Message, sentinel, base)
		}
		return fmt.Errorf("%s API error %d: %s: %w", kind, apiErr.HTTPStatusCode, apiErr.Message, base)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		if sentinel := throttleSentinel(reqErr.HTTPStatusCode, "", nil); sentinel != nil {
			return fmt.Errorf("%s API error %d: %s: %w: %w", kind, reqErr.HTTPStatusCode, detail, sentinel, base)
		}
		return fmt.Errorf("%s API error %d: %s: %w", kind, reqErr.HTTPStatusCode, detail, base)
	}

	return fmt.Errorf("%s request failed: %v: %w", kind, err, base)
}

func throttleSentinel(status int, errType string, code any) error {
	if status != http.StatusTooManyRequests {
		return nil
	}
	if errType == "insufficient_quota" || code == "insufficient_quota" {
		return domain.ErrEmbeddingQuotaExceeded
	}
	return domain.ErrRateLimited
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
