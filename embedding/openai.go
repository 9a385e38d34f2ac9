// Package embedding provides typesensei.Embedder implementations for
// hybrid search: an OpenAI-compatible provider and a caching decorator.
package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/typesensei"
)

// ErrProvider wraps every failure reported by an embedding provider.
var ErrProvider = errors.New("embedding: provider error")

// Compile-time check: OpenAI implements typesensei.Embedder.
var _ typesensei.Embedder = (*OpenAI)(nil)

// OpenAI is an embedding provider using the OpenAI-compatible API.
type OpenAI struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
	metrics    *Metrics
	logger     *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string // empty uses the OpenAI endpoint
	Model      string
	Dimensions int // 0 keeps the model default
	User       string
	Provider   string // metrics label, default "openai"
	Metrics    *Metrics
	Logger     *zap.Logger
}

// NewOpenAI creates an OpenAI-compatible embedding provider.
func NewOpenAI(cfg Config) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAI{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   provider,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
}

// Model returns the embedding model name.
func (e *OpenAI) Model() string { return string(e.model) }

// Embed returns the vector of text and the tokens it consumed.
func (e *OpenAI) Embed(ctx context.Context, text string) (typesensei.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	model := string(e.model)
	if err != nil {
		e.metrics.failure(e.provider, model, "api_error")
		e.logger.Warn("Embedding request failed",
			zap.String("provider", e.provider), zap.String("model", model), zap.Error(err))
		return typesensei.EmbeddingResult{}, parseAPIError(err)
	}
	if len(resp.Data) == 0 {
		e.metrics.failure(e.provider, model, "empty_response")
		return typesensei.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", ErrProvider)
	}

	e.metrics.observe(e.provider, model, duration.Seconds(), resp.Usage.PromptTokens, resp.Usage.TotalTokens)
	e.logger.Debug("Embedded text",
		zap.String("model", model),
		zap.Int("dimensions", len(resp.Data[0].Embedding)),
		zap.Int("tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", duration))

	return typesensei.EmbeddingResult{
		Embedding:    resp.Data[0].Embedding,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *OpenAI) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// Every error wraps ErrProvider.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, detail, ErrProvider)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, ErrProvider)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("embedding request: %w", err)
	}
	return fmt.Errorf("embedding request failed: %v: %w", err, ErrProvider)
}

// extractDetail extracts the "detail" field from a JSON error body, as
// sent by some OpenAI-compatible providers.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
