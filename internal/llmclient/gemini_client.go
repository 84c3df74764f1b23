package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// GeminiClient implements Client against the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	cfg     config.LLMConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGeminiClient initializes the client. The API key is required; models
// are chosen per request so one client serves operation, evaluation, and
// abstraction calls.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	return &GeminiClient{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rpm/60.0), 1),
		logger:  logger.Named("llm_client.gemini"),
	}, nil
}

// Generate runs one completion with retries on transient API failures.
func (c *GeminiClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	images, err := readImages(req.ImagePaths)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{genai.NewPartFromText(req.UserPrompt)}
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "image/png", Data: img},
		})
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	temp := c.cfg.Temperature
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(c.cfg.MaxTokens),
	}
	if req.SystemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var content string
	operation := func() error {
		start := time.Now()
		resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, genConfig)
		if err != nil {
			if isTransientGeminiError(err) {
				c.logger.Warn("Transient Gemini error, retrying...", zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}

		text := resp.Text()
		if text == "" {
			return backoff.Permanent(fmt.Errorf("gemini API returned no content"))
		}

		c.logger.Info("LLM generation complete (Gemini)",
			zap.String("model", req.Model),
			zap.Duration("duration", time.Since(start)),
			zap.Int("images", len(images)),
		)
		content = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return content, nil
}

// isTransientGeminiError reports whether a Gemini call failed with a status
// worth repeating. The SDK surfaces rate limits and server hiccups as
// APIError, possibly wrapped.
func isTransientGeminiError(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
