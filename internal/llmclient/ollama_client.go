package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// OllamaClient implements Client against an Ollama server.
type OllamaClient struct {
	client  *api.Client
	cfg     config.LLMConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// authTransport adds a bearer token for remote Ollama deployments.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(clone)
}

// NewOllamaClient initializes the client from configuration.
func NewOllamaClient(cfg config.LLMConfig, logger *zap.Logger) (*OllamaClient, error) {
	baseURL, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid llm.endpoint: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.APITimeout}
	if cfg.APIKey != "" {
		httpClient.Transport = &authTransport{base: http.DefaultTransport, apiKey: cfg.APIKey}
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	return &OllamaClient{
		client:  api.NewClient(baseURL, httpClient),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rpm/60.0), 1),
		logger:  logger.Named("llm_client.ollama"),
	}, nil
}

// Generate runs a non-streaming completion with retries on transient
// failures.
func (c *OllamaClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	images, err := readImages(req.ImagePaths)
	if err != nil {
		return "", err
	}

	apiReq := &api.GenerateRequest{
		Model:  req.Model,
		System: req.SystemPrompt,
		Prompt: req.UserPrompt,
		Stream: new(bool), // non-streaming
		Options: map[string]any{
			"temperature": c.cfg.Temperature,
			"num_predict": c.cfg.MaxTokens,
		},
	}
	for _, img := range images {
		apiReq.Images = append(apiReq.Images, api.ImageData(img))
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var content string
	operation := func() error {
		start := time.Now()
		var sb strings.Builder
		err := c.client.Generate(ctx, apiReq, func(resp api.GenerateResponse) error {
			sb.WriteString(resp.Response)
			return nil
		})
		if err != nil {
			if isRetryable(err) {
				c.logger.Warn("Transient Ollama error, retrying...", zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}

		c.logger.Info("LLM generation complete (Ollama)",
			zap.String("model", req.Model),
			zap.Duration("duration", time.Since(start)),
			zap.Int("images", len(images)),
		)
		content = sb.String()
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return content, nil
}

// isRetryable reports whether an Ollama call failed in a way worth
// repeating: connection trouble or a transient HTTP status.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "EOF")
}
