// Package ocr is the client for the external text-detection service. The
// service receives an image and returns every recognized text block with
// its bounding quadrilateral and confidence.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// Client implements schemas.TextDetector over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// detectRequest is the wire format sent to the detection service.
type detectRequest struct {
	Image string `json:"image"` // base64-encoded PNG
}

// detectResponse mirrors the service's result list.
type detectResponse struct {
	Results []struct {
		Quad       [4][2]float64 `json:"quad"`
		Text       string        `json:"text"`
		Confidence float64       `json:"confidence"`
	} `json:"results"`
}

// NewClient builds the detector client from configuration.
func NewClient(cfg config.OCRConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("ocr.endpoint is required")
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("ocr"),
	}, nil
}

// Detect posts the image to the detection service and returns every text
// block it recognized. Transient HTTP failures are retried with backoff.
func (c *Client) Detect(ctx context.Context, imagePath string) ([]schemas.TextBlock, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture %q: %w", imagePath, err)
	}

	body, err := json.Marshal(detectRequest{Image: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal detection request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 90 * time.Second
	b.MaxInterval = 15 * time.Second

	var blocks []schemas.TextBlock
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create detection request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.logger.Warn("Network error during text detection, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute detection request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read detection response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("text detection service error: status %d, body: %s", resp.StatusCode, respBody)
			switch resp.StatusCode {
			case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
				return err
			default:
				return backoff.Permanent(err)
			}
		}

		var payload detectResponse
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode detection response: %w", err))
		}

		blocks = blocks[:0]
		for _, r := range payload.Results {
			blocks = append(blocks, schemas.TextBlock{
				Quad:       r.Quad,
				Text:       r.Text,
				Confidence: r.Confidence,
			})
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	c.logger.Debug("Text detection complete",
		zap.String("image", imagePath),
		zap.Int("blocks", len(blocks)),
	)
	return blocks, nil
}

// FindText reports whether needle appears as a case-insensitive, trimmed
// substring of any detected block.
func FindText(blocks []schemas.TextBlock, needle string) bool {
	target := strings.ToLower(strings.TrimSpace(needle))
	if target == "" {
		return false
	}
	for _, b := range blocks {
		if strings.Contains(strings.ToLower(strings.TrimSpace(b.Text)), target) {
			return true
		}
	}
	return false
}

// Center returns the centroid of a detection quadrilateral.
func Center(quad [4][2]float64) (int, int) {
	var sumX, sumY float64
	for _, p := range quad {
		sumX += p[0]
		sumY += p[1]
	}
	return int(sumX / 4), int(sumY / 4)
}
