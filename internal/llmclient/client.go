// Package llmclient provides provider-agnostic access to the completion
// backends (Ollama, Gemini). Higher layers express what to ask; this
// package owns transport, retries, and rate limiting.
package llmclient

import (
	"context"
	"fmt"
	"os"
)

// GenerationRequest is a single prompt program: a system prompt, a user
// prompt, and optional image attachments referenced by path.
type GenerationRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	ImagePaths   []string
}

// Client generates a completion for one request. Implementations must
// return an error for any transport or API failure; callers decide whether
// that maps to a retry, a fallback, or a failed verdict.
type Client interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// readImages loads every attachment, failing on the first unreadable path.
// Attachments are screenshots produced moments earlier by the capture
// adapter, so a missing file is a programming error, not a transient one.
func readImages(paths []string) ([][]byte, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	images := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read image attachment %q: %w", p, err)
		}
		images = append(images, data)
	}
	return images, nil
}
