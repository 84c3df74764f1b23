package llmclient

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestIsTransientGeminiError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", genai.APIError{Code: http.StatusTooManyRequests}, true},
		{"server error", genai.APIError{Code: http.StatusInternalServerError}, true},
		{"gateway timeout", genai.APIError{Code: http.StatusGatewayTimeout}, true},
		{"bad request is permanent", genai.APIError{Code: http.StatusBadRequest}, false},
		{"unauthorized is permanent", genai.APIError{Code: http.StatusUnauthorized}, false},
		{"wrapped rate limit", fmt.Errorf("generate: %w", genai.APIError{Code: http.StatusServiceUnavailable}), true},
		{"wrapped permanent", fmt.Errorf("generate: %w", genai.APIError{Code: http.StatusForbidden}), false},
		{"plain error", errors.New("connection refused"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, isTransientGeminiError(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 503", &api.StatusError{StatusCode: http.StatusServiceUnavailable}, true},
		{"status 429", &api.StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"status 400 is permanent", &api.StatusError{StatusCode: http.StatusBadRequest}, false},
		{"wrapped status", fmt.Errorf("chat: %w", &api.StatusError{StatusCode: http.StatusBadGateway}), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"timeout", errors.New("context deadline exceeded (timeout)"), true},
		{"other error", errors.New("model not found"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, isRetryable(tc.err))
		})
	}
}
