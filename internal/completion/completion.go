// Package completion implements the completion-service boundary: prompt
// construction for abstraction, code generation, and judging, on top of a
// provider-agnostic llmclient.
package completion

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/llmclient"
)

// Service implements schemas.CompletionService.
type Service struct {
	client llmclient.Client
	cfg    config.LLMConfig
	logger *zap.Logger
}

// NewService builds the completion service around an LLM client.
func NewService(client llmclient.Client, cfg config.LLMConfig, logger *zap.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("cannot initialize completion service with a nil client")
	}
	return &Service{
		client: client,
		cfg:    cfg,
		logger: logger.Named("completion"),
	}, nil
}

// Abstract generalizes the instruction into the retrieval key.
func (s *Service) Abstract(ctx context.Context, instruction string) (string, error) {
	resp, err := s.client.Generate(ctx, llmclient.GenerationRequest{
		Model:        s.cfg.OperationModel,
		SystemPrompt: abstractSystemPrompt,
		UserPrompt:   instruction,
	})
	if err != nil {
		return "", fmt.Errorf("abstraction call failed: %w", err)
	}

	abstract := strings.TrimSpace(resp)
	s.logger.Info("Instruction abstracted",
		zap.String("instruction", instruction),
		zap.String("abstract", abstract),
	)
	return abstract, nil
}

// GenerateCode asks the operation model for an automation script, given the
// current screen capture and any retrieved few-shot examples. An empty
// return with nil error means the model produced nothing usable.
func (s *Service) GenerateCode(ctx context.Context, req schemas.GenerateRequest) (string, error) {
	resp, err := s.client.Generate(ctx, llmclient.GenerationRequest{
		Model:        s.cfg.OperationModel,
		SystemPrompt: generationSystemPrompt(req.Screen, req.CDPURL),
		UserPrompt:   generationUserPrompt(req.Instruction, req.Examples),
		ImagePaths:   []string{req.BeforeImagePath},
	})
	if err != nil {
		return "", fmt.Errorf("code generation call failed: %w", err)
	}

	code := StripCodeFence(resp)
	s.logger.Debug("Code generated",
		zap.Int("examples", len(req.Examples)),
		zap.Int("code_len", len(code)),
	)
	return code, nil
}

// Judge submits the before/after pair to the evaluation model and returns
// its raw verdict text.
func (s *Service) Judge(ctx context.Context, req schemas.JudgeRequest) (string, error) {
	userPrompt := fmt.Sprintf("User Command: %s\nExecuted Code:\n```python\n%s\n```",
		req.Instruction, req.ExecutedCode)

	resp, err := s.client.Generate(ctx, llmclient.GenerationRequest{
		Model:        s.cfg.EvaluationModel,
		SystemPrompt: judgeSystemPrompt,
		UserPrompt:   userPrompt,
		ImagePaths:   []string{req.BeforeImagePath, req.AfterImagePath},
	})
	if err != nil {
		return "", fmt.Errorf("judging call failed: %w", err)
	}

	verdict := strings.TrimSpace(resp)
	s.logger.Info("Judge verdict received", zap.String("verdict", truncate(verdict, 120)))
	return verdict, nil
}

// StripCodeFence removes a surrounding markdown code fence from a model
// response, tolerating a language tag on the opening fence.
func StripCodeFence(raw string) string {
	code := strings.TrimSpace(raw)
	if !strings.HasPrefix(code, "```") {
		return code
	}

	code = strings.TrimPrefix(code, "```")
	// Drop the language tag line ("python", "py", ...), if any.
	if idx := strings.IndexByte(code, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(code[:idx])
		if firstLine != "" && !strings.ContainsAny(firstLine, " \t(") {
			code = code[idx+1:]
		}
	}
	code = strings.TrimSuffix(strings.TrimSpace(code), "```")
	return strings.TrimSpace(code)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
