package verify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

// successToken is the contract with the evaluation model: a verdict
// containing it (any case) counts as success, anything else as failure.
const successToken = "SUCCESS"

// JudgeStrategy asks the evaluation model to compare the before and after
// screen state against the instruction.
type JudgeStrategy struct {
	completion schemas.CompletionService
	logger     *zap.Logger
}

// NewJudgeStrategy builds the model-judged verification path.
func NewJudgeStrategy(completion schemas.CompletionService, logger *zap.Logger) (*JudgeStrategy, error) {
	if completion == nil {
		return nil, fmt.Errorf("cannot create judge strategy with a nil completion service")
	}
	return &JudgeStrategy{
		completion: completion,
		logger:     logger.Named("verify.judge"),
	}, nil
}

// Verify submits both captures to the evaluation model. A judging error is
// reported to the caller, which treats the attempt as failed.
func (s *JudgeStrategy) Verify(ctx context.Context, instruction, code, beforeImage, afterImage string) (bool, error) {
	verdict, err := s.completion.Judge(ctx, schemas.JudgeRequest{
		Instruction:     instruction,
		ExecutedCode:    code,
		BeforeImagePath: beforeImage,
		AfterImagePath:  afterImage,
	})
	if err != nil {
		return false, fmt.Errorf("judge call failed: %w", err)
	}

	success := strings.Contains(strings.ToUpper(verdict), successToken)
	s.logger.Info("Model verdict received",
		zap.Bool("success", success),
		zap.String("verdict", strings.TrimSpace(verdict)),
	)
	return success, nil
}
