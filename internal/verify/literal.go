package verify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/ocr"
)

// LiteralStrategy succeeds when the payload typed by the generated code is
// visible in the after-state screen text. Codes that embed no extractable
// literal fall back to the model-judged strategy.
type LiteralStrategy struct {
	detector schemas.TextDetector
	fallback schemas.Strategy
	logger   *zap.Logger
}

// NewLiteralStrategy wires the detector and the fallback path.
func NewLiteralStrategy(detector schemas.TextDetector, fallback schemas.Strategy, logger *zap.Logger) (*LiteralStrategy, error) {
	if detector == nil {
		return nil, fmt.Errorf("cannot create literal strategy with a nil text detector")
	}
	if fallback == nil {
		return nil, fmt.Errorf("cannot create literal strategy with a nil fallback strategy")
	}
	return &LiteralStrategy{
		detector: detector,
		fallback: fallback,
		logger:   logger.Named("verify.literal"),
	}, nil
}

// Verify extracts the typed literal from the code and looks for it in the
// after image's detected text.
func (s *LiteralStrategy) Verify(ctx context.Context, instruction, code, beforeImage, afterImage string) (bool, error) {
	literal, found, err := ExtractTypedLiteral(ctx, code)
	if err != nil {
		return false, fmt.Errorf("literal extraction failed: %w", err)
	}
	if !found || literal == "" {
		s.logger.Info("No typed literal in generated code, deferring to model judge")
		return s.fallback.Verify(ctx, instruction, code, beforeImage, afterImage)
	}

	blocks, err := s.detector.Detect(ctx, afterImage)
	if err != nil {
		return false, fmt.Errorf("text detection on after image failed: %w", err)
	}

	matched := ocr.FindText(blocks, literal)
	s.logger.Info("Literal verification finished",
		zap.String("literal", literal),
		zap.Int("blocks", len(blocks)),
		zap.Bool("matched", matched),
	)
	return matched, nil
}
