// Package orchestrator runs the bounded-retry automation loop: generate
// code for an instruction, execute it detached, capture before/after
// state, verify the result, and hand successful sessions to the
// confirmation gate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/session"
	"github.com/deskpilot/deskpilot-cli/internal/verify"
)

// Orchestrator sequences one automation session per instruction. All
// collaborators are injected; the orchestrator never constructs adapters.
type Orchestrator struct {
	cfg        config.AutomationConfig
	cdpURL     string
	completion schemas.CompletionService
	capturer   schemas.ScreenCapturer
	detector   schemas.TextDetector
	executor   schemas.CodeExecutor
	knowledge  schemas.KnowledgeStore
	classifier *verify.Classifier
	literal    schemas.Strategy
	judge      schemas.Strategy
	logger     *zap.Logger

	// sleep is swappable in tests to avoid real settle waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New validates and wires the orchestrator's collaborators.
func New(
	cfg config.AutomationConfig,
	cdpURL string,
	completion schemas.CompletionService,
	capturer schemas.ScreenCapturer,
	detector schemas.TextDetector,
	executor schemas.CodeExecutor,
	knowledge schemas.KnowledgeStore,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if completion == nil {
		return nil, errors.New("orchestrator requires a completion service")
	}
	if capturer == nil {
		return nil, errors.New("orchestrator requires a screen capturer")
	}
	if detector == nil {
		return nil, errors.New("orchestrator requires a text detector")
	}
	if executor == nil {
		return nil, errors.New("orchestrator requires a code executor")
	}
	if knowledge == nil {
		return nil, errors.New("orchestrator requires a knowledge store")
	}
	if logger == nil {
		return nil, errors.New("orchestrator requires a logger")
	}

	judge, err := verify.NewJudgeStrategy(completion, logger)
	if err != nil {
		return nil, err
	}
	literal, err := verify.NewLiteralStrategy(detector, judge, logger)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:        cfg,
		cdpURL:     cdpURL,
		completion: completion,
		capturer:   capturer,
		detector:   detector,
		executor:   executor,
		knowledge:  knowledge,
		classifier: verify.NewClassifier(cfg.TypingKeywords),
		literal:    literal,
		judge:      judge,
		logger:     logger.Named("orchestrator"),
		sleep:      sleepCtx,
	}, nil
}

// Run executes the full loop for one instruction. On a success verdict the
// returned session is in the pending-confirmation state and must be
// resolved by the confirmation gate; terminal Failed/Aborted sessions have
// already had their artifacts released.
func (o *Orchestrator) Run(ctx context.Context, instruction string) (*session.AutomationSession, error) {
	sess, err := session.New(instruction, o.cfg.MaxRetries, o.logger)
	if err != nil {
		return nil, err
	}

	o.logger.Info("Automation session started",
		zap.String("session", sess.ID),
		zap.String("instruction", instruction),
		zap.Int("max_retries", sess.MaxRetries),
	)

	// Abstraction never blocks the session: the raw instruction is a
	// usable retrieval key when the adapter is down.
	abstract, err := o.completion.Abstract(ctx, instruction)
	if err != nil || abstract == "" {
		o.logger.Warn("Instruction abstraction failed, using raw instruction as retrieval key", zap.Error(err))
		abstract = instruction
	}
	sess.AbstractInstruction = abstract
	o.logger.Info("Instruction abstracted", zap.String("abstract", abstract))

	for {
		attempt, err := sess.BeginAttempt()
		if errors.Is(err, session.ErrRetryBudgetExhausted) {
			o.logger.Error("All attempts failed, giving up",
				zap.String("session", sess.ID),
				zap.Int("attempts", sess.MaxRetries),
			)
			sess.SetFailed()
			sess.Cleanup()
			return sess, nil
		}
		if err != nil {
			sess.SetAborted(err)
			sess.Cleanup()
			return sess, err
		}

		if ctx.Err() != nil {
			sess.SetAborted(ctx.Err())
			sess.Cleanup()
			return sess, ctx.Err()
		}

		success, attemptErr := o.runAttempt(ctx, sess, attempt)
		if success {
			attempt.Verdict = schemas.VerdictSuccess
			sess.SetPending(attempt.GeneratedCode)
			o.logger.Info("Attempt verified successful, awaiting confirmation",
				zap.String("session", sess.ID),
				zap.Int("attempt", attempt.Index),
			)
			return sess, nil
		}

		attempt.Verdict = schemas.VerdictFailure
		if attemptErr != nil {
			o.logger.Warn("Attempt failed",
				zap.String("session", sess.ID),
				zap.Int("attempt", attempt.Index),
				zap.Error(attemptErr),
			)
		}

		if attempt.Index < sess.MaxRetries && o.cfg.RetryWait > 0 {
			if err := o.sleep(ctx, o.cfg.RetryWait); err != nil {
				sess.SetAborted(err)
				sess.Cleanup()
				return sess, err
			}
		}
	}
}

// runAttempt performs one full attempt. Every failure consumes one unit of
// the retry budget; the returned error names the failing step.
func (o *Orchestrator) runAttempt(ctx context.Context, sess *session.AutomationSession, attempt *schemas.Attempt) (bool, error) {
	log := o.logger.With(zap.String("session", sess.ID), zap.Int("attempt", attempt.Index))
	log.Info("Starting attempt")

	// Before state.
	beforeImage, err := o.capturer.Capture(ctx, "before")
	if err != nil {
		return false, fmt.Errorf("before capture failed: %w", err)
	}
	sess.RegisterArtifact(beforeImage)
	attempt.BeforeCapture = beforeImage

	blocks, err := o.detector.Detect(ctx, beforeImage)
	if err != nil {
		return false, fmt.Errorf("before-state text detection failed: %w", err)
	}
	log.Debug("Before state captured", zap.String("image", beforeImage), zap.Int("text_blocks", len(blocks)))

	// Retrieval. A dead store degrades to zero-shot generation.
	examples, err := o.knowledge.Query(ctx, sess.AbstractInstruction, o.cfg.TopK)
	if err != nil {
		log.Warn("Knowledge query failed, generating without examples", zap.Error(err))
		examples = nil
	}
	log.Info("Knowledge store queried", zap.Int("examples", len(examples)))

	screen, err := o.capturer.ScreenSize(ctx)
	if err != nil {
		return false, fmt.Errorf("screen size lookup failed: %w", err)
	}

	// Generation.
	code, err := o.completion.GenerateCode(ctx, schemas.GenerateRequest{
		Instruction:     sess.Instruction,
		Screen:          screen,
		BeforeImagePath: beforeImage,
		Examples:        examples,
		CDPURL:          o.cdpURL,
	})
	if err != nil {
		return false, fmt.Errorf("code generation failed: %w", err)
	}
	if code == "" {
		return false, session.ErrGenerationEmpty
	}
	attempt.GeneratedCode = code

	// Execution.
	if err := o.executor.Launch(ctx, code); err != nil {
		for _, artifact := range o.executor.Artifacts() {
			sess.RegisterArtifact(artifact)
		}
		return false, fmt.Errorf("%w: %v", session.ErrLaunchFailure, err)
	}
	for _, artifact := range o.executor.Artifacts() {
		sess.RegisterArtifact(artifact)
	}

	log.Info("Script launched, waiting for it to settle", zap.Duration("settle", o.cfg.SettleInterval))
	if err := o.sleep(ctx, o.cfg.SettleInterval); err != nil {
		return false, err
	}

	crash, err := o.executor.CrashOutput()
	if err != nil {
		log.Warn("Crash check could not read error output", zap.Error(err))
	}
	if crash != "" {
		attempt.CrashOutput = crash
		return false, fmt.Errorf("%w: %s", session.ErrScriptCrash, firstLine(crash))
	}

	// After state.
	afterImage, err := o.capturer.Capture(ctx, "after")
	if err != nil {
		return false, fmt.Errorf("after capture failed: %w", err)
	}
	sess.RegisterArtifact(afterImage)
	attempt.AfterCapture = afterImage

	// Verification.
	strategy := o.judge
	tag := o.classifier.Classify(sess.Instruction)
	if tag == verify.StrategyLiteral {
		strategy = o.literal
	}
	log.Info("Verifying attempt", zap.String("strategy", string(tag)))

	success, err := strategy.Verify(ctx, sess.Instruction, code, beforeImage, afterImage)
	if err != nil {
		return false, fmt.Errorf("%w: %v", session.ErrVerification, err)
	}
	if !success {
		return false, session.ErrVerification
	}
	return true, nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
