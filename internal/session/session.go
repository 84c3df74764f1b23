// Package session owns the per-instruction automation state: the ordered
// attempts, the transient artifacts they produce, and the terminal outcome.
package session

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

// Retryable failure conditions. Each consumes one unit of the retry budget.
var (
	ErrGenerationEmpty = errors.New("code generation returned an empty result")
	ErrLaunchFailure   = errors.New("generated code failed to launch")
	ErrScriptCrash     = errors.New("generated code crashed during execution")
	ErrVerification    = errors.New("verification judged the attempt a failure")
)

// ErrRetryBudgetExhausted terminates the loop without aborting the process.
var ErrRetryBudgetExhausted = errors.New("retry budget exhausted without a successful attempt")

// AutomationSession aggregates one instruction's lifecycle. It is owned by
// a single orchestrator run; attempts are appended strictly sequentially.
type AutomationSession struct {
	ID                  string
	Instruction         string
	AbstractInstruction string
	MaxRetries          int

	mu        sync.Mutex
	attempts  []*schemas.Attempt
	artifacts []string
	outcome   schemas.Outcome
	pending   *schemas.PendingRecord
	logger    *zap.Logger
}

// New creates a session for one raw instruction.
func New(instruction string, maxRetries int, logger *zap.Logger) (*AutomationSession, error) {
	if instruction == "" {
		return nil, fmt.Errorf("instruction must not be empty")
	}
	if maxRetries < 1 {
		return nil, fmt.Errorf("retry budget must be at least 1, got %d", maxRetries)
	}
	return &AutomationSession{
		ID:          uuid.New().String(),
		Instruction: instruction,
		MaxRetries:  maxRetries,
		logger:      logger.Named("session"),
	}, nil
}

// BeginAttempt creates the next attempt, enforcing the retry budget.
func (s *AutomationSession) BeginAttempt() (*schemas.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.attempts) >= s.MaxRetries {
		return nil, ErrRetryBudgetExhausted
	}
	attempt := &schemas.Attempt{
		Index:   len(s.attempts) + 1,
		Verdict: schemas.VerdictPending,
	}
	s.attempts = append(s.attempts, attempt)
	return attempt, nil
}

// Attempts returns the attempts recorded so far.
func (s *AutomationSession) Attempts() []*schemas.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*schemas.Attempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// RegisterArtifact tracks a transient file for eventual cleanup. Artifacts
// belong to the session, not to any single attempt.
func (s *AutomationSession) RegisterArtifact(path string) {
	if path == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, path)
}

// Artifacts returns the tracked artifact paths.
func (s *AutomationSession) Artifacts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.artifacts))
	copy(out, s.artifacts)
	return out
}

// SetPending transitions the session to pending confirmation, carrying the
// record the gate needs.
func (s *AutomationSession) SetPending(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &schemas.PendingRecord{
		Instruction:         s.Instruction,
		AbstractInstruction: s.AbstractInstruction,
		Code:                code,
	}
	s.outcome = schemas.Outcome{Kind: schemas.OutcomePendingConfirmation, Code: code}
}

// Pending returns the pending record, or nil when the session is not
// awaiting confirmation.
func (s *AutomationSession) Pending() *schemas.PendingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// SetFailed marks the terminal Failed outcome.
func (s *AutomationSession) SetFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = schemas.Outcome{Kind: schemas.OutcomeFailed}
}

// SetAborted marks the terminal Aborted outcome with its cause.
func (s *AutomationSession) SetAborted(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = schemas.Outcome{Kind: schemas.OutcomeAborted, Error: err}
}

// SetSucceeded marks the session confirmed by the gate.
func (s *AutomationSession) SetSucceeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome.Kind = schemas.OutcomeSucceeded
	s.pending = nil
}

// Outcome returns the current terminal state.
func (s *AutomationSession) Outcome() schemas.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Cleanup deletes every tracked artifact. Idempotent: missing files are
// ignored, and repeated calls are safe.
func (s *AutomationSession) Cleanup() {
	s.mu.Lock()
	artifacts := s.artifacts
	s.artifacts = nil
	s.mu.Unlock()

	if len(artifacts) == 0 {
		return
	}
	s.logger.Info("Cleaning up transient artifacts",
		zap.String("session", s.ID),
		zap.Int("count", len(artifacts)),
	)
	for _, path := range artifacts {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to delete artifact", zap.String("path", path), zap.Error(err))
		}
	}
}
