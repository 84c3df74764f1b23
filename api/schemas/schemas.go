// Package schemas holds the shared data model exchanged between the
// orchestrator, its adapters, and the confirmation gate. Everything here is
// plain data; behavior lives in the internal packages.
package schemas

import (
	"time"
)

// Verdict is the per-attempt judgment applied by the orchestrator after a
// verification strategy has run.
type Verdict string

const (
	VerdictPending Verdict = "pending"
	VerdictSuccess Verdict = "success"
	VerdictFailure Verdict = "failure"
)

// OutcomeKind is the terminal state of an automation session.
type OutcomeKind string

const (
	// OutcomePendingConfirmation means an attempt succeeded and the session
	// is waiting on the confirmation gate before anything is persisted.
	OutcomePendingConfirmation OutcomeKind = "pending_confirmation"
	// OutcomeSucceeded means the gate confirmed the episode.
	OutcomeSucceeded OutcomeKind = "succeeded"
	// OutcomeFailed means the retry budget was exhausted without a success.
	OutcomeFailed OutcomeKind = "failed"
	// OutcomeAborted means an adapter error escaped the attempt loop.
	OutcomeAborted OutcomeKind = "aborted"
)

// Outcome pairs the terminal state with whatever it carries: the winning
// code on success, the abort cause on abort.
type Outcome struct {
	Kind  OutcomeKind
	Code  string
	Error error
}

// Attempt records one generate -> execute -> verify iteration. It is owned
// exclusively by its session and becomes immutable once Verdict leaves
// VerdictPending.
type Attempt struct {
	Index         int
	GeneratedCode string
	BeforeCapture string
	AfterCapture  string
	Verdict       Verdict
	CrashOutput   string
}

// PendingRecord is what the orchestrator hands the confirmation gate when a
// session reaches OutcomePendingConfirmation.
type PendingRecord struct {
	Instruction         string
	AbstractInstruction string
	Code                string
}

// RetrievedExample is a read-only projection returned by the knowledge
// store. The original (not the abstract) prompt is used for few-shot
// prompting, matching how entries were confirmed.
type RetrievedExample struct {
	OriginalPrompt string
	Code           string
}

// KnowledgeEntry is the persisted triple written through the confirmation
// gate. No entry is ever written from an unconfirmed attempt.
type KnowledgeEntry struct {
	ID             string    `json:"id"`
	AbstractPrompt string    `json:"abstract_prompt"`
	OriginalPrompt string    `json:"original_prompt"`
	Code           string    `json:"code"`
	CreatedAt      time.Time `json:"created_at"`
}

// TextBlock is one detection result: a quadrilateral of (x, y) points, the
// recognized text, and the detector's confidence.
type TextBlock struct {
	Quad       [4][2]float64 `json:"quad"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
}

// ScreenSize carries the display dimensions passed to code generation.
type ScreenSize struct {
	Width  int
	Height int
}

// GenerateRequest bundles everything the completion service needs to
// produce an automation script for one attempt.
type GenerateRequest struct {
	Instruction     string
	Screen          ScreenSize
	BeforeImagePath string
	Examples        []RetrievedExample
	CDPURL          string
}

// JudgeRequest bundles the inputs for a model-judged verification call.
type JudgeRequest struct {
	Instruction     string
	ExecutedCode    string
	BeforeImagePath string
	AfterImagePath  string
}
