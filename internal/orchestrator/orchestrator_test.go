package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/mocks"
)

type harness struct {
	completion *mocks.MockCompletionService
	capturer   *mocks.MockScreenCapturer
	detector   *mocks.MockTextDetector
	executor   *mocks.MockCodeExecutor
	knowledge  *mocks.MockKnowledgeStore
	orch       *Orchestrator
}

func newHarness(t *testing.T, maxRetries int) *harness {
	t.Helper()

	h := &harness{
		completion: new(mocks.MockCompletionService),
		capturer:   new(mocks.MockScreenCapturer),
		detector:   new(mocks.MockTextDetector),
		executor:   new(mocks.MockCodeExecutor),
		knowledge:  new(mocks.MockKnowledgeStore),
	}

	cfg := config.AutomationConfig{
		MaxRetries:     maxRetries,
		TopK:           2,
		SettleInterval: time.Millisecond,
		RetryWait:      time.Millisecond,
		TypingKeywords: []string{"type", "enter", "input", "入力"},
	}

	orch, err := New(cfg, "", h.completion, h.capturer, h.detector, h.executor, h.knowledge, zap.NewNop())
	require.NoError(t, err)
	// No real waiting in tests.
	orch.sleep = func(context.Context, time.Duration) error { return nil }
	h.orch = orch
	return h
}

// expectHappyAttempt wires the mocks for one attempt up to verification.
func (h *harness) expectHappyAttempt(code string) {
	h.capturer.On("Capture", mock.Anything, "before").Return("before.png", nil)
	h.detector.On("Detect", mock.Anything, "before.png").Return([]schemas.TextBlock{}, nil)
	h.knowledge.On("Query", mock.Anything, mock.Anything, 2).Return([]schemas.RetrievedExample{}, nil)
	h.capturer.On("ScreenSize", mock.Anything).Return(schemas.ScreenSize{Width: 1920, Height: 1080}, nil)
	h.completion.On("GenerateCode", mock.Anything, mock.Anything).Return(code, nil)
	h.executor.On("Launch", mock.Anything, code).Return(nil)
	h.executor.On("Artifacts").Return([]string{})
	h.executor.On("CrashOutput").Return("", nil)
	h.capturer.On("Capture", mock.Anything, "after").Return("after.png", nil)
}

func TestRun_LiteralMatchSuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	code := "import pyperclip\npyperclip.copy('hello')\n"

	h.completion.On("Abstract", mock.Anything, "Type 'hello' into Notepad").Return("Type text into a text editor", nil).Once()
	h.expectHappyAttempt(code)
	h.detector.On("Detect", mock.Anything, "after.png").Return([]schemas.TextBlock{{Text: "hello world"}}, nil).Once()

	sess, err := h.orch.Run(context.Background(), "Type 'hello' into Notepad")
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomePendingConfirmation, sess.Outcome().Kind)
	require.NotNil(t, sess.Pending())
	assert.Equal(t, code, sess.Pending().Code)
	assert.Equal(t, "Type text into a text editor", sess.AbstractInstruction)
	require.Len(t, sess.Attempts(), 1)
	assert.Equal(t, schemas.VerdictSuccess, sess.Attempts()[0].Verdict)

	// The pending session keeps its artifacts for the confirmation gate.
	assert.NotEmpty(t, sess.Artifacts())
	h.completion.AssertNotCalled(t, "Judge", mock.Anything, mock.Anything)
}

func TestRun_ModelJudgedSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	code := "import subprocess\nsubprocess.Popen(['gnome-calculator'])\n"

	h.completion.On("Abstract", mock.Anything, mock.Anything).Return("Open a calculator app", nil).Once()
	h.expectHappyAttempt(code)
	h.completion.On("Judge", mock.Anything, mock.Anything).Return("Reasoning... SUCCESS", nil).Once()

	sess, err := h.orch.Run(context.Background(), "Open the calculator")
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomePendingConfirmation, sess.Outcome().Kind)
	h.completion.AssertExpectations(t)
}

func TestRun_EmptyGenerationExhaustsBudget(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)

	// Real files so we can observe cleanup.
	dir := t.TempDir()
	before := filepath.Join(dir, "before.png")
	require.NoError(t, os.WriteFile(before, []byte("img"), 0o644))

	h.completion.On("Abstract", mock.Anything, mock.Anything).Return("Open an app", nil).Once()
	h.capturer.On("Capture", mock.Anything, "before").Return(before, nil)
	h.detector.On("Detect", mock.Anything, before).Return([]schemas.TextBlock{}, nil)
	h.knowledge.On("Query", mock.Anything, mock.Anything, 2).Return(nil, nil)
	h.capturer.On("ScreenSize", mock.Anything).Return(schemas.ScreenSize{Width: 800, Height: 600}, nil)
	h.completion.On("GenerateCode", mock.Anything, mock.Anything).Return("", nil).Twice()

	sess, err := h.orch.Run(context.Background(), "Open the calculator")
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomeFailed, sess.Outcome().Kind)
	assert.Len(t, sess.Attempts(), 2)
	for _, a := range sess.Attempts() {
		assert.Equal(t, schemas.VerdictFailure, a.Verdict)
	}

	// Failed sessions release their artifacts.
	_, statErr := os.Stat(before)
	assert.True(t, os.IsNotExist(statErr))
	h.executor.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything)
}

func TestRun_CrashFailsAttemptThenSucceeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	code := "import pyautogui\npyautogui.click(1, 1)\n"

	h.completion.On("Abstract", mock.Anything, mock.Anything).Return("Click a button", nil).Once()
	h.capturer.On("Capture", mock.Anything, "before").Return("before.png", nil)
	h.detector.On("Detect", mock.Anything, "before.png").Return([]schemas.TextBlock{}, nil)
	h.knowledge.On("Query", mock.Anything, mock.Anything, 2).Return(nil, nil)
	h.capturer.On("ScreenSize", mock.Anything).Return(schemas.ScreenSize{Width: 1920, Height: 1080}, nil)
	h.completion.On("GenerateCode", mock.Anything, mock.Anything).Return(code, nil)
	h.executor.On("Launch", mock.Anything, code).Return(nil)
	h.executor.On("Artifacts").Return([]string{})
	h.executor.On("CrashOutput").Return("Traceback (most recent call last):\n  ...", nil).Once()
	h.executor.On("CrashOutput").Return("", nil).Once()
	h.capturer.On("Capture", mock.Anything, "after").Return("after.png", nil)
	h.completion.On("Judge", mock.Anything, mock.Anything).Return("SUCCESS", nil).Once()

	sess, err := h.orch.Run(context.Background(), "Click the OK button")
	require.NoError(t, err)

	require.Len(t, sess.Attempts(), 2)
	assert.Equal(t, schemas.VerdictFailure, sess.Attempts()[0].Verdict)
	assert.Contains(t, sess.Attempts()[0].CrashOutput, "Traceback")
	assert.Equal(t, schemas.VerdictSuccess, sess.Attempts()[1].Verdict)
	assert.Equal(t, schemas.OutcomePendingConfirmation, sess.Outcome().Kind)
}

func TestRun_AbstractionFailureFallsBackToRawKey(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	instruction := "Open the calculator"
	code := "import subprocess\nsubprocess.Popen(['calc'])\n"

	h.completion.On("Abstract", mock.Anything, instruction).Return("", errors.New("model offline")).Once()
	h.capturer.On("Capture", mock.Anything, "before").Return("before.png", nil)
	h.detector.On("Detect", mock.Anything, "before.png").Return([]schemas.TextBlock{}, nil)
	// The raw instruction becomes the retrieval key.
	h.knowledge.On("Query", mock.Anything, instruction, 2).Return(nil, nil).Once()
	h.capturer.On("ScreenSize", mock.Anything).Return(schemas.ScreenSize{Width: 1920, Height: 1080}, nil)
	h.completion.On("GenerateCode", mock.Anything, mock.Anything).Return(code, nil)
	h.executor.On("Launch", mock.Anything, code).Return(nil)
	h.executor.On("Artifacts").Return([]string{})
	h.executor.On("CrashOutput").Return("", nil)
	h.capturer.On("Capture", mock.Anything, "after").Return("after.png", nil)
	h.completion.On("Judge", mock.Anything, mock.Anything).Return("SUCCESS", nil).Once()

	sess, err := h.orch.Run(context.Background(), instruction)
	require.NoError(t, err)

	assert.Equal(t, instruction, sess.AbstractInstruction)
	h.knowledge.AssertExpectations(t)
}

func TestRun_KnowledgeQueryFailureDegradesToZeroShot(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	code := "import subprocess\nsubprocess.Popen(['calc'])\n"

	h.completion.On("Abstract", mock.Anything, mock.Anything).Return("Open a calculator app", nil).Once()
	h.capturer.On("Capture", mock.Anything, "before").Return("before.png", nil)
	h.detector.On("Detect", mock.Anything, "before.png").Return([]schemas.TextBlock{}, nil)
	h.knowledge.On("Query", mock.Anything, mock.Anything, 2).Return(nil, errors.New("store offline")).Once()
	h.capturer.On("ScreenSize", mock.Anything).Return(schemas.ScreenSize{Width: 1920, Height: 1080}, nil)
	h.completion.On("GenerateCode", mock.Anything, mock.MatchedBy(func(req schemas.GenerateRequest) bool {
		return len(req.Examples) == 0
	})).Return(code, nil).Once()
	h.executor.On("Launch", mock.Anything, code).Return(nil)
	h.executor.On("Artifacts").Return([]string{})
	h.executor.On("CrashOutput").Return("", nil)
	h.capturer.On("Capture", mock.Anything, "after").Return("after.png", nil)
	h.completion.On("Judge", mock.Anything, mock.Anything).Return("SUCCESS", nil).Once()

	sess, err := h.orch.Run(context.Background(), "Open the calculator")
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomePendingConfirmation, sess.Outcome().Kind)
}

func TestRun_JudgeErrorCountsAsFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	code := "import subprocess\nsubprocess.Popen(['calc'])\n"

	h.completion.On("Abstract", mock.Anything, mock.Anything).Return("Open a calculator app", nil).Once()
	h.expectHappyAttempt(code)
	h.completion.On("Judge", mock.Anything, mock.Anything).Return("", errors.New("timeout")).Once()

	sess, err := h.orch.Run(context.Background(), "Open the calculator")
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomeFailed, sess.Outcome().Kind)
	require.Len(t, sess.Attempts(), 1)
	assert.Equal(t, schemas.VerdictFailure, sess.Attempts()[0].Verdict)
}

func TestRun_ContextCancellationAborts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.completion.On("Abstract", mock.Anything, mock.Anything).Return("Open an app", nil).Once()

	sess, err := h.orch.Run(ctx, "Open the calculator")
	require.Error(t, err)
	assert.Equal(t, schemas.OutcomeAborted, sess.Outcome().Kind)
}

func TestRun_LaunchFailureConsumesBudget(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	code := "import pyautogui\npyautogui.click(1, 1)\n"

	h.completion.On("Abstract", mock.Anything, mock.Anything).Return("Click a button", nil).Once()
	h.capturer.On("Capture", mock.Anything, "before").Return("before.png", nil)
	h.detector.On("Detect", mock.Anything, "before.png").Return([]schemas.TextBlock{}, nil)
	h.knowledge.On("Query", mock.Anything, mock.Anything, 2).Return(nil, nil)
	h.capturer.On("ScreenSize", mock.Anything).Return(schemas.ScreenSize{Width: 1920, Height: 1080}, nil)
	h.completion.On("GenerateCode", mock.Anything, mock.Anything).Return(code, nil)
	h.executor.On("Launch", mock.Anything, code).Return(errors.New("interpreter not found")).Once()
	h.executor.On("Artifacts").Return([]string{})

	sess, err := h.orch.Run(context.Background(), "Click the OK button")
	require.NoError(t, err)

	assert.Equal(t, schemas.OutcomeFailed, sess.Outcome().Kind)
	h.capturer.AssertNotCalled(t, "Capture", mock.Anything, "after")
}
