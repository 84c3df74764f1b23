package gate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/gate"
	"github.com/deskpilot/deskpilot-cli/internal/mocks"
	"github.com/deskpilot/deskpilot-cli/internal/session"
)

func pendingSession(t *testing.T) (*session.AutomationSession, string) {
	t.Helper()

	sess, err := session.New("Type 'hello' into Notepad", 3, zap.NewNop())
	require.NoError(t, err)
	sess.AbstractInstruction = "Type text into a text editor"
	sess.SetPending("import pyperclip\npyperclip.copy('hello')\n")

	artifact := filepath.Join(t.TempDir(), "before.png")
	require.NoError(t, os.WriteFile(artifact, []byte("img"), 0o644))
	sess.RegisterArtifact(artifact)
	return sess, artifact
}

func TestResolve_ConfirmPersistsEntry(t *testing.T) {
	t.Parallel()

	store := new(mocks.MockKnowledgeStore)
	g, err := gate.New(store, zap.NewNop())
	require.NoError(t, err)

	sess, artifact := pendingSession(t)
	store.On("Insert", mock.Anything, mock.MatchedBy(func(e schemas.KnowledgeEntry) bool {
		return e.AbstractPrompt == "Type text into a text editor" &&
			e.OriginalPrompt == "Type 'hello' into Notepad" &&
			e.Code != "" && e.ID != "" && !e.CreatedAt.IsZero()
	})).Return(nil).Once()

	require.NoError(t, g.Resolve(context.Background(), sess, gate.Confirm))

	assert.Equal(t, schemas.OutcomeSucceeded, sess.Outcome().Kind)
	_, statErr := os.Stat(artifact)
	assert.True(t, os.IsNotExist(statErr))
	store.AssertExpectations(t)
}

func TestResolve_RejectDiscardsSilently(t *testing.T) {
	t.Parallel()

	store := new(mocks.MockKnowledgeStore)
	g, err := gate.New(store, zap.NewNop())
	require.NoError(t, err)

	sess, artifact := pendingSession(t)
	require.NoError(t, g.Resolve(context.Background(), sess, gate.Reject))

	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	_, statErr := os.Stat(artifact)
	assert.True(t, os.IsNotExist(statErr))
}

func TestResolve_InsertFailureKeepsSessionState(t *testing.T) {
	t.Parallel()

	store := new(mocks.MockKnowledgeStore)
	g, err := gate.New(store, zap.NewNop())
	require.NoError(t, err)

	sess, _ := pendingSession(t)
	store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	err = g.Resolve(context.Background(), sess, gate.Confirm)
	require.Error(t, err)

	// Write failure is reported but prior state is untouched.
	assert.Equal(t, schemas.OutcomePendingConfirmation, sess.Outcome().Kind)
}

func TestResolve_RequiresPendingSession(t *testing.T) {
	t.Parallel()

	store := new(mocks.MockKnowledgeStore)
	g, err := gate.New(store, zap.NewNop())
	require.NoError(t, err)

	sess, err := session.New("Open notepad", 1, zap.NewNop())
	require.NoError(t, err)

	assert.Error(t, g.Resolve(context.Background(), sess, gate.Confirm))
}

func TestResolve_UnknownDecision(t *testing.T) {
	t.Parallel()

	store := new(mocks.MockKnowledgeStore)
	g, err := gate.New(store, zap.NewNop())
	require.NoError(t, err)

	sess, _ := pendingSession(t)
	assert.Error(t, g.Resolve(context.Background(), sess, gate.Decision("maybe")))
}
