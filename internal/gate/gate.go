// Package gate implements the human confirmation step. It is the only
// writer of knowledge entries: a success verdict is never persisted
// without an explicit Confirm decision.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/session"
)

// Decision is the human's verdict on a pending session.
type Decision string

const (
	Confirm Decision = "confirm"
	Reject  Decision = "reject"
)

// Gate resolves pending-confirmation sessions.
type Gate struct {
	store  schemas.KnowledgeStore
	logger *zap.Logger
}

// New builds the gate around the knowledge store.
func New(store schemas.KnowledgeStore, logger *zap.Logger) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("cannot create confirmation gate with a nil knowledge store")
	}
	return &Gate{store: store, logger: logger.Named("gate")}, nil
}

// Resolve applies the decision. Confirm persists a knowledge entry; a
// write failure is reported but leaves session state untouched. Reject
// discards silently. Either way the session's transient artifacts are
// released.
func (g *Gate) Resolve(ctx context.Context, sess *session.AutomationSession, decision Decision) error {
	defer sess.Cleanup()

	pending := sess.Pending()
	if pending == nil {
		return fmt.Errorf("session %s is not awaiting confirmation", sess.ID)
	}

	switch decision {
	case Confirm:
		entry := schemas.KnowledgeEntry{
			ID:             uuid.New().String(),
			AbstractPrompt: pending.AbstractInstruction,
			OriginalPrompt: pending.Instruction,
			Code:           pending.Code,
			CreatedAt:      time.Now().UTC(),
		}
		if err := g.store.Insert(ctx, entry); err != nil {
			return fmt.Errorf("failed to persist confirmed episode: %w", err)
		}
		sess.SetSucceeded()
		g.logger.Info("Episode confirmed and persisted",
			zap.String("session", sess.ID),
			zap.String("entry", entry.ID),
		)
		return nil

	case Reject:
		g.logger.Info("Episode rejected, nothing persisted", zap.String("session", sess.ID))
		return nil

	default:
		return fmt.Errorf("unknown confirmation decision %q", decision)
	}
}
