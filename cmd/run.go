package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/capture"
	"github.com/deskpilot/deskpilot-cli/internal/completion"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/executor"
	"github.com/deskpilot/deskpilot-cli/internal/gate"
	"github.com/deskpilot/deskpilot-cli/internal/knowledge"
	"github.com/deskpilot/deskpilot-cli/internal/llmclient"
	"github.com/deskpilot/deskpilot-cli/internal/observability"
	"github.com/deskpilot/deskpilot-cli/internal/ocr"
	"github.com/deskpilot/deskpilot-cli/internal/orchestrator"
	"github.com/deskpilot/deskpilot-cli/internal/session"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var (
		autoConfirm bool
		noInput     bool
	)

	runCmd := &cobra.Command{
		Use:   "run \"<instruction>\"",
		Short: "Executes one natural-language automation instruction",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so CLI values override config file and env vars.
			if err := viper.BindPFlag("automation.max_retries", cmd.Flags().Lookup("retries")); err != nil {
				return err
			}
			if err := viper.BindPFlag("automation.top_k", cmd.Flags().Lookup("top-k")); err != nil {
				return err
			}
			if err := viper.BindPFlag("automation.settle_interval", cmd.Flags().Lookup("settle")); err != nil {
				return err
			}
			return viper.BindPFlag("capture.cdp_url", cmd.Flags().Lookup("cdp-url"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			sess, err := components.Orchestrator.Run(ctx, args[0])
			if err != nil {
				return err
			}

			switch sess.Outcome().Kind {
			case schemas.OutcomePendingConfirmation:
				return resolvePending(ctx, components, sess, autoConfirm, noInput, cmd.OutOrStdout(), cmd.InOrStdin())
			case schemas.OutcomeFailed:
				return fmt.Errorf("automation failed after %d attempts", sess.MaxRetries)
			default:
				return fmt.Errorf("automation aborted: %v", sess.Outcome().Error)
			}
		},
	}

	runCmd.Flags().Int("retries", 3, "maximum number of generation/execution attempts")
	runCmd.Flags().Int("top-k", 2, "number of knowledge examples to retrieve per attempt")
	runCmd.Flags().Duration("settle", 3*time.Second, "wait after launching generated code before capturing the after state")
	runCmd.Flags().String("cdp-url", "", "DevTools URL of a running browser to capture through")
	runCmd.Flags().BoolVarP(&autoConfirm, "yes", "y", false, "persist a verified episode without prompting")
	runCmd.Flags().BoolVar(&noInput, "no-input", false, "never prompt; discard the episode instead of persisting it")

	return runCmd
}

// resolvePending runs the confirmation gate for a verified session.
func resolvePending(ctx context.Context, components *runComponents, sess *session.AutomationSession, autoConfirm, noInput bool, out io.Writer, in io.Reader) error {
	pending := sess.Pending()
	fmt.Fprintf(out, "\nInstruction: %s\nGenerated code:\n\n%s\n\n", pending.Instruction, pending.Code)

	decision := gate.Reject
	switch {
	case autoConfirm:
		decision = gate.Confirm
	case noInput:
		fmt.Fprintln(out, "Running non-interactively, episode discarded.")
	default:
		fmt.Fprint(out, "Save this episode to the knowledge store? [y/N]: ")
		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if answer == "y" || answer == "yes" {
				decision = gate.Confirm
			}
		}
	}

	if err := components.Gate.Resolve(ctx, sess, decision); err != nil {
		return err
	}
	if decision == gate.Confirm {
		fmt.Fprintln(out, "Episode saved.")
	} else {
		fmt.Fprintln(out, "Episode discarded.")
	}
	return nil
}

// runComponents bundles everything the run command wires together.
type runComponents struct {
	Orchestrator *orchestrator.Orchestrator
	Gate         *gate.Gate
	Store        schemas.KnowledgeStore
	Executor     *executor.ScriptExecutor
}

// Shutdown releases component resources.
func (c *runComponents) Shutdown() {
	if c.Executor != nil {
		c.Executor.Close()
	}
	if c.Store != nil {
		c.Store.Close()
	}
}

// initializeComponents is the composition root for the automation loop.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	client, err := llmclient.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	completionSvc, err := completion.NewService(client, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	capturer, err := capture.New(cfg.Capture, logger)
	if err != nil {
		return nil, err
	}
	detector, err := ocr.NewClient(cfg.OCR, logger)
	if err != nil {
		return nil, err
	}
	exec, err := executor.New(cfg.Execution, logger)
	if err != nil {
		return nil, err
	}

	store, err := newKnowledgeStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(cfg.Automation, cfg.Capture.CDPURL, completionSvc, capturer, detector, exec, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	g, err := gate.New(store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &runComponents{
		Orchestrator: orch,
		Gate:         g,
		Store:        store,
		Executor:     exec,
	}, nil
}

// newKnowledgeStore builds the configured store backend.
func newKnowledgeStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.KnowledgeStore, error) {
	embedder, err := knowledge.NewOllamaEmbedder(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	switch cfg.Knowledge.Type {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Knowledge.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		return knowledge.NewPostgresStore(ctx, pool, embedder, logger)
	default:
		return knowledge.NewFileStore(cfg.Knowledge.Path, embedder, logger)
	}
}
