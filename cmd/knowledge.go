package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/completion"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/llmclient"
	"github.com/deskpilot/deskpilot-cli/internal/observability"
	"github.com/google/uuid"
)

// newKnowledgeCmd groups the knowledge store maintenance commands.
func newKnowledgeCmd() *cobra.Command {
	knowledgeCmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Inspect and maintain the confirmed-episode knowledge store",
	}
	knowledgeCmd.AddCommand(newKnowledgeListCmd())
	knowledgeCmd.AddCommand(newKnowledgeImportCmd())
	return knowledgeCmd
}

func newKnowledgeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists every stored episode",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			store, err := newKnowledgeStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Knowledge store is empty.")
				return nil
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s\n", e.CreatedAt.Format("2006-01-02 15:04"), e.ID)
				fmt.Fprintf(out, "  abstract: %s\n", e.AbstractPrompt)
				fmt.Fprintf(out, "  original: %s\n", e.OriginalPrompt)
				fmt.Fprintf(out, "  code:     %d lines\n\n", strings.Count(e.Code, "\n")+1)
			}
			fmt.Fprintf(out, "%d entries.\n", len(entries))
			return nil
		},
	}
}

// importExample is one element of the import file: a JSON array of
// {original_prompt, code, optional abstract_prompt}.
type importExample struct {
	OriginalPrompt string `json:"original_prompt"`
	AbstractPrompt string `json:"abstract_prompt,omitempty"`
	Code           string `json:"code"`
}

func newKnowledgeImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Bulk-loads episodes from a JSON example file",
		Long: "Reads a JSON array of {original_prompt, code, abstract_prompt?} objects " +
			"and inserts each as a confirmed episode. Missing abstract prompts are " +
			"generated through the configured completion service.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read example file: %w", err)
			}
			var examples []importExample
			if err := json.Unmarshal(raw, &examples); err != nil {
				return fmt.Errorf("failed to parse example file: %w", err)
			}

			store, err := newKnowledgeStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			client, err := llmclient.NewClient(ctx, cfg.LLM, logger)
			if err != nil {
				return err
			}
			completionSvc, err := completion.NewService(client, cfg.LLM, logger)
			if err != nil {
				return err
			}

			imported := 0
			for i, ex := range examples {
				if ex.OriginalPrompt == "" || ex.Code == "" {
					logger.Warn("Skipping example with missing original_prompt or code", zap.Int("index", i))
					continue
				}

				abstract := ex.AbstractPrompt
				if abstract == "" {
					abstract, err = completionSvc.Abstract(ctx, ex.OriginalPrompt)
					if err != nil || abstract == "" {
						logger.Warn("Abstraction failed, indexing by original prompt",
							zap.Int("index", i), zap.Error(err))
						abstract = ex.OriginalPrompt
					}
				}

				entry := schemas.KnowledgeEntry{
					ID:             uuid.New().String(),
					AbstractPrompt: abstract,
					OriginalPrompt: ex.OriginalPrompt,
					Code:           ex.Code,
					CreatedAt:      time.Now().UTC(),
				}
				if err := store.Insert(ctx, entry); err != nil {
					return fmt.Errorf("failed to import example %d: %w", i+1, err)
				}
				imported++
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d examples.\n", imported, len(examples))
			return nil
		},
	}
}
