package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ent0n29/speakbot/internal/store"
)

// promptFile is the YAML layout accepted by "prompts import".
type promptFile struct {
	Prompts []store.PromptRecord `yaml:"prompts"`
}

func newPromptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage the prompt library searched by /searchPrompt",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert prompts from a YAML file into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readPromptFile(args[0])
			if err != nil {
				return err
			}
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			durable, err := store.NewStore(cmd.Context(), cfg.StoreURL, cfg.MongoDatabase)
			if err != nil {
				return fmt.Errorf("store init failed: %w", err)
			}
			defer durable.Close()

			n, err := importPrompts(cmd.Context(), durable, records)
			logger.Info("prompts imported", zap.String("store", durable.Mode()), zap.Int("count", n))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d prompts into %s store\n", n, durable.Mode())
			return err
		},
	})
	return cmd
}

func readPromptFile(path string) ([]store.PromptRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file promptFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, p := range file.Prompts {
		if strings.TrimSpace(p.Act) == "" || strings.TrimSpace(p.Prompt) == "" {
			return nil, fmt.Errorf("parse %s: prompt %d needs act and prompt", path, i)
		}
	}
	return file.Prompts, nil
}

type promptWriter interface {
	UpsertPrompt(ctx context.Context, prompt store.PromptRecord) error
}

func importPrompts(ctx context.Context, w promptWriter, records []store.PromptRecord) (int, error) {
	for i, r := range records {
		if err := w.UpsertPrompt(ctx, r); err != nil {
			return i, fmt.Errorf("upsert %q: %w", r.Act, err)
		}
	}
	return len(records), nil
}
