package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ent0n29/speakbot/internal/config"
	"github.com/ent0n29/speakbot/internal/logging"
)

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	cmd := &cobra.Command{
		Use:          "speakbot",
		Short:        "Telegram chat and spoken-English practice bot",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}

	cmd.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before reading the environment (optional).")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("env-file")
		return loadEnvFile(path)
	}

	cmd.AddCommand(serve)
	cmd.AddCommand(newVIPCmd())
	cmd.AddCommand(newPromptsCmd())
	cmd.AddCommand(newTranscribeCmd())
	return cmd
}

// loadEnvFile fills unset variables from a dotenv file. A missing file is
// not an error.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadRuntime() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
