package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ent0n29/speakbot/internal/llm"
	"github.com/ent0n29/speakbot/internal/speech"
)

func newTranscribeCmd() *cobra.Command {
	var translate bool
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Run a local audio file through the speech-recognition provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client, err := llm.NewClient(llm.Config{
				Provider: cfg.LLMProvider,
				APIKey:   cfg.OpenAIAPIKey,
				BaseURL:  cfg.OpenAIBaseURL,
				Timeout:  cfg.LLMTimeout,
			})
			if err != nil {
				return fmt.Errorf("llm init failed: %w", err)
			}
			text, err := transcribeFile(cmd.Context(), client, speech.NewTranscoder(cfg.FFmpegPath), args[0], translate)
			if err != nil {
				return err
			}
			logger.Debug("transcribed", zap.String("provider", client.Name()), zap.Bool("translate", translate))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().BoolVar(&translate, "translate", false, "Translate to English, as the bot does for voice messages.")
	return cmd
}

type recognizer interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	TranslateToEnglish(ctx context.Context, audioPath string) (string, error)
}

type mp3Encoder interface {
	ToMP3(ctx context.Context, in, out string) error
}

// transcribeFile converts Telegram voice notes to MP3 first; other formats go
// to the provider as they are.
func transcribeFile(ctx context.Context, r recognizer, enc mp3Encoder, path string, translate bool) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ogg", ".oga", ".opus":
		dir, err := os.MkdirTemp("", "speakbot-transcribe-*")
		if err != nil {
			return "", err
		}
		defer os.RemoveAll(dir)
		mp3 := filepath.Join(dir, "input.mp3")
		if err := enc.ToMP3(ctx, path, mp3); err != nil {
			return "", fmt.Errorf("transcode %s: %w", path, err)
		}
		path = mp3
	}

	recognize := r.Transcribe
	if translate {
		recognize = r.TranslateToEnglish
	}
	text, err := recognize(ctx, path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
