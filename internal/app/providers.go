package app

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ent0n29/speakbot/internal/config"
	"github.com/ent0n29/speakbot/internal/entitlement"
	"github.com/ent0n29/speakbot/internal/llm"
	"github.com/ent0n29/speakbot/internal/observability"
	"github.com/ent0n29/speakbot/internal/speech"
	"github.com/ent0n29/speakbot/internal/usage"
)

type providerSetup struct {
	llm         llm.Client
	synthesizer speech.Synthesizer
	transcoder  *speech.Transcoder
	detail      string
}

// resolveProviders builds the LLM and speech stack. The OpenAI client is
// shared so speech can fail over to OpenAI TTS on the same key.
func resolveProviders(cfg config.Config, logger *zap.Logger) (providerSetup, error) {
	client, err := llm.NewClient(llm.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.OpenAIAPIKey,
		BaseURL:  cfg.OpenAIBaseURL,
		Timeout:  cfg.LLMTimeout,
	})
	if err != nil {
		return providerSetup{}, fmt.Errorf("llm init failed: %w", err)
	}

	var raw *openai.Client
	if oc, ok := client.(*llm.OpenAIClient); ok {
		raw = oc.Raw()
	}
	synth, err := speech.NewSynthesizer(speech.Config{
		Provider:    cfg.SpeechProvider,
		AzureKey:    cfg.AzureSpeechKey,
		AzureRegion: cfg.AzureSpeechRegion,
		Timeout:     cfg.LLMTimeout,
	}, raw)
	if err != nil {
		return providerSetup{}, fmt.Errorf("speech init failed: %w", err)
	}

	transcoder := speech.NewTranscoder(cfg.FFmpegPath)
	if !transcoder.Available() {
		logger.Warn("ffmpeg not found; voice messages will fail", zap.String("path", cfg.FFmpegPath))
	}

	return providerSetup{
		llm:         client,
		synthesizer: synth,
		transcoder:  transcoder,
		detail:      fmt.Sprintf("llm=%s speech=%s", client.Name(), synth.Name()),
	}, nil
}

// NewEntitlementClient connects the membership registry when an RPC URL is
// configured. Without one every user is treated as a non-member.
func NewEntitlementClient(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (*entitlement.Client, string, func(), error) {
	if strings.TrimSpace(cfg.EthRPCURL) == "" {
		return entitlement.NewClient(entitlement.DisabledOracle{}, cfg.VIPCacheTTL, logger, metrics), "disabled", func() {}, nil
	}
	oracle, err := entitlement.DialContractOracle(ctx, cfg.EthRPCURL, cfg.VIPContractAddr)
	if err != nil {
		return nil, "", nil, fmt.Errorf("membership registry init failed: %w", err)
	}
	return entitlement.NewClient(oracle, cfg.VIPCacheTTL, logger, metrics), "contract", oracle.Close, nil
}

func newTally(ctx context.Context, cfg config.Config) (usage.Tally, func() error, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return usage.NewMemoryTally(), func() error { return nil }, nil
	}
	tally, err := usage.NewRedisTallyFromURL(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("usage tally init failed: %w", err)
	}
	return tally, tally.Close, nil
}
