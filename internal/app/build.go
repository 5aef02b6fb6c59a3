package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/speakbot/internal/bot"
	"github.com/ent0n29/speakbot/internal/config"
	"github.com/ent0n29/speakbot/internal/conversation"
	"github.com/ent0n29/speakbot/internal/entitlement"
	"github.com/ent0n29/speakbot/internal/httpapi"
	"github.com/ent0n29/speakbot/internal/observability"
	"github.com/ent0n29/speakbot/internal/preferences"
	"github.com/ent0n29/speakbot/internal/session"
	"github.com/ent0n29/speakbot/internal/store"
	"github.com/ent0n29/speakbot/internal/telegram"
	"github.com/ent0n29/speakbot/internal/usage"
)

type BuildResult struct {
	Config      config.Config
	API         *httpapi.Server
	Sessions    *session.Manager
	Preferences *preferences.Registry
	Dispatcher  *bot.Dispatcher
	Poller      *telegram.Poller
	Metrics     *observability.Metrics
	Detail      string

	// Cleanup releases the store, tally and RPC connections.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	quotaLoc, err := cfg.QuotaLocation()
	if err != nil {
		return nil, err
	}

	var closers []func() error
	cleanup := func() error {
		var errs []string
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}
	fail := func(err error) (*BuildResult, error) {
		_ = cleanup()
		return nil, err
	}

	durable, err := store.NewStore(ctx, cfg.StoreURL, cfg.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}
	closers = append(closers, durable.Close)

	tally, closeTally, err := newTally(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeTally)

	entitlements, entitlementMode, closeOracle, err := NewEntitlementClient(ctx, cfg, logger.Named("entitlement"), metrics)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() error { closeOracle(); return nil })

	signer, err := entitlement.NewSigner(cfg.SignerPrivateKey)
	if err != nil {
		return fail(fmt.Errorf("signer init failed: %w", err))
	}
	if !signer.Enabled() {
		logger.Info("SIGNER_PRIVATE_KEY not set; /verify is disabled")
	}

	providers, err := resolveProviders(cfg, logger)
	if err != nil {
		return fail(err)
	}

	counter := usage.NewCounter(usage.Config{
		DailyQuota: cfg.VoiceDailyQuota,
		Gating:     cfg.VIPGatingEnabled,
		Location:   quotaLoc,
	}, tally, durable, entitlements, logger.Named("usage"), metrics)

	prefs := preferences.NewRegistry(durable, logger.Named("preferences"), metrics)

	sessions := session.NewManager(cfg.SessionIdleTimeout)
	sessions.SetExpireHook(func(session.Session) {
		metrics.SetActiveUsers(sessions.ActiveCount())
	})

	tg, err := telegram.NewClient(telegram.Config{
		Token:       cfg.TelegramToken,
		APIEndpoint: cfg.TelegramAPIEndpoint,
		PollTimeout: cfg.TelegramPollTimeout,
		SendRate:    cfg.TelegramSendRate,
	}, logger.Named("telegram"))
	if err != nil {
		return fail(fmt.Errorf("telegram init failed: %w", err))
	}

	conversations := conversation.NewStore(conversation.DefaultMaxTurns)
	dispatcher, err := bot.New(bot.Deps{
		Transport:     tg,
		LLM:           providers.llm,
		Synthesizer:   providers.synthesizer,
		Transcoder:    providers.transcoder,
		Sessions:      sessions,
		Conversations: conversations,
		Preferences:   prefs,
		Quota:         counter,
		Entitlement:   entitlements,
		Signer:        signer,
		Store:         durable,
		Metrics:       metrics,
		Logger:        logger.Named("bot"),
	}, bot.Options{
		GroupPrefix:   cfg.GroupPrefix,
		DefaultModel:  cfg.DefaultModel,
		WorkDir:       cfg.VoiceWorkDir,
		SignupURL:     cfg.VIPSignupURL,
		DailyQuota:    cfg.VoiceDailyQuota,
		QuotaLocation: quotaLoc,
	})
	if err != nil {
		return fail(err)
	}

	api := httpapi.New(httpapi.Status{
		StoreMode:      durable.Mode(),
		TallyMode:      counter.Mode(),
		LLMProvider:    providers.llm.Name(),
		SpeechProvider: providers.synthesizer.Name(),
		Entitlement:    entitlementMode,
		BotUsername:    tg.Username(),
	}, sessions, counter, metrics, logger.Named("http"))
	api.SetConversations(conversations)

	return &BuildResult{
		Config:      cfg,
		API:         api,
		Sessions:    sessions,
		Preferences: prefs,
		Dispatcher:  dispatcher,
		Poller:      telegram.NewPoller(tg, cfg.TelegramPollTimeout, logger.Named("poller")),
		Metrics:     metrics,
		Detail: fmt.Sprintf("bot=@%s %s store=%s tally=%s entitlement=%s",
			tg.Username(), providers.detail, durable.Mode(), counter.Mode(), entitlementMode),
		Cleanup: cleanup,
	}, nil
}
