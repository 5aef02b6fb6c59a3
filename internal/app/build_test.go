package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/speakbot/internal/config"
)

func fakeTelegram(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Speak","username":"speakbot"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

var metricsSeq atomic.Int64

func testConfig(t *testing.T, telegramURL string) config.Config {
	return config.Config{
		MetricsNamespace:    fmt.Sprintf("test_app_%d", metricsSeq.Add(1)),
		TelegramToken:       "123:abc",
		TelegramAPIEndpoint: telegramURL + "/bot%s/%s",
		TelegramPollTimeout: time.Second,
		TelegramSendRate:    30,
		GroupPrefix:         "/gpt",
		LLMProvider:         "mock",
		DefaultModel:        "gpt-3.5-turbo",
		SpeechProvider:      "mock",
		FFmpegPath:          "ffmpeg-not-installed",
		VoiceWorkDir:        t.TempDir(),
		VoiceDailyQuota:     3,
		VIPGatingEnabled:    true,
		QuotaTimezone:       "UTC",
		VIPCacheTTL:         time.Minute,
		SessionIdleTimeout:  time.Minute,
	}
}

func TestBuildWiresInMemoryStack(t *testing.T) {
	ts := fakeTelegram(t)
	result, err := Build(context.Background(), testConfig(t, ts.URL), nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, result.Cleanup()) }()

	assert.Contains(t, result.Detail, "bot=@speakbot")
	assert.Contains(t, result.Detail, "llm=mock")
	assert.Contains(t, result.Detail, "store=in-memory")
	assert.Contains(t, result.Detail, "tally=memory")
	assert.Contains(t, result.Detail, "entitlement=disabled")
	require.NotNil(t, result.Dispatcher)
	require.NotNil(t, result.Poller)

	api := httptest.NewServer(result.API.Router())
	defer api.Close()
	res, err := http.Get(api.URL + "/v1/users/100/usage")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestBuildRequiresTelegramToken(t *testing.T) {
	ts := fakeTelegram(t)
	cfg := testConfig(t, ts.URL)
	cfg.TelegramToken = ""
	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "TELEGRAM_BOT_TOKEN")
}

func TestBuildRejectsUnknownStoreScheme(t *testing.T) {
	ts := fakeTelegram(t)
	cfg := testConfig(t, ts.URL)
	cfg.StoreURL = "sqlite:///tmp/bot.db"
	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "store init failed")
}
