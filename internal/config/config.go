package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the bot.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	LogLevel  string
	LogFormat string

	TelegramToken       string
	TelegramAPIEndpoint string
	TelegramPollTimeout time.Duration
	TelegramSendRate    float64
	GroupPrefix         string

	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	DefaultModel  string
	LLMTimeout    time.Duration

	SpeechProvider    string
	AzureSpeechKey    string
	AzureSpeechRegion string
	FFmpegPath        string
	VoiceWorkDir      string

	VoiceDailyQuota  int
	VIPGatingEnabled bool
	QuotaTimezone    string
	VIPSignupURL     string

	EthRPCURL        string
	VIPContractAddr  string
	VIPCacheTTL      time.Duration
	SignerPrivateKey string

	StoreURL      string
	MongoDatabase string
	RedisURL      string

	SessionIdleTimeout time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "speakbot"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		LogFormat:           envOrDefault("LOG_FORMAT", "json"),
		TelegramToken:       stringsTrimSpace("TELEGRAM_BOT_TOKEN"),
		TelegramAPIEndpoint: stringsTrimSpace("TELEGRAM_API_ENDPOINT"),
		GroupPrefix:         envOrDefault("GROUP_PREFIX", "/gpt"),
		LLMProvider:         envOrDefault("LLM_PROVIDER", "auto"),
		OpenAIAPIKey:        stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:       stringsTrimSpace("OPENAI_BASE_URL"),
		DefaultModel:        envOrDefault("DEFAULT_MODEL", "gpt-3.5-turbo"),
		SpeechProvider:      envOrDefault("SPEECH_PROVIDER", "auto"),
		AzureSpeechKey:      stringsTrimSpace("AZURE_SPEECH_KEY"),
		AzureSpeechRegion:   stringsTrimSpace("AZURE_SPEECH_REGION"),
		FFmpegPath:          envOrDefault("FFMPEG_PATH", "ffmpeg"),
		VoiceWorkDir:        envOrDefault("VOICE_WORK_DIR", filepath.Join(os.TempDir(), "speakbot")),
		QuotaTimezone:       envOrDefault("QUOTA_TIMEZONE", "Local"),
		VIPSignupURL:        envOrDefault("VIP_SIGNUP_URL", "https://chatbot.cryptometa.ai"),
		EthRPCURL:           stringsTrimSpace("ETH_RPC_URL"),
		VIPContractAddr:     stringsTrimSpace("VIP_CONTRACT_ADDR"),
		SignerPrivateKey:    stringsTrimSpace("SIGNER_PRIVATE_KEY"),
		StoreURL:            stringsTrimSpace("STORE_URL"),
		MongoDatabase:       envOrDefault("MONGO_DATABASE", "chatbot"),
		RedisURL:            stringsTrimSpace("REDIS_URL"),
		ShutdownTimeout:     15 * time.Second,
		TelegramPollTimeout: 60 * time.Second,
		TelegramSendRate:    30,
		LLMTimeout:          60 * time.Second,
		VoiceDailyQuota:     10,
		VIPGatingEnabled:    false,
		VIPCacheTTL:         time.Hour,
		SessionIdleTimeout:  30 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TelegramPollTimeout, err = durationFromEnv("TELEGRAM_POLL_TIMEOUT", cfg.TelegramPollTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TelegramSendRate, err = floatFromEnv("TELEGRAM_SEND_RATE", cfg.TelegramSendRate)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.VoiceDailyQuota, err = intFromEnv("VOICE_DAILY_QUOTA", cfg.VoiceDailyQuota)
	if err != nil {
		return Config{}, err
	}
	cfg.VIPGatingEnabled, err = boolFromEnv("VIP_GATING_ENABLED", cfg.VIPGatingEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.VIPCacheTTL, err = durationFromEnv("VIP_CACHE_TTL", cfg.VIPCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTimeout, err = durationFromEnv("SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}

	if cfg.VoiceDailyQuota < 0 {
		return Config{}, fmt.Errorf("VOICE_DAILY_QUOTA must be >= 0")
	}
	if cfg.VIPCacheTTL < 0 {
		return Config{}, fmt.Errorf("VIP_CACHE_TTL must be >= 0")
	}
	if cfg.SessionIdleTimeout < time.Minute {
		return Config{}, fmt.Errorf("SESSION_IDLE_TIMEOUT must be at least 1m")
	}
	if cfg.TelegramSendRate <= 0 {
		return Config{}, fmt.Errorf("TELEGRAM_SEND_RATE must be positive")
	}
	if _, err := cfg.QuotaLocation(); err != nil {
		return Config{}, err
	}
	if cfg.EthRPCURL != "" && !isHexAddress(cfg.VIPContractAddr) {
		return Config{}, fmt.Errorf("VIP_CONTRACT_ADDR must be a 0x-prefixed 20 byte hex address when ETH_RPC_URL is set")
	}
	if !oneOf(cfg.LLMProvider, "auto", "openai", "mock") {
		return Config{}, fmt.Errorf("invalid LLM_PROVIDER: %q (expected auto|openai|mock)", cfg.LLMProvider)
	}
	if !oneOf(cfg.SpeechProvider, "auto", "azure", "openai", "mock") {
		return Config{}, fmt.Errorf("invalid SPEECH_PROVIDER: %q (expected auto|azure|openai|mock)", cfg.SpeechProvider)
	}
	if !oneOf(cfg.LogFormat, "json", "console") {
		return Config{}, fmt.Errorf("invalid LOG_FORMAT: %q (expected json|console)", cfg.LogFormat)
	}

	return cfg, nil
}

// QuotaLocation resolves the timezone whose midnight starts a new quota day.
func (c Config) QuotaLocation() (*time.Location, error) {
	name := strings.TrimSpace(c.QuotaTimezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("QUOTA_TIMEZONE parse error: %w", err)
	}
	return loc, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func oneOf(v string, options ...string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func isHexAddress(v string) bool {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "0x") && !strings.HasPrefix(v, "0X") {
		return false
	}
	v = v[2:]
	if len(v) != 40 {
		return false
	}
	for _, c := range v {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
