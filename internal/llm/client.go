// Package llm talks to the completion and speech-recognition provider.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/speakbot/internal/conversation"
	"github.com/ent0n29/speakbot/internal/store"
)

const stopSequence = "###"

// CompletionRequest is one chat completion with the user's rolling context.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	History      []conversation.Turn
	Prompt       string
	MaxTokens    int
	// User is forwarded to the provider for abuse tracking.
	User string
}

type Completion struct {
	Text  string
	Usage store.Usage
}

// Client is the provider surface the dispatcher depends on.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
	// Transcribe returns the audio's text in its spoken language.
	Transcribe(ctx context.Context, audioPath string) (string, error)
	// TranslateToEnglish returns an English transcript of the audio.
	TranslateToEnglish(ctx context.Context, audioPath string) (string, error)
	Name() string
}

type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewClient picks a provider. "auto" uses OpenAI when a key is set and the
// mock otherwise.
func NewClient(cfg Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	switch provider {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout), nil
		}
		return NewMockClient(), nil
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// CleanCompletion drops a leading fragment that some models echo before the
// first blank line, then trims.
func CleanCompletion(text string) string {
	if i := strings.Index(text, "\n\n"); i > 0 {
		text = text[i+2:]
	}
	return strings.TrimSpace(text)
}
