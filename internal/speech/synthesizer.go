// Package speech synthesizes replies and converts audio between the formats
// Telegram, the recognizer and the synthesizer use.
package speech

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ent0n29/speakbot/internal/store"
)

// SynthesisRequest renders Text in the profile's voice to OutputPath as WAV.
type SynthesisRequest struct {
	Text       string
	Profile    store.LanguageProfile
	Rate       string
	OutputPath string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) error
	Name() string
}

type Config struct {
	Provider    string
	AzureKey    string
	AzureRegion string
	Timeout     time.Duration
}

// NewSynthesizer picks a provider. In auto mode Azure is preferred, OpenAI
// takes over when Azure fails, and the mock is used when neither is set up.
func NewSynthesizer(cfg Config, openaiClient *openai.Client) (Synthesizer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}
	hasAzure := strings.TrimSpace(cfg.AzureKey) != "" && strings.TrimSpace(cfg.AzureRegion) != ""

	switch provider {
	case "auto":
		switch {
		case hasAzure && openaiClient != nil:
			return NewFailoverSynthesizer(NewAzureSynthesizer(cfg.AzureKey, cfg.AzureRegion, cfg.Timeout), NewOpenAISynthesizer(openaiClient)), nil
		case hasAzure:
			return NewAzureSynthesizer(cfg.AzureKey, cfg.AzureRegion, cfg.Timeout), nil
		case openaiClient != nil:
			return NewOpenAISynthesizer(openaiClient), nil
		default:
			return NewMockSynthesizer(), nil
		}
	case "azure":
		if !hasAzure {
			return nil, fmt.Errorf("AZURE_SPEECH_KEY and AZURE_SPEECH_REGION are required for the azure provider")
		}
		return NewAzureSynthesizer(cfg.AzureKey, cfg.AzureRegion, cfg.Timeout), nil
	case "openai":
		if openaiClient == nil {
			return nil, fmt.Errorf("an OpenAI client is required for the openai speech provider")
		}
		return NewOpenAISynthesizer(openaiClient), nil
	case "mock":
		return NewMockSynthesizer(), nil
	default:
		return nil, fmt.Errorf("unsupported speech provider %q", cfg.Provider)
	}
}
