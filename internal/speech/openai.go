package speech

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ent0n29/speakbot/internal/preferences"
)

// OpenAISynthesizer uses the audio/speech endpoint. The model detects the
// language from the text, so only the rate is taken from the request.
type OpenAISynthesizer struct {
	client *openai.Client
	voice  openai.SpeechVoice
}

func NewOpenAISynthesizer(client *openai.Client) *OpenAISynthesizer {
	return &OpenAISynthesizer{client: client, voice: openai.VoiceAlloy}
}

func (s *OpenAISynthesizer) Name() string { return "openai" }

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) error {
	text := SanitizeText(req.Text)
	if text == "" {
		return errEmptyText
	}
	res, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatWav,
		Speed:          preferences.SpeedMultiplier(req.Rate),
	})
	if err != nil {
		return fmt.Errorf("openai speech: %w", err)
	}
	defer res.Close()
	return writeFile(req.OutputPath, res)
}
