package speech

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/speakbot/internal/audio"
	"github.com/ent0n29/speakbot/internal/preferences"
)

var errEmptyText = errors.New("nothing to synthesize")

// MockSynthesizer writes silence roughly as long as the text would take to
// read aloud.
type MockSynthesizer struct{}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (s *MockSynthesizer) Name() string { return "mock" }

func (s *MockSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := SanitizeText(req.Text)
	if text == "" {
		return errEmptyText
	}
	d := time.Duration(float64(utf8.RuneCountInString(text)*60*int(time.Millisecond)) / preferences.SpeedMultiplier(req.Rate))
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return audio.WriteSilenceFile(req.OutputPath, d, 16000)
}
