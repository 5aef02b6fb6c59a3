package speech

import (
	"context"
	"fmt"
	"sync/atomic"
)

// FailoverSynthesizer prefers the primary provider and switches to the
// fallback when it fails. Once the fallback succeeds it stays active until it
// fails itself; then the primary is retried.
type FailoverSynthesizer struct {
	primary        Synthesizer
	fallback       Synthesizer
	fallbackActive atomic.Bool
}

func NewFailoverSynthesizer(primary, fallback Synthesizer) *FailoverSynthesizer {
	return &FailoverSynthesizer{primary: primary, fallback: fallback}
}

func (s *FailoverSynthesizer) Name() string {
	return s.primary.Name() + "+" + s.fallback.Name()
}

func (s *FailoverSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) error {
	first, second := s.primary, s.fallback
	if s.fallbackActive.Load() {
		first, second = s.fallback, s.primary
	}

	firstErr := first.Synthesize(ctx, req)
	if firstErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return firstErr
	}
	secondErr := second.Synthesize(ctx, req)
	if secondErr != nil {
		return fmt.Errorf("%s tts failed: %v; %s tts failed: %w", first.Name(), firstErr, second.Name(), secondErr)
	}
	s.fallbackActive.Store(second == s.fallback)
	return nil
}
