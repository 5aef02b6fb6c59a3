package preferences

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/speakbot/internal/store"
)

func TestSetSpeedFormatsAndClamps(t *testing.T) {
	reg := NewRegistry(store.NewInMemoryStore(), nil, nil)
	ctx := context.Background()

	cases := []struct {
		raw  string
		want string
	}{
		{"3", "+100.00%"},
		{"0.1", "-50.00%"},
		{"", "0.00%"},
		{"abc", "0.00%"},
		{"1", "0.00%"},
		{"1.1", "+10.00%"},
		{"0.75", "-25.00%"},
		{"NaN", "0.00%"},
	}
	for _, tc := range cases {
		if got := reg.SetSpeed(ctx, "0xabc", tc.raw); got != tc.want {
			t.Fatalf("SetSpeed(%q) = %q, want %q", tc.raw, got, tc.want)
		}
		if got := reg.Speed(ctx, "0xabc"); got != tc.want {
			t.Fatalf("Speed() after SetSpeed(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
	reg.Flush()
}

func TestSpeedMultiplierRoundTrip(t *testing.T) {
	for _, v := range []float64{0.5, 0.8, 1, 1.25, 2} {
		got := SpeedMultiplier(FormatRate(v))
		assert.InDelta(t, v, got, 0.0001, "rate %q", FormatRate(v))
	}
	assert.Equal(t, 1.0, SpeedMultiplier("garbage"))
}

func TestSetLanguageUnknownLeavesProfileUnchanged(t *testing.T) {
	reg := NewRegistry(store.NewInMemoryStore(), nil, nil)
	ctx := context.Background()

	_, err := reg.SetLanguage(ctx, "0xabc", "UK Male")
	require.NoError(t, err)

	_, err = reg.SetLanguage(ctx, "0xabc", "Klingon")
	require.ErrorIs(t, err, ErrUnknownLanguage)
	assert.Contains(t, err.Error(), "Klingon")

	got := reg.LanguageProfile(ctx, "0xabc")
	assert.Equal(t, "en-GB-RyanNeural", got.SynthesisVoice)
	reg.Flush()
}

func TestSetLanguageAcceptsChineseAlias(t *testing.T) {
	reg := NewRegistry(store.NewInMemoryStore(), nil, nil)
	p, err := reg.SetLanguage(context.Background(), "0xabc", "德语")
	require.NoError(t, err)
	assert.Equal(t, "de-DE", p.SynthesisLocale)
	reg.Flush()
}

func TestSettingsPersistAndLoadThrough(t *testing.T) {
	backend := store.NewInMemoryStore()
	ctx := context.Background()

	first := NewRegistry(backend, nil, nil)
	_, err := first.SetLanguage(ctx, "0xabc", "japanese")
	require.NoError(t, err)
	first.SetSpeed(ctx, "0xabc", "1.5")
	first.SetSystemRole(ctx, "0xabc", "friendly tutor")
	first.SetModelOverride(ctx, "0xabc", ModelGPT4)
	first.Flush()

	second := NewRegistry(backend, nil, nil)
	assert.Equal(t, "ja-JP", second.LanguageProfile(ctx, "0xabc").RecognitionLocale)
	assert.Equal(t, "+50.00%", second.Speed(ctx, "0xabc"))
	assert.Equal(t, "friendly tutor", second.SystemRole(ctx, "0xabc"))
	assert.Equal(t, ModelGPT4, second.ModelOverride(ctx, "0xabc"))
}

func TestModelOverrideResetPersists(t *testing.T) {
	backend := store.NewInMemoryStore()
	ctx := context.Background()

	first := NewRegistry(backend, nil, nil)
	first.SetModelOverride(ctx, "0xabc", ModelGPT4)
	first.SetModelOverride(ctx, "0xabc", "")
	first.Flush()
	assert.Empty(t, first.ModelOverride(ctx, "0xabc"))

	second := NewRegistry(backend, nil, nil)
	assert.Empty(t, second.ModelOverride(ctx, "0xabc"))
}

func TestDefaultsForUnknownUser(t *testing.T) {
	reg := NewRegistry(store.NewInMemoryStore(), nil, nil)
	ctx := context.Background()

	assert.Equal(t, DefaultLanguage, reg.LanguageProfile(ctx, "0xnew"))
	assert.Equal(t, NormalRate, reg.Speed(ctx, "0xnew"))
	assert.Equal(t, DefaultSystemRole, reg.SystemRole(ctx, "0xnew"))
	assert.Equal(t, "", reg.ModelOverride(ctx, "0xnew"))
}

func TestEmptyRoleResetsToDefault(t *testing.T) {
	reg := NewRegistry(store.NewInMemoryStore(), nil, nil)
	ctx := context.Background()

	reg.SetSystemRole(ctx, "0xabc", "pirate")
	assert.Equal(t, DefaultSystemRole, reg.SetSystemRole(ctx, "0xabc", "   "))
	assert.Equal(t, DefaultSystemRole, reg.SystemRole(ctx, "0xabc"))
	reg.Flush()
}

type flakyBackend struct {
	*store.InMemoryStore
	mu        sync.Mutex
	failLoads bool
	loads     int
}

func (f *flakyBackend) SystemRole(ctx context.Context, userKey string) (string, error) {
	f.mu.Lock()
	f.loads++
	fail := f.failLoads
	f.mu.Unlock()
	if fail {
		return "", errors.New("connection reset")
	}
	return f.InMemoryStore.SystemRole(ctx, userKey)
}

func (f *flakyBackend) UpsertSpeed(context.Context, string, string) error {
	return errors.New("disk full")
}

func TestLoadErrorIsNotCached(t *testing.T) {
	backend := &flakyBackend{InMemoryStore: store.NewInMemoryStore(), failLoads: true}
	ctx := context.Background()
	require.NoError(t, backend.UpsertSystemRole(ctx, "0xabc", "stored role"))

	reg := NewRegistry(backend, nil, nil)
	assert.Equal(t, DefaultSystemRole, reg.SystemRole(ctx, "0xabc"))

	backend.mu.Lock()
	backend.failLoads = false
	backend.mu.Unlock()

	assert.Equal(t, "stored role", reg.SystemRole(ctx, "0xabc"))
	assert.Equal(t, "stored role", reg.SystemRole(ctx, "0xabc"))
	assert.Equal(t, 2, backend.loads)
}

func TestPersistFailureKeepsInMemoryValue(t *testing.T) {
	backend := &flakyBackend{InMemoryStore: store.NewInMemoryStore()}
	reg := NewRegistry(backend, nil, nil)
	ctx := context.Background()

	assert.Equal(t, "+20.00%", reg.SetSpeed(ctx, "0xabc", "1.2"))
	reg.Flush()
	assert.Equal(t, "+20.00%", reg.Speed(ctx, "0xabc"))
}

func TestResolveModel(t *testing.T) {
	cases := map[string]string{
		"4":             ModelGPT4,
		"4-32k":         ModelGPT432K,
		"3.5":           ModelGPT35Turb,
		"GPT-4":         ModelGPT4,
		"gpt-3.5-turbo": ModelGPT35Turb,
	}
	for arg, want := range cases {
		got, ok := ResolveModel(arg)
		if !ok || got != want {
			t.Fatalf("ResolveModel(%q) = %q, %v, want %q", arg, got, ok, want)
		}
	}
	if got, ok := ResolveModel(" Default "); !ok || got != "" {
		t.Fatalf("ResolveModel(default) = %q, %v, want \"\", true", got, ok)
	}
	if _, ok := ResolveModel("5"); ok {
		t.Fatalf("ResolveModel(5) ok = true, want false")
	}
	assert.True(t, RequiresEntitlement(ModelGPT432K))
	assert.False(t, RequiresEntitlement(ModelGPT35Turb))
}
