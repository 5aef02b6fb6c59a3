package usage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/speakbot/internal/store"
)

type fakeEntitlement struct {
	entitled bool
	calls    atomic.Int32
}

func (f *fakeEntitlement) CheckEntitlement(context.Context, string) bool {
	f.calls.Add(1)
	return f.entitled
}

type failingDialogs struct{}

func (failingDialogs) CountDialogsSince(context.Context, string, string, time.Time) (int, error) {
	return 0, errors.New("store offline")
}

func newTestCounter(quota int, gating bool, dialogs DialogCounter, ent Entitlement) *Counter {
	c := NewCounter(Config{DailyQuota: quota, Gating: gating, Location: time.UTC}, NewMemoryTally(), dialogs, ent, nil, nil)
	c.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestQuotaRejectsAfterLimitWhenNotEntitled(t *testing.T) {
	ent := &fakeEntitlement{}
	c := newTestCounter(3, true, store.NewInMemoryStore(), ent)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if !c.CheckAndIncrement(ctx, "0xabc") {
			t.Fatalf("voice message %d rejected, want accepted", i)
		}
	}
	if c.CheckAndIncrement(ctx, "0xabc") {
		t.Fatalf("voice message 4 accepted, want rejected")
	}

	snap, err := c.Today(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Count, "denied request must not be counted")
	assert.Equal(t, "2026-10-19", snap.Day)
	assert.EqualValues(t, 1, ent.calls.Load())
}

func TestQuotaAllowsEntitledUsersPastLimit(t *testing.T) {
	ent := &fakeEntitlement{entitled: true}
	c := newTestCounter(1, true, store.NewInMemoryStore(), ent)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.True(t, c.CheckAndIncrement(ctx, "0xabc"))
	}
	snap, err := c.Today(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Count)
	assert.EqualValues(t, 3, ent.calls.Load())
}

func TestQuotaNotEnforcedWithoutGating(t *testing.T) {
	ent := &fakeEntitlement{}
	c := newTestCounter(1, false, store.NewInMemoryStore(), ent)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, c.CheckAndIncrement(ctx, "0xabc"))
	}
	assert.EqualValues(t, 0, ent.calls.Load())
}

func TestSeedCountsPersistedVoiceExchanges(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	today := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	for _, rec := range []store.DialogRecord{
		{UserKey: "0xabc", ContentType: store.ContentVoice, CreatedAt: today},
		{UserKey: "0xabc", ContentType: store.ContentVoice, CreatedAt: today.Add(time.Hour)},
		{UserKey: "0xabc", ContentType: store.ContentText, CreatedAt: today},
		{UserKey: "0xabc", ContentType: store.ContentVoice, CreatedAt: today.Add(-24 * time.Hour)},
	} {
		require.NoError(t, st.InsertDialog(ctx, rec))
	}

	c := newTestCounter(3, true, st, &fakeEntitlement{})
	require.True(t, c.CheckAndIncrement(ctx, "0xabc"))
	require.False(t, c.CheckAndIncrement(ctx, "0xabc"))
}

func TestSeedFailureStartsFromZero(t *testing.T) {
	c := newTestCounter(2, true, failingDialogs{}, &fakeEntitlement{})
	ctx := context.Background()

	require.True(t, c.CheckAndIncrement(ctx, "0xabc"))
	require.True(t, c.CheckAndIncrement(ctx, "0xabc"))
	require.False(t, c.CheckAndIncrement(ctx, "0xabc"))
}

func TestNewDayReseeds(t *testing.T) {
	c := newTestCounter(1, true, store.NewInMemoryStore(), &fakeEntitlement{})
	ctx := context.Background()

	require.True(t, c.CheckAndIncrement(ctx, "0xabc"))
	require.False(t, c.CheckAndIncrement(ctx, "0xabc"))

	c.now = func() time.Time { return time.Date(2026, 10, 20, 0, 0, 1, 0, time.UTC) }
	require.True(t, c.CheckAndIncrement(ctx, "0xabc"))
}

func TestDayStartUsesConfiguredLocation(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	c := NewCounter(Config{DailyQuota: 1, Location: shanghai}, NewMemoryTally(), store.NewInMemoryStore(), &fakeEntitlement{}, nil, nil)
	// 18:00 UTC is already the next day in Shanghai.
	c.now = func() time.Time { return time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC) }

	start := c.DayStart()
	assert.Equal(t, "2026-10-20", start.Format(dayLayout))
	assert.Equal(t, time.Date(2026, 10, 19, 16, 0, 0, 0, time.UTC), start.UTC())
}

func TestConcurrentRequestsNeverExceedQuota(t *testing.T) {
	c := newTestCounter(5, true, store.NewInMemoryStore(), &fakeEntitlement{})
	ctx := context.Background()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.CheckAndIncrement(ctx, "0xabc") {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 5, accepted.Load())
}
