package usage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/speakbot/internal/observability"
	"github.com/ent0n29/speakbot/internal/store"
)

const dayLayout = "2006-01-02"

// DialogCounter seeds a fresh tally from persisted voice exchanges.
type DialogCounter interface {
	CountDialogsSince(ctx context.Context, userKey, contentType string, since time.Time) (int, error)
}

// Entitlement decides whether a user may exceed the daily quota.
type Entitlement interface {
	CheckEntitlement(ctx context.Context, userKey string) bool
}

type Config struct {
	DailyQuota int
	Gating     bool
	Location   *time.Location
}

// Snapshot is the current day's usage for one user.
type Snapshot struct {
	UserKey string `json:"user_key"`
	Day     string `json:"day"`
	Count   int    `json:"count"`
	Quota   int    `json:"quota"`
	Gating  bool   `json:"gating"`
}

// Counter meters voice exchanges per user per quota day.
type Counter struct {
	cfg         Config
	tally       Tally
	dialogs     DialogCounter
	entitlement Entitlement
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewCounter(cfg Config, tally Tally, dialogs DialogCounter, entitlement Entitlement, logger *zap.Logger, metrics *observability.Metrics) *Counter {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{
		cfg:         cfg,
		tally:       tally,
		dialogs:     dialogs,
		entitlement: entitlement,
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// CheckAndIncrement reports whether a voice exchange may proceed and, if so,
// counts it. A denied request is not counted.
func (c *Counter) CheckAndIncrement(ctx context.Context, userKey string) bool {
	key := c.seed(ctx, userKey)

	if !c.cfg.Gating {
		if _, err := c.tally.Increment(ctx, key); err != nil {
			c.logger.Warn("usage increment failed", zap.String("user", userKey), zap.Error(err))
		}
		c.metrics.QuotaDecision("allowed")
		return true
	}

	n, ok, err := c.tally.IncrementIfBelow(ctx, key, c.cfg.DailyQuota)
	if err != nil {
		c.logger.Warn("usage increment failed", zap.String("user", userKey), zap.Error(err))
		c.metrics.QuotaDecision("allowed")
		return true
	}
	if ok {
		c.metrics.QuotaDecision("allowed")
		return true
	}

	if !c.entitlement.CheckEntitlement(ctx, userKey) {
		c.logger.Info("voice quota exhausted",
			zap.String("user", userKey),
			zap.Int("count", n),
			zap.Int("quota", c.cfg.DailyQuota),
		)
		c.metrics.QuotaDecision("denied")
		return false
	}
	if _, err := c.tally.Increment(ctx, key); err != nil {
		c.logger.Warn("usage increment failed", zap.String("user", userKey), zap.Error(err))
	}
	c.metrics.QuotaDecision("entitled")
	return true
}

// Today reports the user's count for the current quota day.
func (c *Counter) Today(ctx context.Context, userKey string) (Snapshot, error) {
	key := c.seed(ctx, userKey)
	n, err := c.tally.Count(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		UserKey: userKey,
		Day:     key.Day,
		Count:   n,
		Quota:   c.cfg.DailyQuota,
		Gating:  c.cfg.Gating,
	}, nil
}

// DayStart is midnight of the current quota day.
func (c *Counter) DayStart() time.Time {
	now := c.now().In(c.cfg.Location)
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.cfg.Location)
}

func (c *Counter) Mode() string {
	return c.tally.Mode()
}

func (c *Counter) seed(ctx context.Context, userKey string) Key {
	start := c.DayStart()
	key := Key{Day: start.Format(dayLayout), User: userKey}

	seeded, err := c.tally.Seeded(ctx, key)
	if err != nil {
		c.logger.Warn("usage seed check failed", zap.String("user", userKey), zap.Error(err))
		return key
	}
	if seeded {
		return key
	}

	n, err := c.dialogs.CountDialogsSince(ctx, userKey, store.ContentVoice, start)
	if err != nil {
		c.logger.Warn("usage seed query failed, starting from zero", zap.String("user", userKey), zap.Error(err))
		n = 0
	}
	if err := c.tally.Seed(ctx, key, n); err != nil {
		c.logger.Warn("usage seed failed", zap.String("user", userKey), zap.Error(err))
	}
	return key
}
