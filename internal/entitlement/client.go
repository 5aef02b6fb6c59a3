package entitlement

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/speakbot/internal/observability"
)

// Oracle answers whether a user currently holds an active membership.
type Oracle interface {
	IsEntitled(ctx context.Context, userKey string) (bool, error)
}

type cacheEntry struct {
	checkedAt time.Time
}

// Client caches positive oracle answers. Negative answers are never cached so
// that an upgrade is seen on the next check.
type Client struct {
	oracle  Oracle
	ttl     time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu       sync.Mutex
	entitled map[string]cacheEntry
}

// NewClient builds a client whose positive answers are re-validated after
// ttl. A zero ttl keeps them for the life of the process.
func NewClient(oracle Oracle, ttl time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		oracle:   oracle,
		ttl:      ttl,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		entitled: make(map[string]cacheEntry),
	}
}

// CheckEntitlement never returns an error: an unreachable oracle means "not
// entitled" unless the user was already confirmed earlier in this run.
func (c *Client) CheckEntitlement(ctx context.Context, userKey string) bool {
	c.mu.Lock()
	entry, cached := c.entitled[userKey]
	c.mu.Unlock()

	if cached && (c.ttl == 0 || c.now().Sub(entry.checkedAt) < c.ttl) {
		c.metrics.EntitlementResult("cached")
		return true
	}

	ok, err := c.oracle.IsEntitled(ctx, userKey)
	if err != nil {
		c.logger.Warn("entitlement check failed", zap.String("user", userKey), zap.Bool("stale", cached), zap.Error(err))
		c.metrics.EntitlementResult("error")
		return cached
	}

	c.mu.Lock()
	if ok {
		c.entitled[userKey] = cacheEntry{checkedAt: c.now()}
	} else {
		delete(c.entitled, userKey)
	}
	c.mu.Unlock()

	if ok {
		c.metrics.EntitlementResult("entitled")
	} else {
		c.metrics.EntitlementResult("not_entitled")
	}
	return ok
}

// DisabledOracle is used when no chain endpoint is configured.
type DisabledOracle struct{}

func (DisabledOracle) IsEntitled(context.Context, string) (bool, error) {
	return false, nil
}
