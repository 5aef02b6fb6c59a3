package usage

import (
	"context"
	"fmt"
)

// Key addresses one user's voice tally for one quota day.
type Key struct {
	Day  string
	User string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Day, k.User)
}

// Tally is a per-user, per-day counter with an atomic bounded increment.
type Tally interface {
	// Seeded reports whether the key has been initialized for its day.
	Seeded(ctx context.Context, key Key) (bool, error)
	// Seed initializes the key unless another caller already did.
	Seed(ctx context.Context, key Key, count int) error
	// IncrementIfBelow adds one only while the count is under limit. It
	// returns the resulting count and whether the increment happened.
	IncrementIfBelow(ctx context.Context, key Key, limit int) (int, bool, error)
	Increment(ctx context.Context, key Key) (int, error)
	Count(ctx context.Context, key Key) (int, error)
	Mode() string
}
