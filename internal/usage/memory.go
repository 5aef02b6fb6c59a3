package usage

import (
	"context"
	"sync"
)

// MemoryTally keeps counts in process memory. Only the most recent day is
// retained.
type MemoryTally struct {
	mu     sync.Mutex
	day    string
	counts map[string]int
}

func NewMemoryTally() *MemoryTally {
	return &MemoryTally{counts: make(map[string]int)}
}

func (t *MemoryTally) Seeded(_ context.Context, key Key) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if key.Day != t.day {
		return false, nil
	}
	_, ok := t.counts[key.User]
	return ok, nil
}

func (t *MemoryTally) Seed(_ context.Context, key Key, count int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked(key.Day)
	if _, ok := t.counts[key.User]; !ok {
		t.counts[key.User] = count
	}
	return nil
}

func (t *MemoryTally) IncrementIfBelow(_ context.Context, key Key, limit int) (int, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked(key.Day)
	n := t.counts[key.User]
	if n >= limit {
		return n, false, nil
	}
	n++
	t.counts[key.User] = n
	return n, true, nil
}

func (t *MemoryTally) Increment(_ context.Context, key Key) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked(key.Day)
	t.counts[key.User]++
	return t.counts[key.User], nil
}

func (t *MemoryTally) Count(_ context.Context, key Key) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if key.Day != t.day {
		return 0, nil
	}
	return t.counts[key.User], nil
}

func (t *MemoryTally) Mode() string { return "memory" }

// rollLocked resets the counts when a later day starts. A straggler from the
// previous day is counted against the current one.
func (t *MemoryTally) rollLocked(day string) {
	if day > t.day {
		t.day = day
		t.counts = make(map[string]int)
	}
}
