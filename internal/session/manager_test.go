package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestReserveTracksActivity(t *testing.T) {
	m := NewManager(time.Minute)
	t1 := m.Reserve("0xabc")
	t1.Touch(100, 555)
	t1.Release()
	t2 := m.Reserve("0xabc")
	t2.Touch(100, 556)
	t2.Release()

	s, ok := m.Get("0xabc")
	if !ok {
		t.Fatalf("Get() ok = false, want true")
	}
	if s.ID == "" || s.UserID != 100 || s.ChatID != 556 || s.Messages != 2 {
		t.Fatalf("unexpected session state: %+v", s)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}
}

func TestUntouchedTicketLeavesNoSession(t *testing.T) {
	m := NewManager(time.Minute)
	var expired int
	m.SetExpireHook(func(Session) { expired++ })

	held := m.Reserve("0xabc")
	if _, ok := m.Get("0xabc"); ok {
		t.Fatalf("Get() ok = true before any accepted message")
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
	held.Release()

	m.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	m.expireIdle()
	if expired != 0 {
		t.Fatalf("expire hook ran %d times for a user with no session", expired)
	}

	// A later accepted message still starts a fresh session.
	next := m.Reserve("0xabc")
	next.Touch(100, 555)
	next.Release()
	s, ok := m.Get("0xabc")
	if !ok || s.Messages != 1 || s.ChatID != 555 {
		t.Fatalf("Get() = %+v, %v", s, ok)
	}
}

func TestTouchKeepsExistingChatUntilAccepted(t *testing.T) {
	m := NewManager(time.Minute)
	first := m.Reserve("0xabc")
	first.Touch(100, 555)
	first.Release()

	ignored := m.Reserve("0xabc")
	ignored.Release()

	s, _ := m.Get("0xabc")
	if s.ChatID != 555 || s.Messages != 1 {
		t.Fatalf("unaccepted ticket changed the session: %+v", s)
	}
}

func TestTicketsRunInArrivalOrder(t *testing.T) {
	m := NewManager(time.Minute)
	ctx := context.Background()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	tickets := make([]*Ticket, 5)
	for i := range tickets {
		tickets[i] = m.Reserve("0xabc")
	}
	// Start in reverse so that goroutine scheduling cannot explain the order.
	for i := len(tickets) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tk := tickets[i]
			if err := tk.Wait(ctx); err != nil {
				t.Errorf("Wait() error = %v", err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			tk.Release()
		}(i)
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestDifferentUsersDoNotWait(t *testing.T) {
	m := NewManager(time.Minute)
	held := m.Reserve("0xaaa")
	if err := held.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	other := m.Reserve("0xbbb")
	if err := other.Wait(ctx); err != nil {
		t.Fatalf("Wait() for other user error = %v", err)
	}
	other.Release()
}

func TestCanceledWaitKeepsOrder(t *testing.T) {
	m := NewManager(time.Minute)
	first := m.Reserve("0xabc")
	if err := first.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	second := m.Reserve("0xabc")
	third := m.Reserve("0xabc")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := second.Wait(ctx); err == nil {
		t.Fatalf("Wait() error = nil, want canceled")
	}
	second.Release()

	short, stop := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer stop()
	if err := third.Wait(short); err == nil {
		t.Fatalf("third ticket ran while the first was still held")
	}

	first.Release()
	if err := third.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	third.Release()
}

func TestBlockedChats(t *testing.T) {
	m := NewManager(time.Minute)
	if m.IsBlocked(42) {
		t.Fatalf("IsBlocked(42) = true before Block")
	}
	m.Block(42)
	if !m.IsBlocked(42) || m.IsBlocked(43) {
		t.Fatalf("Block(42) did not mark exactly chat 42")
	}
}

func TestJanitorForgetsIdleSessionsOnly(t *testing.T) {
	m := NewManager(time.Minute)
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	idle := m.Reserve("0xidle")
	idle.Touch(1, 1)
	idle.Release()
	busy := m.Reserve("0xbusy")
	busy.Touch(2, 2)

	var expired []string
	m.SetExpireHook(func(s Session) { expired = append(expired, s.UserKey) })

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	m.expireIdle()

	if len(expired) != 1 || expired[0] != "0xidle" {
		t.Fatalf("expired = %v, want [0xidle]", expired)
	}
	if _, ok := m.Get("0xbusy"); !ok {
		t.Fatalf("session with a held ticket was forgotten")
	}
	busy.Release()
}

func TestStartJanitorStopsWithContext(t *testing.T) {
	m := NewManager(time.Minute)
	tk := m.Reserve("0xabc")
	tk.Touch(1, 1)
	tk.Release()
	m.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }

	done := make(chan struct{})
	m.SetExpireHook(func(Session) { close(done) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not expire the idle session")
	}
}
