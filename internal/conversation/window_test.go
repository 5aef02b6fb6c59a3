package conversation

import (
	"fmt"
	"sync"
	"testing"
)

func TestContextEmptyForUnseenUser(t *testing.T) {
	s := NewStore(0)
	if got := s.Context("nobody"); len(got) != 0 {
		t.Fatalf("Context() len = %d, want 0", len(got))
	}
}

func TestWindowKeepsAlternatingPairs(t *testing.T) {
	s := NewStore(DefaultMaxTurns)
	for n := 1; n <= 10; n++ {
		s.Append("u1", fmt.Sprintf("q%d", n), fmt.Sprintf("a%d", n))

		got := s.Context("u1")
		if len(got) > DefaultMaxTurns {
			t.Fatalf("after %d exchanges len = %d, want <= %d", n, len(got), DefaultMaxTurns)
		}
		if len(got)%2 != 0 {
			t.Fatalf("after %d exchanges len = %d, want even", n, len(got))
		}
		for i, turn := range got {
			want := RoleUser
			if i%2 == 1 {
				want = RoleAssistant
			}
			if turn.Role != want {
				t.Fatalf("after %d exchanges turn %d role = %q, want %q", n, i, turn.Role, want)
			}
		}
	}

	got := s.Context("u1")
	if got[0].Content != "q8" || got[5].Content != "a10" {
		t.Fatalf("window = %+v, want q8..a10", got)
	}
}

func TestContextReturnsCopy(t *testing.T) {
	s := NewStore(DefaultMaxTurns)
	s.Append("u1", "hello", "hi")
	got := s.Context("u1")
	got[0].Content = "mutated"
	if s.Context("u1")[0].Content != "hello" {
		t.Fatalf("Context() exposed internal state")
	}
}

func TestAppendConcurrentUsers(t *testing.T) {
	s := NewStore(DefaultMaxTurns)
	var wg sync.WaitGroup
	for u := 0; u < 8; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			key := fmt.Sprintf("u%d", u)
			for i := 0; i < 20; i++ {
				s.Append(key, "q", "a")
			}
		}(u)
	}
	wg.Wait()
	if s.Users() != 8 {
		t.Fatalf("Users() = %d, want 8", s.Users())
	}
	for u := 0; u < 8; u++ {
		if n := len(s.Context(fmt.Sprintf("u%d", u))); n != DefaultMaxTurns {
			t.Fatalf("user %d window len = %d, want %d", u, n, DefaultMaxTurns)
		}
	}
}
