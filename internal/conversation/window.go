// Package conversation keeps the bounded rolling context fed back into each
// completion request. Windows live in memory for the process lifetime.
package conversation

import "sync"

// DefaultMaxTurns keeps three user/assistant pairs.
const DefaultMaxTurns = 6

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store holds one window per user. All methods are safe for concurrent use;
// a pair is appended and trimmed under a single lock acquisition.
type Store struct {
	mu       sync.Mutex
	windows  map[string][]Turn
	maxTurns int
}

func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	// Keep the window pair aligned.
	if maxTurns%2 != 0 {
		maxTurns++
	}
	return &Store{
		windows:  make(map[string][]Turn),
		maxTurns: maxTurns,
	}
}

// Context returns a copy of the user's window, oldest first.
func (s *Store) Context(userKey string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.windows[userKey]
	out := make([]Turn, len(w))
	copy(out, w)
	return out
}

// Append records one exchange and evicts the oldest pairs past the limit.
func (s *Store) Append(userKey, prompt, completion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := append(s.windows[userKey],
		Turn{Role: RoleUser, Content: prompt},
		Turn{Role: RoleAssistant, Content: completion},
	)
	for len(w) > s.maxTurns {
		w = w[2:]
	}
	// Reallocate so evicted turns are not pinned by the backing array.
	trimmed := make([]Turn, len(w))
	copy(trimmed, w)
	s.windows[userKey] = trimmed
}

// Users reports how many users currently hold a window.
func (s *Store) Users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
