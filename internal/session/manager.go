// Package session tracks who is talking to the bot, serializes each user's
// messages and remembers chats that blocked the bot.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the activity record of one user. It is forgotten after a
// period of inactivity; conversation state lives elsewhere.
type Session struct {
	ID             string    `json:"session_id"`
	UserKey        string    `json:"user_key"`
	UserID         int64     `json:"user_id"`
	ChatID         int64     `json:"chat_id"`
	Messages       int       `json:"messages"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type entry struct {
	session Session
	// active is set by the first Touch; untouched entries only carry the queue.
	active bool
	// tail is closed when the most recently reserved ticket is released.
	tail    chan struct{}
	holders int
}

type Manager struct {
	mu          sync.Mutex
	entries     map[string]*entry
	blocked     map[int64]struct{}
	idleTimeout time.Duration
	onExpire    func(Session)
	now         func() time.Time
}

func NewManager(idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Manager{
		entries:     make(map[string]*entry),
		blocked:     make(map[int64]struct{}),
		idleTimeout: idleTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) SetExpireHook(hook func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Ticket is a place in a user's queue.
type Ticket struct {
	m    *Manager
	key  string
	prev <-chan struct{}
	done chan struct{}

	once     sync.Once
	acquired bool
}

// Reserve queues a ticket behind the user's earlier messages. It never
// blocks, so callers can reserve in arrival order and wait on another
// goroutine. Reserving records no activity; see Ticket.Touch.
func (m *Manager) Reserve(userKey string) *Ticket {
	done := make(chan struct{})

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userKey]
	if !ok {
		free := make(chan struct{})
		close(free)
		e = &entry{session: Session{UserKey: userKey}, tail: free}
		m.entries[userKey] = e
	}
	e.holders++

	t := &Ticket{m: m, key: userKey, prev: e.tail, done: done}
	e.tail = done
	return t
}

// Touch records an accepted message from chatID. The session is created on
// the user's first accepted message.
func (t *Ticket) Touch(userID, chatID int64) {
	now := t.m.now()
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	e, ok := t.m.entries[t.key]
	if !ok {
		return
	}
	if !e.active {
		e.active = true
		e.session.ID = uuid.NewString()
		e.session.UserID = userID
		e.session.FirstSeenAt = now
	}
	e.session.ChatID = chatID
	e.session.Messages++
	e.session.LastActivityAt = now
}

// Wait blocks until every earlier ticket of the user has been released.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.prev:
		t.acquired = true
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release lets the next ticket run. Releasing a ticket that never acquired
// hands over only once its own predecessor is done.
func (t *Ticket) Release() {
	t.once.Do(func() {
		if t.acquired {
			close(t.done)
		} else {
			go func() {
				<-t.prev
				close(t.done)
			}()
		}
		t.m.mu.Lock()
		if e, ok := t.m.entries[t.key]; ok {
			e.holders--
			switch {
			case e.active:
				e.session.LastActivityAt = t.m.now()
			case e.holders == 0:
				delete(t.m.entries, t.key)
			}
		}
		t.m.mu.Unlock()
	})
}

func (m *Manager) Get(userKey string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userKey]
	if !ok || !e.active {
		return Session{}, false
	}
	return e.session, true
}

// Block marks a chat whose delivery was refused. The mark lasts until restart.
func (m *Manager) Block(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[chatID] = struct{}{}
}

func (m *Manager) IsBlocked(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocked[chatID]
	return ok
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.active {
			n++
		}
	}
	return n
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireIdle()
			}
		}
	}()
}

func (m *Manager) expireIdle() {
	now := m.now()
	var expired []Session

	m.mu.Lock()
	for key, e := range m.entries {
		if e.holders > 0 {
			continue
		}
		if !e.active {
			delete(m.entries, key)
			continue
		}
		if now.Sub(e.session.LastActivityAt) < m.idleTimeout {
			continue
		}
		expired = append(expired, e.session)
		delete(m.entries, key)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}
