package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	dialogs  map[string][]DialogRecord
	settings map[string]*userSettings
	prompts  map[string]PromptRecord
}

type userSettings struct {
	language *LanguageProfile
	role     *string
	speed    *string
	model    *string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		dialogs:  make(map[string][]DialogRecord),
		settings: make(map[string]*userSettings),
		prompts:  make(map[string]PromptRecord),
	}
}

func (s *InMemoryStore) InsertDialog(_ context.Context, record DialogRecord) error {
	record = prepare(record)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogs[record.UserKey] = append(s.dialogs[record.UserKey], record)
	return nil
}

func (s *InMemoryStore) CountDialogsSince(_ context.Context, userKey, contentType string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.dialogs[userKey] {
		if contentType != "" && r.ContentType != contentType {
			continue
		}
		if r.CreatedAt.Before(since) {
			continue
		}
		n++
	}
	return n, nil
}

func (s *InMemoryStore) LanguageProfile(_ context.Context, userKey string) (LanguageProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	us := s.settings[userKey]
	if us == nil || us.language == nil {
		return LanguageProfile{}, ErrNotFound
	}
	return *us.language, nil
}

func (s *InMemoryStore) UpsertLanguageProfile(_ context.Context, userKey string, profile LanguageProfile) error {
	s.update(userKey, func(us *userSettings) { us.language = &profile })
	return nil
}

func (s *InMemoryStore) SystemRole(_ context.Context, userKey string) (string, error) {
	return s.lookup(userKey, func(us *userSettings) *string { return us.role })
}

func (s *InMemoryStore) UpsertSystemRole(_ context.Context, userKey, role string) error {
	s.update(userKey, func(us *userSettings) { us.role = &role })
	return nil
}

func (s *InMemoryStore) Speed(_ context.Context, userKey string) (string, error) {
	return s.lookup(userKey, func(us *userSettings) *string { return us.speed })
}

func (s *InMemoryStore) UpsertSpeed(_ context.Context, userKey, rate string) error {
	s.update(userKey, func(us *userSettings) { us.speed = &rate })
	return nil
}

func (s *InMemoryStore) ModelOverride(_ context.Context, userKey string) (string, error) {
	return s.lookup(userKey, func(us *userSettings) *string { return us.model })
}

func (s *InMemoryStore) UpsertModelOverride(_ context.Context, userKey, model string) error {
	s.update(userKey, func(us *userSettings) { us.model = &model })
	return nil
}

func (s *InMemoryStore) SearchPrompts(_ context.Context, keywords string, limit int) ([]PromptRecord, error) {
	terms := Keywords(keywords)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PromptRecord
	for _, p := range s.prompts {
		if matchesAll(p, terms) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) UpsertPrompt(_ context.Context, prompt PromptRecord) error {
	if prompt.ID == "" {
		prompt.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[prompt.ID] = prompt
	return nil
}

func (s *InMemoryStore) Mode() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) lookup(userKey string, field func(*userSettings) *string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	us := s.settings[userKey]
	if us == nil {
		return "", ErrNotFound
	}
	v := field(us)
	if v == nil {
		return "", ErrNotFound
	}
	return *v, nil
}

func (s *InMemoryStore) update(userKey string, apply func(*userSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	us := s.settings[userKey]
	if us == nil {
		us = &userSettings{}
		s.settings[userKey] = us
	}
	apply(us)
}
