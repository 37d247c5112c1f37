package convo

import (
	"sync"
	"time"

	"hearth/internal/domain"
)

const defaultCapacity = 10

// Store keeps a short per-user dialogue history. Each user holds the most
// recent entries up to the capacity; older turns fall off the front.
type Store struct {
	mu       sync.Mutex
	users    map[string]*userContext
	capacity int
	now      func() time.Time
}

type userContext struct {
	mu      sync.Mutex
	entries []domain.ContextEntry
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]*userContext),
		capacity: defaultCapacity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) user(userID string) *userContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	uc, ok := s.users[userID]
	if !ok {
		uc = &userContext{}
		s.users[userID] = uc
	}
	return uc
}

func (s *Store) Append(userID string, entry domain.ContextEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	uc := s.user(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.entries = append(uc.entries, entry)
	if len(uc.entries) > s.capacity {
		uc.entries = uc.entries[len(uc.entries)-s.capacity:]
	}
}

// History returns the user's entries oldest first. The slice is a copy.
func (s *Store) History(userID string) []domain.ContextEntry {
	uc := s.user(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()
	out := make([]domain.ContextEntry, len(uc.entries))
	copy(out, uc.entries)
	return out
}

// Last returns the most recent entry, if any.
func (s *Store) Last(userID string) (domain.ContextEntry, bool) {
	uc := s.user(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if len(uc.entries) == 0 {
		return domain.ContextEntry{}, false
	}
	return uc.entries[len(uc.entries)-1], true
}

// ConsumePending removes the first pending action from the user's most
// recent turn. Confirmations are one-shot: once a dispatch succeeds the
// action must not be replayable by confirming again.
func (s *Store) ConsumePending(userID string) {
	uc := s.user(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if len(uc.entries) == 0 {
		return
	}
	last := &uc.entries[len(uc.entries)-1]
	if len(last.Decision.PendingActions) == 0 {
		return
	}
	last.Decision.PendingActions = last.Decision.PendingActions[1:]
}

func (s *Store) Clear(userID string) {
	uc := s.user(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.entries = nil
}
