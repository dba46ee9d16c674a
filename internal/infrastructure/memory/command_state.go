package memory

import (
	"context"
	"sync"
	"time"
)

// DedupStore remembers applied command ids for Window. A zero Window keeps
// them forever.
type DedupStore struct {
	Window time.Duration

	mu      sync.Mutex
	applied map[string]time.Time
	now     func() time.Time
}

func NewDedupStore(window time.Duration) *DedupStore {
	return &DedupStore{Window: window, applied: make(map[string]time.Time), now: time.Now}
}

func (s *DedupStore) Seen(_ context.Context, commandID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.applied[commandID]
	if !ok {
		return false, nil
	}
	if s.Window > 0 && s.now().Sub(at) >= s.Window {
		delete(s.applied, commandID)
		return false, nil
	}
	return true, nil
}

func (s *DedupStore) MarkApplied(_ context.Context, commandID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied[commandID] = s.now()
	return nil
}

// AttemptTracker counts failed attempts per command id.
type AttemptTracker struct {
	mu       sync.Mutex
	attempts map[string]int
}

func NewAttemptTracker() *AttemptTracker {
	return &AttemptTracker{attempts: make(map[string]int)}
}

func (t *AttemptTracker) Increment(_ context.Context, commandID string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[commandID]++
	return t.attempts[commandID], nil
}

func (t *AttemptTracker) Reset(_ context.Context, commandID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, commandID)
	return nil
}
