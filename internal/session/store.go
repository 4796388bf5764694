package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
)

// entry is one session with its own lock so render passes of a session run one at a time
type entry struct {
	mu        sync.Mutex
	state     State
	expiresAt time.Time
}

// Store keeps per-session state in memory. Sessions expire after ttl without activity.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewStore creates a store and starts the background cleanup loop
func NewStore(ttl time.Duration) *Store {
	s := newStore(ttl, time.Now)
	go s.cleanup(time.Minute)
	return s
}

func newStore(ttl time.Duration, now func() time.Time) *Store {
	return &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     now,
		stop:    make(chan struct{}),
	}
}

// Create starts a new empty session and returns its id
func (s *Store) Create() string {
	id := uuid.NewString()

	s.mu.Lock()
	s.entries[id] = &entry{expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	return id
}

// Get returns a copy of the session state
func (s *Store) Get(id string) (State, error) {
	e, err := s.lookup(id)
	if err != nil {
		return State{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// Update runs fn with the current state and stores the state fn returns.
// fn runs under the session lock, so concurrent requests of one session are serialised.
// When fn fails the stored state is left unchanged.
func (s *Store) Update(id string, fn func(State) (State, error)) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := fn(e.state)
	if err != nil {
		return err
	}
	e.state = next
	e.expiresAt = s.now().Add(s.ttl)
	return nil
}

// Delete ends a session
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Size returns the number of live sessions
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats returns store statistics
func (s *Store) Stats() map[string]interface{} {
	return map[string]interface{}{
		"active_sessions": s.Size(),
		"ttl_seconds":     s.ttl.Seconds(),
	}
}

// Close stops the cleanup loop
func (s *Store) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok {
		return nil, apperrors.NewNotFoundError("session", id)
	}

	e.mu.Lock()
	expired := s.now().After(e.expiresAt)
	e.mu.Unlock()
	if expired {
		s.Delete(id)
		return nil, apperrors.NewNotFoundError("session", id)
	}
	return e, nil
}

// cleanup removes expired sessions periodically
func (s *Store) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *Store) removeExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		e.mu.Lock()
		expired := now.After(e.expiresAt)
		e.mu.Unlock()
		if expired {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
