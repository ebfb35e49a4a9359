package session

import "sync"

// Change is delivered to subscribers whenever the stored session
// changes. LoggedOut changes carry a zero Session so that dependent
// resources (notification subscriptions, display state) can tear down.
type Change struct {
	Session   Session
	LoggedOut bool
}

// Store is the single source of truth for the current session. All
// mutation flows through the StateMachine and the refresh coordinator;
// callers only read. The generation counter advances on every mutation
// so that writes decided before a logout can be refused afterwards.
type Store struct {
	mu      sync.Mutex
	current Session
	present bool
	gen     uint64

	subs    map[int]func(Change)
	nextSub int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{subs: make(map[int]func(Change))}
}

// Get returns the current session, if any.
func (s *Store) Get() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.present
}

// Snapshot returns the current session together with the store
// generation, for use with CompareAndSet/CompareAndClear.
func (s *Store) Snapshot() (Session, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.gen, s.present
}

// Set replaces the stored session unconditionally.
func (s *Store) Set(sess Session) {
	s.mu.Lock()
	s.current = sess
	s.present = true
	s.gen++
	notify := s.subscribersLocked()
	s.mu.Unlock()

	deliver(notify, Change{Session: sess})
}

// CompareAndSet replaces the stored session only if the generation has
// not moved since the given snapshot. Returns false when the write was
// refused because another mutation (typically a logout) intervened.
func (s *Store) CompareAndSet(gen uint64, sess Session) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	s.current = sess
	s.present = true
	s.gen++
	notify := s.subscribersLocked()
	s.mu.Unlock()

	deliver(notify, Change{Session: sess})
	return true
}

// Clear drops the session and signals logout to subscribers.
func (s *Store) Clear() {
	s.mu.Lock()
	wasPresent := s.present
	s.current = Session{State: StateUnauthenticated}
	s.present = false
	s.gen++
	notify := s.subscribersLocked()
	s.mu.Unlock()

	if wasPresent {
		deliver(notify, Change{Session: Session{State: StateUnauthenticated}, LoggedOut: true})
	}
}

// CompareAndClear drops the session only if the generation has not
// moved since the given snapshot, guaranteeing at most one logout
// notification per invalidation.
func (s *Store) CompareAndClear(gen uint64) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	wasPresent := s.present
	s.current = Session{State: StateUnauthenticated}
	s.present = false
	s.gen++
	notify := s.subscribersLocked()
	s.mu.Unlock()

	if wasPresent {
		deliver(notify, Change{Session: Session{State: StateUnauthenticated}, LoggedOut: true})
	}
	return true
}

// Subscribe registers a callback fired on every session change. The
// returned function removes the subscription. Callbacks run outside
// the store lock, on the mutating goroutine.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) subscribersLocked() []func(Change) {
	if len(s.subs) == 0 {
		return nil
	}
	out := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func deliver(subs []func(Change), change Change) {
	for _, fn := range subs {
		fn(change)
	}
}
