package poll

import "sync"

// Signals exposes the environment the UI runs in: whether the page is
// currently visible, and wake events (window focus, visibility turning
// visible) that warrant an immediate out-of-band refresh.
type Signals interface {
	IsVisible() bool
	// OnWake registers a callback for wake events and returns its
	// unsubscribe function.
	OnWake(fn func()) (unsubscribe func())
}

// EnvSignals is a Signals implementation fed by UI events arriving over the
// wire. A fresh instance reports visible, matching a page that has just
// connected.
type EnvSignals struct {
	mu      sync.Mutex
	visible bool
	nextID  int
	subs    map[int]func()
}

// NewEnvSignals creates an EnvSignals in the visible state.
func NewEnvSignals() *EnvSignals {
	return &EnvSignals{
		visible: true,
		subs:    make(map[int]func()),
	}
}

// SetVisible records a visibility change. Turning from hidden to visible
// counts as a wake event.
func (s *EnvSignals) SetVisible(visible bool) {
	s.mu.Lock()
	woke := visible && !s.visible
	s.visible = visible
	s.mu.Unlock()

	if woke {
		s.wake()
	}
}

// Focus records the window regaining focus, which is always a wake event.
func (s *EnvSignals) Focus() {
	s.wake()
}

func (s *EnvSignals) IsVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *EnvSignals) OnWake(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *EnvSignals) wake() {
	s.mu.Lock()
	callbacks := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		callbacks = append(callbacks, fn)
	}
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
