// Package poll decides when a folder's listing is re-fetched. Each open
// folder gets one Scheduler: a timer-driven loop that re-arms only after the
// previous refresh settles, so refreshes for a folder never overlap and their
// results apply in request order.
package poll

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the scheduler's position in its lifecycle. Transitions are
// idle → waiting → fetching → waiting → …, with cancelled terminal.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateFetching
	StateCancelled
)

const (
	// settleDelay lets the view mount before the first fetch hits the network.
	settleDelay = 4 * time.Second
	// hiddenDelay applies while the page is not visible.
	hiddenDelay = 60 * time.Second
	// hotDelay applies to folders expected to change often.
	hotDelay = 12 * time.Second
	// normalDelay applies to everything else.
	normalDelay = 20 * time.Second
	// burstFirstOffset and burstSecondOffset are the post-send supplementary
	// refresh offsets, tuned to catch a fast server echo.
	burstFirstOffset  = 3500 * time.Millisecond
	burstSecondOffset = 12 * time.Second
)

// hotFolderTokens mark folder names expected to receive frequent updates.
// Matching is case-insensitive substring search, so localized display names
// containing these tokens qualify too.
var hotFolderTokens = []string{
	"inbox", "sent", "outbox",
	"收件", "已发送", "发件",
	"posteingang", "gesendet", "postausgang",
}

// BurstOffsets returns the post-send supplementary refresh offsets, for
// callers that schedule the burst themselves when no scheduler is running.
func BurstOffsets() []time.Duration {
	return []time.Duration{burstFirstOffset, burstSecondOffset}
}

// IsHotFolder reports whether a folder name warrants the short polling delay.
func IsHotFolder(name string) bool {
	lower := strings.ToLower(name)
	for _, token := range hotFolderTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// RefreshFunc fetches a folder's listing and applies the result. The
// scheduler serializes calls per folder and ignores the error beyond logging;
// retry-on-failure lives inside the fetch itself.
type RefreshFunc func(ctx context.Context, folder string) error

// Scheduler runs the refresh loop for one folder.
type Scheduler struct {
	folder  string
	hot     bool
	refresh RefreshFunc
	clock   Clock
	signals Signals
	logger  *zap.Logger
	ctx     context.Context

	mu          sync.Mutex
	state       State
	stopped     bool
	timer       Timer
	burstTimers []Timer
	unsubscribe func()
}

// NewScheduler creates a scheduler for the folder. ctx bounds the refresh
// calls' lifetime at the process level; Cancel does not abort an in-flight
// refresh, it only suppresses follow-on scheduling.
func NewScheduler(ctx context.Context, folder string, refresh RefreshFunc, clock Clock, signals Signals, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		folder:  folder,
		hot:     IsHotFolder(folder),
		refresh: refresh,
		clock:   clock,
		signals: signals,
		logger:  logger,
		ctx:     ctx,
		state:   StateIdle,
	}
}

// Start arms the settle timer and subscribes to wake events. Starting an
// already-started scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle || s.stopped {
		return
	}
	s.state = StateWaiting
	s.unsubscribe = s.signals.OnWake(s.Poke)
	s.timer = s.clock.AfterFunc(settleDelay, s.tick)
}

// Cancel terminates the loop: the stopped flag is set before any pending
// timer can fire, the timers are cleared, and the wake subscription is
// dropped. A refresh already in flight still applies its result, but nothing
// further is scheduled.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.state = StateCancelled

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	for _, t := range s.burstTimers {
		t.Stop()
	}
	s.burstTimers = nil

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Poke runs an immediate out-of-band refresh. If a refresh is already in
// flight the poke is dropped; the in-flight cycle is about to deliver a result
// at least as fresh.
func (s *Scheduler) Poke() {
	s.mu.Lock()
	if s.stopped || s.state != StateWaiting {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.tick()
}

// Burst schedules the two post-send supplementary refreshes. They route
// through Poke, so they cannot overlap the regular loop.
func (s *Scheduler) Burst() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.burstTimers = append(s.burstTimers,
		s.clock.AfterFunc(burstFirstOffset, s.Poke),
		s.clock.AfterFunc(burstSecondOffset, s.Poke),
	)
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// tick runs one refresh cycle and re-arms the timer with the current delay.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.stopped || s.state != StateWaiting {
		s.mu.Unlock()
		return
	}
	s.state = StateFetching
	s.mu.Unlock()

	if err := s.refresh(s.ctx, s.folder); err != nil {
		s.logger.Warn("folder refresh failed",
			zap.String("folder", s.folder),
			zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.state = StateWaiting
	s.timer = s.clock.AfterFunc(s.delay(), s.tick)
}

// delay selects the next refresh interval from page visibility and folder
// hotness.
func (s *Scheduler) delay() time.Duration {
	if !s.signals.IsVisible() {
		return hiddenDelay
	}
	if s.hot {
		return hotDelay
	}
	return normalDelay
}
