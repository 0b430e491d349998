package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Slots owns the one-shot timers of a session. Each logical timer lives in a
// named slot: scheduling into an occupied slot replaces the previous timer,
// and a callback that was superseded or cancelled before it acquired the
// guard is dropped.
type Slots struct {
	clock clockwork.Clock
	guard sync.Locker

	mu      sync.Mutex
	seq     uint64
	active  map[string]*slot
	stopped bool
}

type slot struct {
	seq   uint64
	timer clockwork.Timer
}

// NewSlots creates a timer set. Callbacks run while holding guard, so they are
// serialized with every other entry point that takes the same lock. A nil
// guard gives the slots a private one.
func NewSlots(clock clockwork.Clock, guard sync.Locker) *Slots {
	if guard == nil {
		guard = &sync.Mutex{}
	}
	return &Slots{
		clock:  clock,
		guard:  guard,
		active: make(map[string]*slot),
	}
}

// Schedule arms fn to run after d in the named slot, cancelling whatever the
// slot held before.
func (s *Slots) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if existing, ok := s.active[key]; ok {
		existing.timer.Stop()
		log.Debug().Str("slot", key).Msg("replaced existing timer")
	}

	s.seq++
	seq := s.seq
	timer := s.clock.AfterFunc(d, func() {
		s.fire(key, seq, fn)
	})
	s.active[key] = &slot{seq: seq, timer: timer}
}

// Cancel stops the timer in the named slot. It reports whether one was pending.
func (s *Slots) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.active[key]
	if !ok {
		return false
	}
	existing.timer.Stop()
	delete(s.active, key)
	log.Debug().Str("slot", key).Msg("cancelled timer")
	return true
}

// Pending reports whether the named slot holds an armed timer.
func (s *Slots) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[key]
	return ok
}

// Stop cancels every timer and refuses new ones.
func (s *Slots) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, existing := range s.active {
		existing.timer.Stop()
		delete(s.active, key)
	}
	s.stopped = true
}

func (s *Slots) fire(key string, seq uint64, fn func()) {
	s.guard.Lock()
	defer s.guard.Unlock()

	s.mu.Lock()
	current, ok := s.active[key]
	if !ok || current.seq != seq {
		s.mu.Unlock()
		log.Debug().Str("slot", key).Msg("dropping superseded timer")
		return
	}
	delete(s.active, key)
	s.mu.Unlock()

	fn()
}
