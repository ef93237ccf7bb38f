package simulation

import (
	"sync"
	"time"
)

// Scheduler runs deferred steps grouped by generation, so one timeline can
// be cancelled without touching the others.
type Scheduler struct {
	mu     sync.Mutex
	nextID uint64
	timers map[uint64]map[uint64]*time.Timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[uint64]map[uint64]*time.Timer)}
}

// Schedule runs fn after delay unless cancelled first.
func (s *Scheduler) Schedule(gen uint64, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if s.timers[gen] == nil {
		s.timers[gen] = make(map[uint64]*time.Timer)
	}
	s.timers[gen][id] = time.AfterFunc(delay, func() {
		if !s.take(gen, id) {
			return
		}
		fn()
	})
}

// take removes a timer that has fired. It reports false when the timer was
// cancelled in the meantime.
func (s *Scheduler) take(gen, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.timers[gen]
	if !ok {
		return false
	}
	if _, ok := byID[id]; !ok {
		return false
	}
	delete(byID, id)
	if len(byID) == 0 {
		delete(s.timers, gen)
	}
	return true
}

// Cancel stops the pending steps of one generation and returns how many were
// dropped.
func (s *Scheduler) Cancel(gen uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.timers[gen]
	for _, t := range byID {
		t.Stop()
	}
	delete(s.timers, gen)
	return len(byID)
}

// CancelAll stops every pending step and returns how many were dropped.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for gen, byID := range s.timers {
		for _, t := range byID {
			t.Stop()
			n++
		}
		delete(s.timers, gen)
	}
	return n
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, byID := range s.timers {
		n += len(byID)
	}
	return n
}
