package async

import (
	"context"
	"sync"
	"time"

	"github.com/trigs/trigs/internal/event"
)

// Scheduler delivers submitted events once their delay has expired.
// Events come out of Next in the order they became due.
type Scheduler struct {
	mu      sync.Mutex
	gen     uint64
	timers  map[*time.Timer]struct{}
	ready   []event.Event
	readyCh chan struct{}
}

// NewScheduler creates an empty scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		timers:  make(map[*time.Timer]struct{}),
		readyCh: make(chan struct{}, 1),
	}
}

// Submit schedules ev to be returned by Next after the given delay.
// The delivered event keeps ev's source and is stamped with the time it became due.
func (s *Scheduler) Submit(ev event.Event, after time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.gen
	var t *time.Timer
	t = time.AfterFunc(after, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.timers, t)
		if gen != s.gen {
			return
		}
		s.ready = append(s.ready, event.New(ev.Source()))
		select {
		case s.readyCh <- struct{}{}:
		default:
		}
	})
	s.timers[t] = struct{}{}
}

// Clear unschedules all pending events, including due ones not yet taken by Next
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	for t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
	s.ready = nil
}

// Next waits for the next due event
func (s *Scheduler) Next(ctx context.Context) (event.Event, error) {
	for {
		s.mu.Lock()
		if len(s.ready) > 0 {
			ev := s.ready[0]
			s.ready = s.ready[1:]
			s.mu.Unlock()
			return ev, nil
		}
		s.mu.Unlock()

		select {
		case <-s.readyCh:
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		}
	}
}
