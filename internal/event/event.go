package event

import (
	"fmt"
	"time"
)

// Event is an occurrence observed on some source at a point in time.
// Events are values and never change after construction.
type Event struct {
	source any
	at     time.Time
}

// New creates an event for source stamped with the current time
func New(source any) Event {
	return Event{source: source, at: time.Now()}
}

// At creates an event for source stamped with the given time
func At(source any, at time.Time) Event {
	return Event{source: source, at: at}
}

// Source returns the object the event occurred on
func (e Event) Source() any {
	return e.source
}

// Time returns when the event was observed
func (e Event) Time() time.Time {
	return e.at
}

func (e Event) String() string {
	return fmt.Sprintf("event(%v @ %s)", e.source, e.at.Format("15:04:05.000"))
}

// FromKernel maps a wall clock timestamp, as reported by the kernel input
// layer, onto the monotonic clock reading carried by now.
func FromKernel(sec, usec int64, now time.Time) time.Time {
	wall := time.Unix(sec, usec*int64(time.Microsecond))
	return now.Add(-now.Sub(wall))
}
