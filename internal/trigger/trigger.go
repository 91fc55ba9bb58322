package trigger

import (
	"context"
	"errors"
	"fmt"

	"github.com/trigs/trigs/internal/event"
)

var (
	// ErrTrigger matches every *Error; the trigger is lost and calibration should be repeated
	ErrTrigger = errors.New("trigger failed")
	// ErrDiscovery matches every *DiscoveryError; triggers cannot be found at all
	ErrDiscovery = errors.New("trigger discovery failed")
	// ErrClosed is the cause of an Error for a trigger that was closed
	ErrClosed = errors.New("trigger closed")
)

// Trigger is a button-like source of events, physical or virtual.
// At most one Next call may be outstanding at a time.
type Trigger interface {
	// ID identifies the device behind the trigger and survives reconnects
	ID() string

	// Next waits for the next press. The returned event's source is the trigger.
	Next(ctx context.Context) (event.Event, error)

	// Close releases the trigger; it is idempotent
	Close() error
}

// Error reports a trigger that stopped working
type Error struct {
	ID  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("trigger %s: %v", e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrTrigger
}

// DiscoveryError reports that triggers could not be enumerated
type DiscoveryError struct {
	Err    error
	Output string // output of the discovery helper, if any
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("trigger discovery: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

func (e *DiscoveryError) Is(target error) bool {
	return target == ErrDiscovery
}
