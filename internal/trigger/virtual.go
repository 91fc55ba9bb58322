package trigger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/trigs/trigs/internal/event"
)

// virtualNamespace scopes the identities derived from virtual trigger names
var virtualNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("trigs:virtual-trigger"))

// Virtual is a trigger emulated in software and activated by Activate
type Virtual struct {
	id    string
	label string

	activations chan event.Event
	done        chan struct{}
	closeOnce   sync.Once
}

// NewVirtual creates a virtual trigger. Triggers with the same non-empty
// label share an identity across runs; an empty label gets a random one.
func NewVirtual(label string) *Virtual {
	id := uuid.New()
	if label != "" {
		id = uuid.NewSHA1(virtualNamespace, []byte(label))
	}
	return &Virtual{
		id:          id.String(),
		label:       label,
		activations: make(chan event.Event, 1),
		done:        make(chan struct{}),
	}
}

// ID returns the identity of the trigger
func (v *Virtual) ID() string {
	return v.id
}

// Label returns the label the trigger was created with
func (v *Virtual) Label() string {
	return v.label
}

func (v *Virtual) String() string {
	return "virtual trigger " + v.label
}

// Activate registers a press. It reports false if the press was dropped
// because one is already waiting to be consumed or the trigger is closed.
func (v *Virtual) Activate() bool {
	select {
	case <-v.done:
		return false
	default:
	}

	select {
	case v.activations <- event.New(v):
		return true
	default:
		return false
	}
}

// Next waits for the next activation
func (v *Virtual) Next(ctx context.Context) (event.Event, error) {
	select {
	case <-v.done:
		return event.Event{}, &Error{ID: v.id, Err: ErrClosed}
	default:
	}

	select {
	case ev := <-v.activations:
		return ev, nil
	case <-v.done:
		return event.Event{}, &Error{ID: v.id, Err: ErrClosed}
	case <-ctx.Done():
		return event.Event{}, ctx.Err()
	}
}

// Close fails all pending and future Next calls
func (v *Virtual) Close() error {
	v.closeOnce.Do(func() {
		close(v.done)
	})
	return nil
}
