package trigger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/trigs/trigs/internal/event"
)

// device is an exclusively held input device that reports button presses
type device interface {
	// Identity returns a stable identifier of the hardware
	Identity() string
	// ReadPress blocks until the next press and returns its time of occurrence
	ReadPress() (event.Event, error)
	// Close releases the device and unblocks ReadPress
	Close() error
}

// errBusy is returned when Next is called while another Next is pending
var errBusy = errors.New("concurrent Next on the same trigger")

// Physical is a trigger backed by an input device.
//
// A reader goroutine pulls one press at a time from the device and hands it
// over an unbuffered channel. A press is only taken off the device by a Next
// that returns it, so cancelling Next never loses a press.
type Physical struct {
	id   string
	path string
	dev  device

	presses chan event.Event
	failed  chan struct{}
	err     error // set before failed is closed
	done    chan struct{}
	stopped chan struct{} // closed when readLoop returns

	busy      atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newPhysical(path string, dev device) *Physical {
	p := &Physical{
		id:      dev.Identity(),
		path:    path,
		dev:     dev,
		presses: make(chan event.Event),
		failed:  make(chan struct{}),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go p.readLoop()
	return p
}

// ID returns the hardware identity of the device
func (p *Physical) ID() string {
	return p.id
}

// Path returns the device node the trigger was opened from
func (p *Physical) Path() string {
	return p.path
}

func (p *Physical) String() string {
	return "trigger " + p.id + " (" + p.path + ")"
}

// Next waits for the next press of the trigger button
func (p *Physical) Next(ctx context.Context) (event.Event, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return event.Event{}, &Error{ID: p.id, Err: errBusy}
	}
	defer p.busy.Store(false)

	select {
	case <-p.done:
		return event.Event{}, &Error{ID: p.id, Err: ErrClosed}
	default:
	}

	select {
	case ev := <-p.presses:
		return event.At(p, ev.Time()), nil
	case <-p.failed:
		return event.Event{}, &Error{ID: p.id, Err: p.err}
	case <-p.done:
		return event.Event{}, &Error{ID: p.id, Err: ErrClosed}
	case <-ctx.Done():
		return event.Event{}, ctx.Err()
	}
}

// Close releases the device and waits for the pending read to return.
// Errors from a device that already broke are reported but leave the
// trigger closed.
func (p *Physical) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		if err := p.dev.Close(); err != nil {
			p.closeErr = &Error{ID: p.id, Err: err}
		}
		<-p.stopped
	})
	return p.closeErr
}

func (p *Physical) readLoop() {
	defer close(p.stopped)
	for {
		ev, err := p.dev.ReadPress()
		if err != nil {
			select {
			case <-p.done:
			default:
				p.err = err
				close(p.failed)
			}
			return
		}

		select {
		case p.presses <- ev:
		case <-p.done:
			return
		}
	}
}
