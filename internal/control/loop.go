package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trigs/trigs/internal/async"
	"github.com/trigs/trigs/internal/calibration"
	"github.com/trigs/trigs/internal/display"
	"github.com/trigs/trigs/internal/event"
	"github.com/trigs/trigs/internal/player"
	"github.com/trigs/trigs/internal/trigger"
)

// BackwardPolicy decides what a backward press does
type BackwardPolicy string

const (
	// PolicyUndo stops playback, taking back the last forward press
	PolicyUndo BackwardPolicy = "undo"
	// PolicyPrevious steps back one sequence and stops there
	PolicyPrevious BackwardPolicy = "previous"
)

// ParseBackwardPolicy parses a policy name; the empty string means PolicyUndo
func ParseBackwardPolicy(s string) (BackwardPolicy, error) {
	switch BackwardPolicy(s) {
	case "", PolicyUndo:
		return PolicyUndo, nil
	case PolicyPrevious:
		return PolicyPrevious, nil
	default:
		return "", fmt.Errorf("unknown backward policy: %s", s)
	}
}

const (
	DefaultRefreshInterval = time.Second
	DefaultFlashDuration   = 300 * time.Millisecond
)

// IdentityStore remembers calibrated identities across runs
type IdentityStore interface {
	Load() (calibration.Identities, error)
	Save(calibration.Identities) error
}

// Loop connects the calibrated triggers to a player
type Loop struct {
	Player     player.Player
	Calibrator *calibration.Calibrator
	Store      IdentityStore   // Optional
	Display    display.Display // Optional
	Closed     <-chan struct{} // Closing it ends Run; optional

	Policy          BackwardPolicy
	RefreshInterval time.Duration
	FlashDuration   time.Duration
	Logger          *zap.Logger
}

// closedSource is the source of the event that ends the loop
type closedSource struct{}

// Run calibrates the triggers, then reacts to presses until Closed is
// closed or ctx is done. A lost trigger pauses the loop for a silent
// recalibration. Player errors other than an empty playlist end the loop.
func (l *Loop) Run(ctx context.Context) error {
	logger := l.logger()
	disp := l.display()

	var remembered calibration.Identities
	if l.Store != nil {
		ids, err := l.Store.Load()
		if err != nil {
			logger.Warn("failed to load calibration", zap.Error(err))
		}
		remembered = ids
	}

	roles, err := l.calibrate(ctx, remembered)
	if err != nil {
		return l.endErr(err)
	}

	refresh := async.NewScheduler()
	defer refresh.Clear()
	refresh.Submit(event.New(refresh), 0)

	for {
		ev, err := async.First[event.Event](ctx,
			roles.Forward.Next,
			roles.Backward.Next,
			l.waitClosed,
			refresh.Next,
		)
		if errors.Is(err, trigger.ErrTrigger) {
			logger.Warn("trigger lost, recalibrating", zap.Error(err))
			refresh.Clear()
			if roles, err = l.calibrate(ctx, roles.Identities()); err != nil {
				return l.endErr(err)
			}
			refresh.Submit(event.New(refresh), 0)
			continue
		}
		if err != nil {
			return err
		}

		switch ev.Source() {
		case roles.Forward:
			err = l.forward(ctx, disp)
		case roles.Backward:
			err = l.backward(ctx, disp)
		case refresh:
			err = l.paintStatus(ctx, disp)
			refresh.Submit(event.New(refresh), l.refreshInterval())
		case closedSource{}:
			logger.Info("control closed")
			return nil
		default:
			logger.Warn("unknown event", zap.Stringer("event", ev))
		}

		if errors.Is(err, player.ErrNoSequences) {
			logger.Warn("playlist is empty")
			continue
		}
		if err != nil {
			return err
		}
	}
}

func (l *Loop) forward(ctx context.Context, disp display.Display) error {
	status, err := l.Player.Status(ctx)
	if err != nil {
		return err
	}
	if status == player.StatusPlaying {
		l.logger().Info("forward ignored while playing")
		return nil
	}

	if err := l.Player.Play(ctx); err != nil {
		return err
	}
	disp.Flash(display.Whole, display.Green, l.flashDuration())
	l.logger().Info("forward")
	return nil
}

func (l *Loop) backward(ctx context.Context, disp display.Display) error {
	if l.Policy == PolicyPrevious {
		if err := l.Player.Previous(ctx); err != nil {
			return err
		}
	}
	if err := l.Player.Stop(ctx); err != nil {
		return err
	}
	disp.Flash(display.Whole, display.Red, l.flashDuration())
	l.logger().Info("backward", zap.String("policy", string(l.policy())))
	return nil
}

func (l *Loop) paintStatus(ctx context.Context, disp display.Display) error {
	status, err := l.Player.Status(ctx)
	if err != nil {
		return err
	}

	// An empty playlist reports Stopped
	if status == player.StatusPlaying {
		disp.SetColor(display.Whole, display.Yellow)
	} else {
		disp.SetColor(display.Whole, display.Grey)
	}
	return nil
}

// calibrate runs the calibrator, painting its progress. Closing the
// loop cancels calibration.
func (l *Loop) calibrate(ctx context.Context, remembered calibration.Identities) (calibration.Roles, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if l.Closed != nil {
		go func() {
			select {
			case <-l.Closed:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	disp := l.display()
	c := *l.Calibrator
	hook := c.OnState
	c.OnState = func(s calibration.State) {
		switch s {
		case calibration.AwaitingDevices, calibration.AwaitingForwardRole:
			disp.SetColor(display.Whole, display.Blue)
		case calibration.AwaitingBackwardRole:
			disp.SetColor(display.Left, display.Grey)
			disp.SetColor(display.Right, display.Blue)
		case calibration.Calibrated:
			disp.SetColor(display.Whole, display.Grey)
		}
		if hook != nil {
			hook(s)
		}
	}

	roles, err := c.Run(ctx, remembered)
	if err != nil {
		return calibration.Roles{}, err
	}

	if l.Store != nil {
		if err := l.Store.Save(roles.Identities()); err != nil {
			l.logger().Warn("failed to save calibration", zap.Error(err))
		}
	}
	return roles, nil
}

// endErr turns an error caused by closing the loop into a clean exit
func (l *Loop) endErr(err error) error {
	if l.Closed != nil && errors.Is(err, context.Canceled) {
		select {
		case <-l.Closed:
			return nil
		default:
		}
	}
	return err
}

func (l *Loop) waitClosed(ctx context.Context) (event.Event, error) {
	select {
	case <-l.Closed:
		return event.New(closedSource{}), nil
	case <-ctx.Done():
		return event.Event{}, ctx.Err()
	}
}

func (l *Loop) policy() BackwardPolicy {
	if l.Policy == "" {
		return PolicyUndo
	}
	return l.Policy
}

func (l *Loop) refreshInterval() time.Duration {
	if l.RefreshInterval <= 0 {
		return DefaultRefreshInterval
	}
	return l.RefreshInterval
}

func (l *Loop) flashDuration() time.Duration {
	if l.FlashDuration <= 0 {
		return DefaultFlashDuration
	}
	return l.FlashDuration
}

func (l *Loop) display() display.Display {
	if l.Display == nil {
		return display.Nop{}
	}
	return l.Display
}

func (l *Loop) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
