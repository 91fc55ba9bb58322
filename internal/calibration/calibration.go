package calibration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trigs/trigs/internal/async"
	"github.com/trigs/trigs/internal/trigger"
)

// DefaultPollInterval is the delay between discovery attempts
const DefaultPollInterval = 200 * time.Millisecond

// State is a step of the calibration protocol
type State int

const (
	AwaitingDevices State = iota
	AwaitingForwardRole
	AwaitingBackwardRole
	Calibrated
)

func (s State) String() string {
	switch s {
	case AwaitingDevices:
		return "awaiting devices"
	case AwaitingForwardRole:
		return "awaiting forward trigger"
	case AwaitingBackwardRole:
		return "awaiting backward trigger"
	case Calibrated:
		return "calibrated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Roles holds the triggers assigned to the two logical roles
type Roles struct {
	Forward  trigger.Trigger
	Backward trigger.Trigger
}

// Identities returns the identities of the assigned triggers
func (r Roles) Identities() Identities {
	var ids Identities
	if r.Forward != nil {
		ids.Forward = r.Forward.ID()
	}
	if r.Backward != nil {
		ids.Backward = r.Backward.ID()
	}
	return ids
}

// Identities remembers which devices held which role. Empty fields are unknown.
type Identities struct {
	Forward  string
	Backward string
}

// DiscoverFunc returns the triggers currently connected, releasing any
// triggers a previous call returned
type DiscoverFunc func(ctx context.Context) ([]trigger.Trigger, error)

// Calibrator runs the calibration protocol
type Calibrator struct {
	Discover     DiscoverFunc
	PollInterval time.Duration // Defaults to DefaultPollInterval
	OnState      func(State)   // Called on every state entered, from the calling goroutine
	Logger       *zap.Logger
}

// Run discovers at least two triggers and assigns the forward and backward
// roles. Remembered identities that are connected are assigned without
// waiting for a press. A lost trigger restarts discovery after one poll
// interval. A discovery error ends calibration.
func (c *Calibrator) Run(ctx context.Context, remembered Identities) (Roles, error) {
	logger := c.logger()

	for {
		if err := ctx.Err(); err != nil {
			return Roles{}, err
		}

		triggers, err := c.awaitDevices(ctx)
		if err != nil {
			return Roles{}, err
		}

		roles, err := c.assign(ctx, triggers, remembered)
		if errors.Is(err, trigger.ErrTrigger) {
			logger.Info("trigger lost during calibration", zap.Error(err))
			if err := c.pause(ctx); err != nil {
				return Roles{}, err
			}
			continue
		}
		if err != nil {
			return Roles{}, err
		}

		c.enter(Calibrated)
		logger.Info("calibrated",
			zap.String("forward", roles.Forward.ID()),
			zap.String("backward", roles.Backward.ID()))
		return roles, nil
	}
}

func (c *Calibrator) awaitDevices(ctx context.Context) ([]trigger.Trigger, error) {
	c.enter(AwaitingDevices)

	ticker := time.NewTicker(c.interval())
	defer ticker.Stop()

	for {
		triggers, err := c.Discover(ctx)
		switch {
		case err == nil && len(triggers) >= 2:
			return triggers, nil
		case err == nil:
			c.logger().Debug("waiting for triggers", zap.Int("found", len(triggers)))
		case errors.Is(err, trigger.ErrTrigger):
			c.logger().Debug("trigger not ready", zap.Error(err))
		default:
			return nil, err
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// pause waits one poll interval
func (c *Calibrator) pause(ctx context.Context) error {
	timer := time.NewTimer(c.interval())
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Calibrator) interval() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return c.PollInterval
}

func (c *Calibrator) assign(ctx context.Context, triggers []trigger.Trigger, remembered Identities) (Roles, error) {
	for {
		c.enter(AwaitingForwardRole)
		forward, err := pick(ctx, triggers, remembered.Forward)
		if err != nil {
			return Roles{}, err
		}

		c.enter(AwaitingBackwardRole)
		backward, err := pick(ctx, triggers, remembered.Backward)
		if err != nil {
			return Roles{}, err
		}

		if forward != backward {
			return Roles{Forward: forward, Backward: backward}, nil
		}

		c.logger().Info("same trigger chosen for both roles", zap.String("id", forward.ID()))
		remembered = Identities{}
	}
}

// pick returns the trigger with the remembered identity if it is connected,
// otherwise the first trigger to be pressed
func pick(ctx context.Context, triggers []trigger.Trigger, id string) (trigger.Trigger, error) {
	if id != "" {
		for _, t := range triggers {
			if t.ID() == id {
				return t, nil
			}
		}
	}

	ops := make([]async.Op[trigger.Trigger], len(triggers))
	for i, t := range triggers {
		ops[i] = func(ctx context.Context) (trigger.Trigger, error) {
			if _, err := t.Next(ctx); err != nil {
				return nil, err
			}
			return t, nil
		}
	}
	return async.First(ctx, ops...)
}

func (c *Calibrator) enter(s State) {
	c.logger().Debug("calibration state", zap.Stringer("state", s))
	if c.OnState != nil {
		c.OnState(s)
	}
}

func (c *Calibrator) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
