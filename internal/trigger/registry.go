package trigger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registry owns the physical triggers currently open.
// Virtual triggers attached to it are offered alongside every discovery.
type Registry struct {
	mu         sync.Mutex
	discoverer Discoverer
	open       func(path string) (device, error)
	logger     *zap.Logger
	physical   []*Physical
	virtual    []Trigger
}

// NewRegistry creates a registry that finds devices with discoverer
func NewRegistry(discoverer Discoverer, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		discoverer: discoverer,
		open:       openDevice,
		logger:     logger,
	}
}

// Attach adds triggers that are always available, such as virtual ones
func (r *Registry) Attach(triggers ...Trigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.virtual = append(r.virtual, triggers...)
}

// Discover closes all open physical triggers, then opens every device the
// discoverer reports. It fails with a DiscoveryError if the discoverer
// does, and with an Error if a reported device cannot be opened.
func (r *Registry) Discover(ctx context.Context) ([]Trigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeAllLocked()

	paths, err := r.discoverer.Discover(ctx)
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		dev, err := r.open(path)
		if err != nil {
			r.closeAllLocked()
			return nil, &Error{ID: path, Err: err}
		}
		t := newPhysical(path, dev)
		r.physical = append(r.physical, t)
		r.logger.Debug("trigger opened", zap.String("path", t.Path()), zap.String("id", t.ID()))
	}

	return r.triggersLocked(), nil
}

// Triggers returns the open physical triggers followed by the attached ones
func (r *Registry) Triggers() []Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.triggersLocked()
}

// CloseAll closes every open physical trigger
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeAllLocked()
}

func (r *Registry) triggersLocked() []Trigger {
	out := make([]Trigger, 0, len(r.physical)+len(r.virtual))
	for _, t := range r.physical {
		out = append(out, t)
	}
	return append(out, r.virtual...)
}

func (r *Registry) closeAllLocked() {
	for _, t := range r.physical {
		if err := t.Close(); err != nil {
			r.logger.Debug("closing broken trigger", zap.String("path", t.Path()), zap.Error(err))
		}
	}
	r.physical = nil
}

func (r *Registry) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("registry(%d physical, %d attached)", len(r.physical), len(r.virtual))
}
