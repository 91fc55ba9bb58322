package trigger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// Keyboard turns key presses on a terminal into virtual trigger activations.
// Pressing q or Ctrl-C, or the end of input, closes the panel.
type Keyboard struct {
	in       io.Reader
	triggers map[byte]*Virtual
	order    []*Virtual
	logger   *zap.Logger

	mu       sync.Mutex
	fd       int
	oldState *term.State

	closed    chan struct{}
	closeOnce sync.Once
}

// NewKeyboard creates a panel with one virtual trigger per key
func NewKeyboard(in io.Reader, keys []byte, logger *zap.Logger) (*Keyboard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	k := &Keyboard{
		in:       in,
		triggers: make(map[byte]*Virtual),
		logger:   logger,
		fd:       -1,
		closed:   make(chan struct{}),
	}
	for _, key := range keys {
		if key == 'q' || key == 0x03 {
			return nil, fmt.Errorf("key %q is reserved for closing the panel", key)
		}
		if _, ok := k.triggers[key]; ok {
			return nil, fmt.Errorf("key %q bound twice", key)
		}
		v := NewVirtual(fmt.Sprintf("key %c", key))
		k.triggers[key] = v
		k.order = append(k.order, v)
	}
	return k, nil
}

// Triggers returns the virtual triggers in key order
func (k *Keyboard) Triggers() []Trigger {
	out := make([]Trigger, len(k.order))
	for i, v := range k.order {
		out[i] = v
	}
	return out
}

// Closed is closed once the user has closed the panel
func (k *Keyboard) Closed() <-chan struct{} {
	return k.closed
}

// Start switches a terminal input into raw mode and starts reading keys
func (k *Keyboard) Start() error {
	if f, ok := k.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		state, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to switch terminal to raw mode: %w", err)
		}
		k.mu.Lock()
		k.fd, k.oldState = fd, state
		k.mu.Unlock()
	}

	go k.readLoop()
	return nil
}

// Close restores the terminal and closes all virtual triggers
func (k *Keyboard) Close() error {
	k.finish()

	k.mu.Lock()
	defer k.mu.Unlock()

	var err error
	if k.oldState != nil {
		err = term.Restore(k.fd, k.oldState)
		k.oldState = nil
	}
	for _, v := range k.order {
		v.Close()
	}
	return err
}

func (k *Keyboard) finish() {
	k.closeOnce.Do(func() {
		close(k.closed)
	})
}

func (k *Keyboard) readLoop() {
	defer k.finish()

	buf := make([]byte, 1)
	for {
		if _, err := k.in.Read(buf); err != nil {
			if !errors.Is(err, io.EOF) {
				k.logger.Warn("keyboard read failed", zap.Error(err))
			}
			return
		}

		switch key := buf[0]; key {
		case 'q', 0x03:
			return
		default:
			if v, ok := k.triggers[key]; ok {
				if !v.Activate() {
					k.logger.Debug("key press dropped", zap.String("trigger", v.Label()))
				}
			}
		}
	}
}
