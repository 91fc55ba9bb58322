package player

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Local plays sequences in-process through an Engine.
//
// Position is kept on a virtual clock: offset seconds at the anchor time,
// advancing with the clock only while playing. The end of a sequence is
// detected lazily whenever status or position is read.
//
// The control methods never share mutable state with the audio goroutine.
// Every change publishes an immutable snapshot; the producer adopts it and
// from then on is the only writer of its own cursor.
type Local struct {
	mu       sync.Mutex
	engine   Engine
	now      func() time.Time
	logger   *zap.Logger
	onChange func(Status)

	format    *Format
	sequences []Sequence
	status    Status
	index     int
	offset    float64
	anchor    time.Time
	volume    float64
	opened    bool

	gen    uint64
	shared atomic.Pointer[snapshot]
	cursor cursor // owned by the producer
}

// snapshot is what the producer sees of the control state
type snapshot struct {
	gen       uint64
	playing   bool
	index     int
	offset    int // bytes into the current sequence
	sequences []Sequence
	frameSize int
	silence   byte
}

// cursor is the producer's private playback position
type cursor snapshot

// Option configures a Local player
type Option func(*Local)

// WithClock replaces the wall clock used for the virtual position
func WithClock(now func() time.Time) Option {
	return func(p *Local) {
		p.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Local) {
		p.logger = logger
	}
}

// WithOnChange registers a callback for status transitions.
// It runs on the goroutine that caused the transition, after the player is unlocked.
func WithOnChange(fn func(Status)) Option {
	return func(p *Local) {
		p.onChange = fn
	}
}

// NewLocal creates a stopped player with an empty playlist
func NewLocal(engine Engine, opts ...Option) *Local {
	p := &Local{
		engine: engine,
		now:    time.Now,
		logger: zap.NewNop(),
		status: StatusStopped,
		volume: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.anchor = p.now()
	return p
}

// update runs fn under the lock and reports a status transition afterwards
func (p *Local) update(fn func() error) error {
	p.mu.Lock()
	before := p.status
	err := fn()
	after := p.status
	p.mu.Unlock()

	if after != before {
		p.logger.Debug("player status changed",
			zap.Stringer("from", before),
			zap.Stringer("to", after))
		if p.onChange != nil {
			p.onChange(after)
		}
	}
	return err
}

// Play starts or resumes playback of the current sequence
func (p *Local) Play(ctx context.Context) error {
	return p.update(func() error {
		if len(p.sequences) == 0 {
			return ErrNoSequences
		}
		p.detectEndLocked()
		if p.status == StatusPlaying || p.index >= len(p.sequences) {
			return nil
		}
		p.status = StatusPlaying
		p.anchor = p.now()
		p.publishLocked()
		return nil
	})
}

// Pause holds playback at the current position
func (p *Local) Pause(ctx context.Context) error {
	return p.update(func() error {
		if len(p.sequences) == 0 {
			return ErrNoSequences
		}
		p.detectEndLocked()
		if p.status == StatusPaused || p.index >= len(p.sequences) {
			return nil
		}
		p.offset = p.positionLocked()
		p.anchor = p.now()
		p.status = StatusPaused
		p.publishLocked()
		return nil
	})
}

// Stop halts playback and rewinds the current sequence
func (p *Local) Stop(ctx context.Context) error {
	return p.update(func() error {
		if len(p.sequences) == 0 {
			return ErrNoSequences
		}
		p.offset = 0
		p.anchor = p.now()
		p.status = StatusStopped
		p.publishLocked()
		return nil
	})
}

// Next moves to the start of the following sequence
func (p *Local) Next(ctx context.Context) error {
	return p.update(func() error {
		return p.stepLocked(1)
	})
}

// Previous moves to the start of the preceding sequence
func (p *Local) Previous(ctx context.Context) error {
	return p.update(func() error {
		return p.stepLocked(-1)
	})
}

func (p *Local) stepLocked(delta int) error {
	if len(p.sequences) == 0 {
		return ErrNoSequences
	}
	p.detectEndLocked()
	p.index = min(max(p.index+delta, 0), len(p.sequences))
	p.offset = 0
	p.anchor = p.now()
	if p.index == len(p.sequences) {
		p.status = StatusStopped
	}
	p.publishLocked()
	return nil
}

// Status returns the playback status
func (p *Local) Status(ctx context.Context) (Status, error) {
	var s Status
	err := p.update(func() error {
		p.detectEndLocked()
		s = p.status
		return nil
	})
	return s, err
}

// Position returns the position in the current sequence
func (p *Local) Position(ctx context.Context) (float64, error) {
	var pos float64
	err := p.update(func() error {
		if len(p.sequences) == 0 {
			return ErrNoSequences
		}
		p.detectEndLocked()
		pos = p.positionLocked()
		return nil
	})
	return pos, err
}

// SetPosition moves within the current sequence, clamped to its duration.
// A stopped player moved away from the start becomes paused.
func (p *Local) SetPosition(ctx context.Context, pos float64) error {
	if math.IsNaN(pos) || math.IsInf(pos, 0) {
		return fmt.Errorf("%w: position %v", ErrFormat, pos)
	}
	return p.update(func() error {
		if len(p.sequences) == 0 {
			return ErrNoSequences
		}
		p.detectEndLocked()
		p.offset = min(max(pos, 0), p.durationLocked())
		p.anchor = p.now()
		if p.status == StatusStopped && p.offset != 0 {
			p.status = StatusPaused
		}
		p.publishLocked()
		return nil
	})
}

// Duration returns the length of the current sequence, 0 past the end of the playlist
func (p *Local) Duration(ctx context.Context) (float64, error) {
	var d float64
	err := p.update(func() error {
		if len(p.sequences) == 0 {
			return ErrNoSequences
		}
		p.detectEndLocked()
		d = p.durationLocked()
		return nil
	})
	return d, err
}

// Volume returns the output volume
func (p *Local) Volume(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume, nil
}

// SetVolume sets the output volume
func (p *Local) SetVolume(ctx context.Context, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: volume %v outside [0, 1]", ErrFormat, v)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.engine.SetVolume(v); err != nil {
		return err
	}
	p.volume = v
	return nil
}

// AppendSequence adds seq to the end of the playlist.
// The first sequence fixes the audio format of the player and opens the engine.
func (p *Local) AppendSequence(ctx context.Context, seq Sequence) error {
	if err := seq.Format.Validate(); err != nil {
		return err
	}

	return p.update(func() error {
		if p.format != nil && *p.format != seq.Format {
			return fmt.Errorf("%w: sequence format %v differs from player format %v", ErrFormat, seq.Format, *p.format)
		}

		prevFormat, prevSequences := p.format, p.sequences
		p.format = &seq.Format
		p.sequences = append(slices.Clip(p.sequences), seq)
		p.publishLocked()

		if !p.opened {
			if err := p.engine.Open(seq.Format, p.produce); err != nil {
				p.format, p.sequences = prevFormat, prevSequences
				p.publishLocked()
				return fmt.Errorf("failed to open audio engine: %w", err)
			}
			p.opened = true
			p.logger.Info("audio engine opened", zap.Stringer("format", seq.Format))
		}
		return nil
	})
}

// RemoveSequence deletes the sequence at index.
// Removing the current sequence stops playback at the start of its successor.
func (p *Local) RemoveSequence(ctx context.Context, index int) error {
	return p.update(func() error {
		if len(p.sequences) == 0 {
			return ErrNoSequences
		}
		if index < 0 || index >= len(p.sequences) {
			return fmt.Errorf("%w: sequence index %d out of range", ErrFormat, index)
		}
		p.detectEndLocked()

		// Keep the producer's view intact by never editing the shared array
		pos := p.positionLocked()
		p.sequences = slices.Delete(slices.Clone(p.sequences), index, index+1)
		switch {
		case index < p.index:
			p.index--
			p.offset = pos
		case index == p.index:
			p.status = StatusStopped
			p.offset = 0
		default:
			p.offset = pos
		}
		p.anchor = p.now()
		p.publishLocked()
		return nil
	})
}

// ClearSequences empties the playlist; the audio format stays fixed
func (p *Local) ClearSequences(ctx context.Context) error {
	return p.update(func() error {
		p.sequences = nil
		p.index = 0
		p.offset = 0
		p.anchor = p.now()
		p.status = StatusStopped
		p.publishLocked()
		return nil
	})
}

// NumSequences returns the length of the playlist
func (p *Local) NumSequences(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sequences), nil
}

// SequenceData returns the raw audio of the sequence at index
func (p *Local) SequenceData(ctx context.Context, index int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.sequences) == 0 {
		return nil, ErrNoSequences
	}
	if index < 0 || index >= len(p.sequences) {
		return nil, fmt.Errorf("%w: sequence index %d out of range", ErrFormat, index)
	}
	return p.sequences[index].Data, nil
}

// Format returns the audio format fixed by the first sequence, if any
func (p *Local) Format() (Format, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.format == nil {
		return Format{}, false
	}
	return *p.format, true
}

// Index returns the index of the current sequence
func (p *Local) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Terminate closes the audio engine; it is safe to call repeatedly
func (p *Local) Terminate(ctx context.Context) error {
	return p.update(func() error {
		p.status = StatusStopped
		p.offset = 0
		p.publishLocked()

		if !p.opened {
			return nil
		}
		p.opened = false
		if err := p.engine.Close(); err != nil {
			return fmt.Errorf("failed to close audio engine: %w", err)
		}
		p.logger.Info("audio engine closed")
		return nil
	})
}

func (p *Local) durationLocked() float64 {
	if p.index >= len(p.sequences) {
		return 0
	}
	return p.sequences[p.index].Duration()
}

func (p *Local) positionLocked() float64 {
	pos := p.offset
	if p.status == StatusPlaying {
		pos += p.now().Sub(p.anchor).Seconds()
	}
	return min(max(pos, 0), p.durationLocked())
}

// detectEndLocked stops a player that has run past the end of its sequence
func (p *Local) detectEndLocked() {
	if p.status != StatusPlaying {
		return
	}
	elapsed := p.now().Sub(p.anchor).Seconds()
	if p.offset+elapsed < p.durationLocked() {
		return
	}

	p.logger.Debug("sequence ended", zap.Int("index", p.index))
	p.status = StatusStopped
	p.index = min(p.index+1, len(p.sequences))
	p.offset = 0
	p.anchor = p.now()
	p.publishLocked()
}

func (p *Local) publishLocked() {
	p.gen++
	snap := &snapshot{
		gen:       p.gen,
		playing:   p.status == StatusPlaying,
		index:     p.index,
		sequences: p.sequences,
	}
	if p.index < len(p.sequences) {
		snap.offset = p.sequences[p.index].byteOffset(p.positionLocked())
	}
	if p.format != nil {
		snap.frameSize = p.format.FrameSize()
		if p.format.SampleWidth == 1 {
			snap.silence = 0x80
		}
	}
	p.shared.Store(snap)
}

// produce fills the next frames of audio. It runs on the engine's goroutine.
func (p *Local) produce(frames int) []byte {
	if snap := p.shared.Load(); snap != nil && snap.gen != p.cursor.gen {
		p.cursor = cursor(*snap)
	}

	c := &p.cursor
	out := make([]byte, frames*c.frameSize)
	filled := 0

	if c.playing && c.index < len(c.sequences) {
		data := c.sequences[c.index].Data
		filled = copy(out, data[c.offset:])
		c.offset += filled
		if c.offset >= len(data) {
			c.playing = false
			c.offset = 0
			c.index = min(c.index+1, len(c.sequences))
		}
	}

	if c.silence != 0 {
		for i := filled; i < len(out); i++ {
			out[i] = c.silence
		}
	}
	return out
}
