package player

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// fakeClock is advanced by hand
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) AdvanceSeconds(s float64) {
	c.t = c.t.Add(time.Duration(s * float64(time.Second)))
}

// fakeEngine records what the player asks of it
type fakeEngine struct {
	opened   int
	closed   int
	format   Format
	produce  ProduceFunc
	volume   float64
	openErr  error
	noVolume bool
}

func (e *fakeEngine) Open(f Format, produce ProduceFunc) error {
	if e.openErr != nil {
		return e.openErr
	}
	e.opened++
	e.format = f
	e.produce = produce
	return nil
}

func (e *fakeEngine) SetVolume(v float64) error {
	if e.noVolume {
		return ErrNotSupported
	}
	e.volume = v
	return nil
}

func (e *fakeEngine) Close() error {
	e.closed++
	return nil
}

var testFormat = Format{SampleWidth: 2, Channels: 1, FrameRate: 10}

// seconds builds a sequence of the test format lasting d seconds, filled with b
func seconds(d float64, b byte) Sequence {
	n := int(d*float64(testFormat.FrameRate)) * testFormat.FrameSize()
	return Sequence{Format: testFormat, Data: bytes.Repeat([]byte{b}, n)}
}

func newTestPlayer(t *testing.T, durations ...float64) (*Local, *fakeClock, *fakeEngine) {
	t.Helper()
	clock := newFakeClock()
	engine := &fakeEngine{}
	p := NewLocal(engine, WithClock(clock.Now), WithLogger(zaptest.NewLogger(t)))
	for i, d := range durations {
		if err := p.AppendSequence(context.Background(), seconds(d, byte(i+1))); err != nil {
			t.Fatalf("AppendSequence() error = %v", err)
		}
	}
	return p, clock, engine
}

func mustStatus(t *testing.T, p *Local) Status {
	t.Helper()
	s, err := p.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	return s
}

func mustPosition(t *testing.T, p *Local) float64 {
	t.Helper()
	pos, err := p.Position(context.Background())
	if err != nil {
		t.Fatalf("Position() error = %v", err)
	}
	return pos
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLocalEndOfSequence(t *testing.T) {
	ctx := context.Background()
	p, clock, _ := newTestPlayer(t, 2.0, 3.0)

	if err := p.Play(ctx); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	clock.AdvanceSeconds(1.0)
	if pos := mustPosition(t, p); !approx(pos, 1.0) {
		t.Errorf("Position() = %v, want 1.0", pos)
	}

	clock.AdvanceSeconds(1.1)
	if s := mustStatus(t, p); s != StatusStopped {
		t.Errorf("Status() = %v, want stopped", s)
	}
	if i := p.Index(); i != 1 {
		t.Errorf("Index() = %d, want 1", i)
	}
	if pos := mustPosition(t, p); pos != 0 {
		t.Errorf("Position() = %v, want 0", pos)
	}
}

func TestLocalSetPositionFromStopped(t *testing.T) {
	ctx := context.Background()
	p, clock, _ := newTestPlayer(t, 2.0, 3.0)

	if err := p.SetPosition(ctx, 1.5); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}
	if s := mustStatus(t, p); s != StatusPaused {
		t.Errorf("Status() = %v, want paused", s)
	}

	if err := p.Play(ctx); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	clock.AdvanceSeconds(0.25)
	if pos := mustPosition(t, p); !approx(pos, 1.75) {
		t.Errorf("Position() = %v, want 1.75", pos)
	}
}

func TestLocalSetPositionClamps(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestPlayer(t, 2.0)

	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0.5, 0.5},
		{9, 2.0},
	}
	for _, tt := range tests {
		if err := p.SetPosition(ctx, tt.in); err != nil {
			t.Fatalf("SetPosition(%v) error = %v", tt.in, err)
		}
		if pos := mustPosition(t, p); !approx(pos, tt.want) {
			t.Errorf("SetPosition(%v): Position() = %v, want %v", tt.in, pos, tt.want)
		}
	}

	if err := p.SetPosition(ctx, math.NaN()); !errors.Is(err, ErrFormat) {
		t.Errorf("SetPosition(NaN) error = %v, want ErrFormat", err)
	}
}

func TestLocalTransport(t *testing.T) {
	ctx := context.Background()
	p, clock, _ := newTestPlayer(t, 2.0, 3.0)

	// pausing keeps the position
	_ = p.Play(ctx)
	clock.AdvanceSeconds(0.5)
	if err := p.Pause(ctx); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	clock.AdvanceSeconds(10)
	if pos := mustPosition(t, p); !approx(pos, 0.5) {
		t.Errorf("Position() while paused = %v, want 0.5", pos)
	}
	if s := mustStatus(t, p); s != StatusPaused {
		t.Errorf("Status() = %v, want paused", s)
	}

	// play twice is a no-op the second time
	_ = p.Play(ctx)
	clock.AdvanceSeconds(0.5)
	_ = p.Play(ctx)
	if pos := mustPosition(t, p); !approx(pos, 1.0) {
		t.Errorf("Position() = %v, want 1.0", pos)
	}

	// next keeps playing and rewinds
	if err := p.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if s := mustStatus(t, p); s != StatusPlaying {
		t.Errorf("Status() after Next = %v, want playing", s)
	}
	if i := p.Index(); i != 1 {
		t.Errorf("Index() = %d, want 1", i)
	}

	// moving past the end forces stopped
	_ = p.Next(ctx)
	if s := mustStatus(t, p); s != StatusStopped {
		t.Errorf("Status() past the end = %v, want stopped", s)
	}
	if i := p.Index(); i != 2 {
		t.Errorf("Index() = %d, want 2", i)
	}
	_ = p.Next(ctx)
	if i := p.Index(); i != 2 {
		t.Errorf("Index() after clamped Next = %d, want 2", i)
	}
	if d, _ := p.Duration(ctx); d != 0 {
		t.Errorf("Duration() past the end = %v, want 0", d)
	}

	// play at the end stays stopped
	_ = p.Play(ctx)
	if s := mustStatus(t, p); s != StatusStopped {
		t.Errorf("Status() after Play at end = %v, want stopped", s)
	}

	_ = p.Previous(ctx)
	_ = p.Previous(ctx)
	_ = p.Previous(ctx)
	if i := p.Index(); i != 0 {
		t.Errorf("Index() after clamped Previous = %d, want 0", i)
	}

	_ = p.SetPosition(ctx, 1)
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if pos := mustPosition(t, p); pos != 0 {
		t.Errorf("Position() after Stop = %v, want 0", pos)
	}
}

func TestLocalPositionBounds(t *testing.T) {
	ctx := context.Background()
	p, clock, _ := newTestPlayer(t, 1.0, 1.0)

	ops := []func(context.Context) error{p.Play, p.Pause, p.Play, p.Next, p.Pause, p.Previous, p.Play, p.Stop, p.Play}
	last := -1.0
	for i, op := range ops {
		_ = op(ctx)
		for j := 0; j < 3; j++ {
			before, _ := p.Status(ctx)
			pos := mustPosition(t, p)
			d, _ := p.Duration(ctx)
			if pos < 0 || pos > d {
				t.Fatalf("step %d: Position() = %v outside [0, %v]", i, pos, d)
			}
			if before == StatusPlaying && mustStatus(t, p) == StatusPlaying && pos < last {
				t.Fatalf("step %d: position went back from %v to %v while playing", i, last, pos)
			}
			last = pos
			clock.AdvanceSeconds(0.2)
		}
		last = -1
	}
}

func TestLocalEmptyPlaylist(t *testing.T) {
	ctx := context.Background()
	p, _, engine := newTestPlayer(t)

	for name, op := range map[string]func(context.Context) error{
		"Play": p.Play, "Pause": p.Pause, "Stop": p.Stop, "Next": p.Next, "Previous": p.Previous,
	} {
		if err := op(ctx); !errors.Is(err, ErrNoSequences) {
			t.Errorf("%s() error = %v, want ErrNoSequences", name, err)
		}
	}
	if _, err := p.Position(ctx); !errors.Is(err, ErrNoSequences) {
		t.Errorf("Position() error = %v, want ErrNoSequences", err)
	}
	if s := mustStatus(t, p); s != StatusStopped {
		t.Errorf("Status() = %v, want stopped", s)
	}
	if err := p.Terminate(ctx); err != nil {
		t.Errorf("Terminate() on unopened player error = %v", err)
	}
	if engine.closed != 0 {
		t.Errorf("engine closed %d times, want 0", engine.closed)
	}
}

func TestLocalFormatIsFixed(t *testing.T) {
	ctx := context.Background()
	p, _, engine := newTestPlayer(t, 1.0)

	other := seconds(1.0, 9)
	other.FrameRate = 20
	if err := p.AppendSequence(ctx, other); !errors.Is(err, ErrFormat) {
		t.Errorf("AppendSequence(other format) error = %v, want ErrFormat", err)
	}
	if err := p.AppendSequence(ctx, seconds(0.5, 9)); err != nil {
		t.Errorf("AppendSequence(same format) error = %v", err)
	}
	if engine.opened != 1 || engine.format != testFormat {
		t.Errorf("engine opened %d times with %v, want once with %v", engine.opened, engine.format, testFormat)
	}
	if n, _ := p.NumSequences(ctx); n != 2 {
		t.Errorf("NumSequences() = %d, want 2", n)
	}
}

func TestLocalRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestPlayer(t, 1.0, 2.0, 3.0)

	_ = p.Next(ctx)
	_ = p.Next(ctx)
	if err := p.RemoveSequence(ctx, 0); err != nil {
		t.Fatalf("RemoveSequence() error = %v", err)
	}
	if i := p.Index(); i != 1 {
		t.Errorf("Index() after removing an earlier sequence = %d, want 1", i)
	}
	data, err := p.SequenceData(ctx, 1)
	if err != nil || data[0] != 3 {
		t.Errorf("SequenceData(1) = %d bytes, %v, want the third sequence", len(data), err)
	}
	if err := p.RemoveSequence(ctx, 5); !errors.Is(err, ErrFormat) {
		t.Errorf("RemoveSequence(5) error = %v, want ErrFormat", err)
	}

	if err := p.ClearSequences(ctx); err != nil {
		t.Fatalf("ClearSequences() error = %v", err)
	}
	if n, _ := p.NumSequences(ctx); n != 0 {
		t.Errorf("NumSequences() = %d, want 0", n)
	}
	if _, ok := p.Format(); !ok {
		t.Error("Format() lost after ClearSequences")
	}
}

func TestLocalVolume(t *testing.T) {
	ctx := context.Background()
	p, _, engine := newTestPlayer(t, 1.0)

	if err := p.SetVolume(ctx, 0.25); err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	if v, _ := p.Volume(ctx); v != 0.25 || engine.volume != 0.25 {
		t.Errorf("Volume() = %v, engine volume = %v, want 0.25", v, engine.volume)
	}
	if err := p.SetVolume(ctx, 1.5); !errors.Is(err, ErrFormat) {
		t.Errorf("SetVolume(1.5) error = %v, want ErrFormat", err)
	}

	engine.noVolume = true
	if err := p.SetVolume(ctx, 0.5); !errors.Is(err, ErrNotSupported) {
		t.Errorf("SetVolume() on engine without gain error = %v, want ErrNotSupported", err)
	}
}

func TestLocalOnChange(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	var seen []Status
	p := NewLocal(&fakeEngine{}, WithClock(clock.Now), WithOnChange(func(s Status) {
		seen = append(seen, s)
	}))
	_ = p.AppendSequence(ctx, seconds(1, 1))

	_ = p.Play(ctx)
	_ = p.Pause(ctx)
	_ = p.Pause(ctx)
	_ = p.Play(ctx)
	clock.AdvanceSeconds(2)
	_, _ = p.Status(ctx)

	want := []Status{StatusPlaying, StatusPaused, StatusPlaying, StatusStopped}
	if len(seen) != len(want) {
		t.Fatalf("OnChange saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("OnChange[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestLocalProducer(t *testing.T) {
	ctx := context.Background()
	p, clock, engine := newTestPlayer(t, 0.3, 0.2)
	frame := testFormat.FrameSize()

	// stopped produces silence
	out := engine.produce(2)
	if len(out) != 2*frame || !bytes.Equal(out, make([]byte, 2*frame)) {
		t.Fatalf("produce() while stopped = %v, want silence", out)
	}

	_ = p.Play(ctx)
	out = engine.produce(2)
	if !bytes.Equal(out, bytes.Repeat([]byte{1}, 2*frame)) {
		t.Errorf("produce() = %v, want first sequence data", out)
	}

	// the producer runs off the end and pads with silence
	out = engine.produce(2)
	want := append(bytes.Repeat([]byte{1}, frame), make([]byte, frame)...)
	if !bytes.Equal(out, want) {
		t.Errorf("produce() at end = %v, want %v", out, want)
	}
	if out := engine.produce(1); !bytes.Equal(out, make([]byte, frame)) {
		t.Errorf("produce() after end = %v, want silence", out)
	}

	// control side seeks into the second sequence
	clock.AdvanceSeconds(0.3)
	_ = p.Play(ctx)
	if i := p.Index(); i != 1 {
		t.Fatalf("Index() = %d, want 1", i)
	}
	_ = p.SetPosition(ctx, 0.1)
	out = engine.produce(1)
	if !bytes.Equal(out, bytes.Repeat([]byte{2}, frame)) {
		t.Errorf("produce() after seek = %v, want second sequence data", out)
	}
}

func TestLocalTerminateIdempotent(t *testing.T) {
	ctx := context.Background()
	p, _, engine := newTestPlayer(t, 1.0)

	if err := p.Terminate(ctx); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if err := p.Terminate(ctx); err != nil {
		t.Fatalf("second Terminate() error = %v", err)
	}
	if engine.closed != 1 {
		t.Errorf("engine closed %d times, want 1", engine.closed)
	}
}

func TestSequenceDuration(t *testing.T) {
	s := Sequence{Format: Format{SampleWidth: 2, Channels: 2, FrameRate: 4}, Data: make([]byte, 2*2*6+1)}
	if s.Frames() != 6 {
		t.Errorf("Frames() = %d, want 6", s.Frames())
	}
	if s.Duration() != 1.5 {
		t.Errorf("Duration() = %v, want 1.5", s.Duration())
	}
	if err := (Format{SampleWidth: 5, Channels: 1, FrameRate: 1}).Validate(); !errors.Is(err, ErrFormat) {
		t.Errorf("Validate() error = %v, want ErrFormat", err)
	}
}
