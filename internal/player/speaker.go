package player

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"go.uber.org/zap"
)

// SpeakerEngine plays audio on the default output device through beep's speaker
type SpeakerEngine struct {
	mu      sync.Mutex
	buffer  time.Duration
	logger  *zap.Logger
	volume  *effects.Volume
	level   float64
	running bool
}

// NewSpeakerEngine creates an engine that pulls audio in chunks of the given duration
func NewSpeakerEngine(buffer time.Duration, logger *zap.Logger) *SpeakerEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpeakerEngine{
		buffer: buffer,
		logger: logger,
		level:  1,
	}
}

// Open initializes the speaker for f and starts streaming from produce
func (e *SpeakerEngine) Open(f Format, produce ProduceFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("speaker already open")
	}

	sr := beep.SampleRate(f.FrameRate)
	if err := speaker.Init(sr, sr.N(e.buffer)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}

	e.volume = &effects.Volume{
		Streamer: newPCMStreamer(f, produce),
		Base:     2,
	}
	applyLevel(e.volume, e.level)
	speaker.Play(e.volume)
	e.running = true

	e.logger.Info("speaker started",
		zap.Stringer("format", f),
		zap.Duration("buffer", e.buffer))
	return nil
}

// SetVolume sets the output gain; it is remembered across Open calls
func (e *SpeakerEngine) SetVolume(v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.level = v
	if e.volume != nil {
		speaker.Lock()
		applyLevel(e.volume, v)
		speaker.Unlock()
	}
	return nil
}

// Close stops the speaker
func (e *SpeakerEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	speaker.Clear()
	speaker.Close()
	e.running = false
	e.volume = nil
	e.logger.Info("speaker stopped")
	return nil
}

// applyLevel maps a linear amplitude fraction onto the base 2 volume effect
func applyLevel(v *effects.Volume, level float64) {
	if level <= 0 {
		v.Silent = true
		v.Volume = 0
		return
	}
	v.Silent = false
	v.Volume = math.Log2(level)
}

// pcmStreamer decodes raw PCM pulled from a ProduceFunc into beep samples
type pcmStreamer struct {
	format   beep.Format
	unsigned bool
	frame    int
	produce  ProduceFunc
}

func newPCMStreamer(f Format, produce ProduceFunc) *pcmStreamer {
	return &pcmStreamer{
		format: beep.Format{
			SampleRate:  beep.SampleRate(f.FrameRate),
			NumChannels: f.Channels,
			Precision:   f.SampleWidth,
		},
		unsigned: f.SampleWidth == 1,
		frame:    f.FrameSize(),
		produce:  produce,
	}
}

// Stream never runs dry; silence is produced while nothing plays
func (s *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	data := s.produce(len(samples))
	for i := range samples {
		p := data[i*s.frame:]
		if len(p) < s.frame {
			samples[i] = [2]float64{}
			continue
		}
		if s.unsigned {
			samples[i], _ = s.format.DecodeUnsigned(p)
		} else {
			samples[i], _ = s.format.DecodeSigned(p)
		}
	}
	return len(samples), true
}

func (s *pcmStreamer) Err() error {
	return nil
}
