package player

import "fmt"

// Format describes raw interleaved PCM audio
type Format struct {
	SampleWidth int // Bytes per sample (1-4); 1 means unsigned, wider means signed little-endian
	Channels    int
	FrameRate   int // Frames per second
}

// FrameSize returns the number of bytes in one frame
func (f Format) FrameSize() int {
	return f.SampleWidth * f.Channels
}

// Validate checks that f describes playable audio
func (f Format) Validate() error {
	if f.SampleWidth < 1 || f.SampleWidth > 4 {
		return fmt.Errorf("%w: sample width %d", ErrFormat, f.SampleWidth)
	}
	if f.Channels < 1 {
		return fmt.Errorf("%w: %d channels", ErrFormat, f.Channels)
	}
	if f.FrameRate < 1 {
		return fmt.Errorf("%w: frame rate %d", ErrFormat, f.FrameRate)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.FrameRate, f.SampleWidth*8, f.Channels)
}

// Sequence is one playlist entry of raw PCM audio
type Sequence struct {
	Format
	Data []byte
}

// Frames returns the number of whole frames in the sequence
func (s Sequence) Frames() int {
	if s.FrameSize() == 0 {
		return 0
	}
	return len(s.Data) / s.FrameSize()
}

// Duration returns the length of the sequence in seconds
func (s Sequence) Duration() float64 {
	if s.FrameRate == 0 {
		return 0
	}
	return float64(s.Frames()) / float64(s.FrameRate)
}

// byteOffset converts a position in seconds into a frame aligned offset into Data
func (s Sequence) byteOffset(pos float64) int {
	frame := int(pos * float64(s.FrameRate))
	if frame < 0 {
		frame = 0
	}
	if frame > s.Frames() {
		frame = s.Frames()
	}
	return frame * s.FrameSize()
}
