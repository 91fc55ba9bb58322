package player

// ProduceFunc returns the next frames of audio, exactly frames*FrameSize bytes.
// It is called from the engine's real-time goroutine and must not block.
type ProduceFunc func(frames int) []byte

// Engine is the audio output a Local player pulls samples through
type Engine interface {
	// Open starts pulling audio of the given format from produce
	Open(f Format, produce ProduceFunc) error

	// SetVolume sets the output gain as a fraction in [0, 1].
	// Engines without gain control return ErrNotSupported.
	SetVolume(v float64) error

	// Close stops audio output; it is safe to call on an engine never opened
	Close() error
}
