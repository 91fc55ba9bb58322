package player

import "fmt"

// Status represents the current playback status
type Status int

const (
	StatusPlaying Status = 0
	StatusPaused  Status = 1
	StatusStopped Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus converts a wire status code into a Status
func ParseStatus(code int) (Status, error) {
	s := Status(code)
	switch s {
	case StatusPlaying, StatusPaused, StatusStopped:
		return s, nil
	}
	return 0, fmt.Errorf("%w: unknown status %d", ErrFormat, code)
}
