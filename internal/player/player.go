package player

import (
	"context"
	"errors"
)

var (
	// ErrNotSupported is returned when a backend cannot perform an operation
	ErrNotSupported = errors.New("operation not supported by this player")
	// ErrUninitialized is returned when no playback session exists yet
	ErrUninitialized = errors.New("player is not initialized")
	// ErrNoSequences is returned by operations that need a non-empty playlist
	ErrNoSequences = errors.New("player has no sequences")
	// ErrFormat is returned for arguments outside what the operation accepts
	ErrFormat = errors.New("invalid player argument")
)

// Player controls playback of an ordered list of audio sequences.
// Positions and durations are in seconds, volume is a fraction in [0, 1].
type Player interface {
	// Transport
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error

	// Playback state
	Status(ctx context.Context) (Status, error)
	Position(ctx context.Context) (float64, error)
	SetPosition(ctx context.Context, pos float64) error
	Duration(ctx context.Context) (float64, error)
	Volume(ctx context.Context) (float64, error)
	SetVolume(ctx context.Context, v float64) error

	// Playlist
	AppendSequence(ctx context.Context, seq Sequence) error
	RemoveSequence(ctx context.Context, index int) error
	ClearSequences(ctx context.Context) error
	NumSequences(ctx context.Context) (int, error)
	SequenceData(ctx context.Context, index int) ([]byte, error)

	// Terminate releases the audio resources held by the player
	Terminate(ctx context.Context) error
}
