package playlist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/faiface/beep/wav"
	"go.uber.org/zap"

	"github.com/trigs/trigs/internal/player"
)

// ErrUnsupported is returned for playlist entries that are neither WAV files nor directories
var ErrUnsupported = errors.New("only .wav files and directories containing them are supported")

// ErrMixedFormats is returned when the files of a playlist differ in format
var ErrMixedFormats = errors.New("playlist files differ in format")

// Resolve turns files and directories into the sorted absolute paths of
// WAV files. Directories contribute the WAV files directly inside them.
func Resolve(paths []string) ([]string, error) {
	var out []string
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}

		info, err := os.Stat(abs)
		if err == nil && info.IsDir() {
			matches, err := filepath.Glob(filepath.Join(abs, "*.wav"))
			if err != nil {
				return nil, fmt.Errorf("failed to list %s: %w", abs, err)
			}
			out = append(out, matches...)
			continue
		}

		if !strings.EqualFold(filepath.Ext(abs), ".wav") {
			return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
		}
		out = append(out, abs)
	}

	sort.Strings(out)
	return out, nil
}

// LoadWAV reads a WAV file into a sequence of raw PCM frames
func LoadWAV(path string) (player.Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return player.Sequence{}, fmt.Errorf("failed to open %s: %w", path, err)
	}

	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return player.Sequence{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	defer streamer.Close()

	seq := player.Sequence{
		Format: player.Format{
			SampleWidth: format.Precision,
			Channels:    format.NumChannels,
			FrameRate:   int(format.SampleRate),
		},
	}
	if err := seq.Validate(); err != nil {
		return player.Sequence{}, fmt.Errorf("%s: %w", path, err)
	}

	frameSize := seq.FrameSize()
	seq.Data = make([]byte, streamer.Len()*frameSize)

	samples := make([][2]float64, 4096)
	pos := 0
	for {
		n, ok := streamer.Stream(samples)
		for _, s := range samples[:n] {
			if pos+frameSize > len(seq.Data) {
				seq.Data = append(seq.Data, make([]byte, frameSize)...)
			}
			frame := seq.Data[pos : pos+frameSize]
			if seq.SampleWidth == 1 {
				format.EncodeUnsigned(frame, s)
			} else {
				format.EncodeSigned(frame, s)
			}
			pos += frameSize
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return player.Sequence{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	seq.Data = seq.Data[:pos]
	return seq, nil
}

// Load resolves paths and replaces the playlist of p with the WAV files,
// in order. All files must share one format. A remote player keeps its
// playlist across connections, so the previous one is cleared first.
// It returns the number of sequences added.
func Load(ctx context.Context, p player.Player, paths []string, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	files, err := Resolve(paths)
	if err != nil {
		return 0, err
	}

	// Nothing to clear before the first sequence creates the session
	if err := p.ClearSequences(ctx); err != nil && !errors.Is(err, player.ErrUninitialized) {
		return 0, fmt.Errorf("failed to clear playlist: %w", err)
	}

	var first *player.Format
	for i, file := range files {
		seq, err := LoadWAV(file)
		if err != nil {
			return i, err
		}
		if first == nil {
			first = &seq.Format
		} else if seq.Format != *first {
			return i, fmt.Errorf("%w: %s is %s, expected %s", ErrMixedFormats, file, seq.Format, *first)
		}

		if err := p.AppendSequence(ctx, seq); err != nil {
			return i, fmt.Errorf("failed to append %s: %w", file, err)
		}
		logger.Info("sequence loaded",
			zap.Int("index", i),
			zap.String("file", filepath.Base(file)),
			zap.Stringer("format", seq.Format),
			zap.Float64("duration", seq.Duration()))
	}

	return len(files), nil
}
