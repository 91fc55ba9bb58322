package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Limits bound what ReadMessage accepts from a peer
type Limits struct {
	MaxChunks     int // Maximum number of chunks in one message
	MaxChunkBytes int // Maximum size of a single chunk
}

// DefaultLimits allow any request of the protocol, including sequences of
// several minutes of 48kHz stereo audio
var DefaultLimits = Limits{
	MaxChunks:     16,
	MaxChunkBytes: 256 << 20,
}

// WriteMessage writes chunks as one message:
// u32 count followed by (u32 length, bytes) for every chunk, big-endian
func WriteMessage(w io.Writer, chunks ...[]byte) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: message has no chunks", ErrFormat)
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(chunks)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write message header: %w", err)
	}

	for i, c := range chunks {
		binary.BigEndian.PutUint32(header, uint32(len(c)))
		if _, err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write chunk %d header: %w", i, err)
		}
		if _, err := w.Write(c); err != nil {
			return fmt.Errorf("failed to write chunk %d: %w", i, err)
		}
	}

	return nil
}

// ReadMessage reads one message written by WriteMessage.
// Counts and lengths are checked against limits before any body is read.
// io.EOF is returned unwrapped when the stream ends cleanly between messages.
func ReadMessage(r io.Reader, limits Limits) ([][]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read message header: %w", err)
	}

	count := binary.BigEndian.Uint32(header)
	if count == 0 || uint64(count) > uint64(limits.MaxChunks) {
		return nil, fmt.Errorf("%w: chunk count %d outside [1, %d]", ErrFormat, count, limits.MaxChunks)
	}

	chunks := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, header); err != nil {
			return nil, fmt.Errorf("failed to read chunk %d header: %w", i, unexpected(err))
		}

		size := binary.BigEndian.Uint32(header)
		if uint64(size) > uint64(limits.MaxChunkBytes) {
			return nil, fmt.Errorf("%w: chunk %d of %d bytes exceeds %d", ErrFormat, i, size, limits.MaxChunkBytes)
		}

		chunk := make([]byte, size)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("failed to read chunk %d: %w", i, unexpected(err))
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// unexpected turns a clean EOF inside a message into io.ErrUnexpectedEOF
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
