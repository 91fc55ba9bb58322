package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/trigs/trigs/internal/player"
	"github.com/trigs/trigs/internal/protocol"
)

var (
	// ErrProtocol is returned when the server answers outside the protocol
	ErrProtocol = errors.New("remote protocol violation")
	// ErrRemoteUnknown is returned when the server reports an unexpected failure
	ErrRemoteUnknown = errors.New("remote player failed")
	// ErrBroken is returned for requests on a client whose connection failed earlier
	ErrBroken = errors.New("remote connection is broken")
)

// Client sends requests over a Conn, one at a time
type Client struct {
	mu     sync.Mutex
	conn   *Conn
	broken error
	logger *zap.Logger
}

// NewClient creates a client that owns conn
func NewClient(conn *Conn, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		conn:   conn,
		logger: logger,
	}
}

// Request sends cmd with args and waits for its response.
// It returns the decoded value for commands that have one, nil otherwise.
//
// Error responses map onto the player errors. Any transport failure or
// protocol violation leaves the stream in an unknown position, so the client
// refuses further requests afterwards.
func (c *Client) Request(ctx context.Context, cmd protocol.Command, args ...any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return nil, fmt.Errorf("%w: %w", ErrBroken, c.broken)
	}

	chunks, err := protocol.EncodeRequest(cmd, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", player.ErrFormat, err)
	}

	c.logger.Debug("sending request", zap.String("request", protocol.Format(cmd, args)))

	if err := c.conn.Send(ctx, chunks...); err != nil {
		return nil, c.fail(fmt.Errorf("failed to send %v: %w", cmd, err))
	}

	resp, err := c.conn.Recv(ctx)
	if err != nil {
		return nil, c.fail(fmt.Errorf("failed to receive response to %v: %w", cmd, err))
	}

	value, err := decodeResponse(cmd, resp)
	if errors.Is(err, ErrProtocol) {
		return nil, c.fail(err)
	}
	return value, err
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken == nil {
		c.broken = errors.New("client closed")
	}
	return c.conn.Close()
}

func (c *Client) fail(err error) error {
	c.broken = err
	c.logger.Warn("remote connection broken", zap.Error(err))
	return err
}

func decodeResponse(cmd protocol.Command, chunks [][]byte) (any, error) {
	code, err := protocol.DecodeInt(chunks[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad response code: %w", ErrProtocol, err)
	}

	kind, hasValue := protocol.ValueKind(cmd)

	switch resp := protocol.Response(code); resp {
	case protocol.RespSuccess:
		if len(chunks) != 1 {
			return nil, fmt.Errorf("%w: SUCCESS for %v carries %d values", ErrProtocol, cmd, len(chunks)-1)
		}
		if hasValue {
			return nil, fmt.Errorf("%w: SUCCESS without value for %v", ErrProtocol, cmd)
		}
		return nil, nil

	case protocol.RespValue:
		if !hasValue {
			return nil, fmt.Errorf("%w: VALUE for %v, which returns nothing", ErrProtocol, cmd)
		}
		if len(chunks) != 2 {
			return nil, fmt.Errorf("%w: VALUE for %v carries %d values", ErrProtocol, cmd, len(chunks)-1)
		}
		v, err := protocol.Decode(kind, chunks[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		return v, nil

	case protocol.RespErrFormat:
		return nil, fmt.Errorf("%v: %w", cmd, player.ErrFormat)
	case protocol.RespErrUninitialized:
		return nil, fmt.Errorf("%v: %w", cmd, player.ErrUninitialized)
	case protocol.RespErrNoSequences:
		return nil, fmt.Errorf("%v: %w", cmd, player.ErrNoSequences)
	case protocol.RespErrNotImplemented:
		return nil, fmt.Errorf("%v: %w", cmd, player.ErrNotSupported)
	case protocol.RespErrUnknown:
		return nil, fmt.Errorf("%v: %w", cmd, ErrRemoteUnknown)
	default:
		return nil, fmt.Errorf("%w: unknown response %v", ErrProtocol, resp)
	}
}
