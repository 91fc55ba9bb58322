package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/trigs/trigs/internal/protocol"
)

// Request is a decoded request waiting for the application to answer it
type Request struct {
	Command protocol.Command
	Args    []any

	once   sync.Once
	done   chan struct{}
	code   protocol.Response
	values []any
}

func newRequest(cmd protocol.Command, args []any) *Request {
	return &Request{
		Command: cmd,
		Args:    args,
		done:    make(chan struct{}),
	}
}

// Serve answers the request. Only the first call has an effect;
// it reports whether this call was the one that answered.
func (r *Request) Serve(code protocol.Response, values ...any) bool {
	served := false
	r.once.Do(func() {
		r.code = code
		r.values = values
		close(r.done)
		served = true
	})
	return served
}

func (r *Request) String() string {
	return protocol.Format(r.Command, r.Args)
}

// encodeResponse renders the answer; values that do not fit the command's
// schema turn into ERROR_UNKNOWN
func (r *Request) encodeResponse() ([][]byte, error) {
	code := r.code
	var body [][]byte

	if code == protocol.RespValue {
		kind, ok := protocol.ValueKind(r.Command)
		if !ok || len(r.values) != 1 {
			return r.unknown(fmt.Errorf("%v has no single value to return", r.Command))
		}
		c, err := protocol.Encode(kind, r.values[0])
		if err != nil {
			return r.unknown(err)
		}
		body = append(body, c)
	}

	head, err := protocol.EncodeInt(int(code))
	if err != nil {
		return nil, err
	}
	return append([][]byte{head}, body...), nil
}

func (r *Request) unknown(cause error) ([][]byte, error) {
	head, _ := protocol.EncodeInt(int(protocol.RespErrUnknown))
	return [][]byte{head}, cause
}

// Server decodes requests from any number of connections into one queue
type Server struct {
	requests chan *Request
	logger   *zap.Logger
}

// NewServer creates a server with an empty request queue
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		requests: make(chan *Request),
		logger:   logger,
	}
}

// NextRequest waits for the next request from any connection.
// The caller must Serve every request it takes.
func (s *Server) NextRequest(ctx context.Context) (*Request, error) {
	select {
	case r := <-s.requests:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ServeConn handles one client connection until it ends and then closes it.
// Framing errors and unknown commands end the connection; requests that do
// not match their argument schema are answered with ERROR_FORMAT.
func (s *Server) ServeConn(ctx context.Context, conn *Conn) error {
	defer conn.Close()

	logger := s.logger.With(zap.Stringer("remote", conn.RemoteAddr()))
	logger.Info("client connected")
	defer logger.Info("client disconnected")

	for {
		chunks, err := conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to receive request: %w", err)
		}

		cmd, err := protocol.DecodeCommand(chunks[0])
		if err != nil {
			return fmt.Errorf("failed to decode request: %w", err)
		}

		args, err := protocol.DecodeArguments(cmd, chunks[1:])
		if err != nil {
			logger.Warn("malformed request", zap.Stringer("command", cmd), zap.Error(err))
			head, _ := protocol.EncodeInt(int(protocol.RespErrFormat))
			if err := conn.Send(ctx, head); err != nil {
				return fmt.Errorf("failed to send response: %w", err)
			}
			continue
		}

		req := newRequest(cmd, args)
		logger.Debug("request received", zap.Stringer("request", req))

		select {
		case s.requests <- req:
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case <-req.done:
		case <-ctx.Done():
			return ctx.Err()
		}

		resp, err := req.encodeResponse()
		if err != nil {
			logger.Error("failed to encode response", zap.Stringer("request", req), zap.Error(err))
		}
		if err := conn.Send(ctx, resp...); err != nil {
			return fmt.Errorf("failed to send response: %w", err)
		}

		if cmd == protocol.CmdTerminateConnection && req.code == protocol.RespSuccess {
			return nil
		}
	}
}
