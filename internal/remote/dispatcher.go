package remote

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/trigs/trigs/internal/player"
	"github.com/trigs/trigs/internal/protocol"
)

// SessionFactory creates the player behind a server session
type SessionFactory func() (player.Player, error)

// Dispatcher answers the requests queued on a Server against one player session.
// The session is created by the first APPENDSEQUENCE, which fixes its audio format.
type Dispatcher struct {
	server     *Server
	newSession SessionFactory
	session    player.Player
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher without a session
func NewDispatcher(server *Server, newSession SessionFactory, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		server:     server,
		newSession: newSession,
		logger:     logger,
	}
}

// Run serves requests until ctx is done
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		req, err := d.server.NextRequest(ctx)
		if err != nil {
			return err
		}
		d.Handle(ctx, req)
	}
}

// Handle serves a single request
func (d *Dispatcher) Handle(ctx context.Context, req *Request) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("request panicked", zap.Stringer("request", req), zap.Any("panic", r))
			req.Serve(protocol.RespErrUnknown)
		}
	}()

	value, err := d.dispatch(ctx, req)
	if err != nil {
		code := errorResponse(err)
		if code == protocol.RespErrUnknown {
			// the cause stays on this side of the connection
			d.logger.Error("request failed", zap.Stringer("request", req), zap.Error(err))
		} else {
			d.logger.Debug("request rejected", zap.Stringer("request", req), zap.Stringer("response", code))
		}
		req.Serve(code)
		return
	}

	if _, ok := protocol.ValueKind(req.Command); ok {
		req.Serve(protocol.RespValue, value)
		return
	}
	req.Serve(protocol.RespSuccess)
}

// Close terminates the session, if any
func (d *Dispatcher) Close(ctx context.Context) error {
	if d.session == nil {
		return nil
	}
	return d.session.Terminate(ctx)
}

func (d *Dispatcher) dispatch(ctx context.Context, req *Request) (any, error) {
	switch req.Command {
	case protocol.CmdTerminateConnection:
		return nil, nil
	case protocol.CmdAppendSequence:
		if d.session == nil {
			s, err := d.newSession()
			if err != nil {
				return nil, fmt.Errorf("failed to create session: %w", err)
			}
			d.session = s
			d.logger.Info("session created")
		}
	}

	if d.session == nil {
		return nil, player.ErrUninitialized
	}
	p := d.session

	switch req.Command {
	case protocol.CmdPlay:
		return nil, p.Play(ctx)
	case protocol.CmdPause:
		return nil, p.Pause(ctx)
	case protocol.CmdStop:
		return nil, p.Stop(ctx)
	case protocol.CmdNext:
		return nil, p.Next(ctx)
	case protocol.CmdPrevious:
		return nil, p.Previous(ctx)
	case protocol.CmdSetPosition:
		return nil, p.SetPosition(ctx, req.Args[0].(float64))
	case protocol.CmdGetPosition:
		return p.Position(ctx)
	case protocol.CmdSetVolume:
		return nil, p.SetVolume(ctx, req.Args[0].(float64))
	case protocol.CmdGetVolume:
		return p.Volume(ctx)
	case protocol.CmdGetDuration:
		return p.Duration(ctx)
	case protocol.CmdGetStatus:
		s, err := p.Status(ctx)
		return int(s), err
	case protocol.CmdClear:
		return nil, p.ClearSequences(ctx)
	case protocol.CmdAppendSequence:
		seq := player.Sequence{
			Format: player.Format{
				SampleWidth: req.Args[0].(int),
				Channels:    req.Args[1].(int),
				FrameRate:   req.Args[2].(int),
			},
			Data: req.Args[3].([]byte),
		}
		return nil, p.AppendSequence(ctx, seq)
	case protocol.CmdGetNumSequences:
		return p.NumSequences(ctx)
	case protocol.CmdGetSequence:
		return p.SequenceData(ctx, req.Args[0].(int))
	case protocol.CmdRemoveSequence:
		return nil, p.RemoveSequence(ctx, req.Args[0].(int))
	default:
		return nil, player.ErrNotSupported
	}
}

func errorResponse(err error) protocol.Response {
	switch {
	case errors.Is(err, player.ErrUninitialized):
		return protocol.RespErrUninitialized
	case errors.Is(err, player.ErrNoSequences):
		return protocol.RespErrNoSequences
	case errors.Is(err, player.ErrFormat):
		return protocol.RespErrFormat
	case errors.Is(err, player.ErrNotSupported):
		return protocol.RespErrNotImplemented
	default:
		return protocol.RespErrUnknown
	}
}
