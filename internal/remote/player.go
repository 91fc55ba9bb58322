package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trigs/trigs/internal/player"
	"github.com/trigs/trigs/internal/protocol"
)

// Player controls a player on a remote server
type Player struct {
	client *Client
	ttl    time.Duration
	now    func() time.Time

	mu         sync.Mutex
	status     player.Status
	statusAt   time.Time
	haveStatus bool
	terminated bool
}

var _ player.Player = (*Player)(nil)

// NewPlayer creates a remote player over client.
// Status reads are answered from cache for ttl after the last server answer.
func NewPlayer(client *Client, ttl time.Duration) *Player {
	return &Player{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (p *Player) do(ctx context.Context, cmd protocol.Command, args ...any) error {
	p.invalidate()
	_, err := p.client.Request(ctx, cmd, args...)
	return err
}

func (p *Player) float(ctx context.Context, cmd protocol.Command) (float64, error) {
	v, err := p.client.Request(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (p *Player) invalidate() {
	p.mu.Lock()
	p.haveStatus = false
	p.mu.Unlock()
}

func (p *Player) Play(ctx context.Context) error     { return p.do(ctx, protocol.CmdPlay) }
func (p *Player) Pause(ctx context.Context) error    { return p.do(ctx, protocol.CmdPause) }
func (p *Player) Stop(ctx context.Context) error     { return p.do(ctx, protocol.CmdStop) }
func (p *Player) Next(ctx context.Context) error     { return p.do(ctx, protocol.CmdNext) }
func (p *Player) Previous(ctx context.Context) error { return p.do(ctx, protocol.CmdPrevious) }

// Status returns the remote status, served from cache while it is fresh
func (p *Player) Status(ctx context.Context) (player.Status, error) {
	p.mu.Lock()
	if p.haveStatus && p.now().Sub(p.statusAt) < p.ttl {
		s := p.status
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	v, err := p.client.Request(ctx, protocol.CmdGetStatus)
	if err != nil {
		return 0, err
	}
	s, err := player.ParseStatus(v.(int))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	p.mu.Lock()
	p.status, p.statusAt, p.haveStatus = s, p.now(), true
	p.mu.Unlock()
	return s, nil
}

func (p *Player) Position(ctx context.Context) (float64, error) {
	return p.float(ctx, protocol.CmdGetPosition)
}

func (p *Player) SetPosition(ctx context.Context, pos float64) error {
	return p.do(ctx, protocol.CmdSetPosition, pos)
}

func (p *Player) Duration(ctx context.Context) (float64, error) {
	return p.float(ctx, protocol.CmdGetDuration)
}

func (p *Player) Volume(ctx context.Context) (float64, error) {
	return p.float(ctx, protocol.CmdGetVolume)
}

func (p *Player) SetVolume(ctx context.Context, v float64) error {
	return p.do(ctx, protocol.CmdSetVolume, v)
}

func (p *Player) AppendSequence(ctx context.Context, seq player.Sequence) error {
	return p.do(ctx, protocol.CmdAppendSequence, seq.SampleWidth, seq.Channels, seq.FrameRate, seq.Data)
}

func (p *Player) RemoveSequence(ctx context.Context, index int) error {
	return p.do(ctx, protocol.CmdRemoveSequence, index)
}

func (p *Player) ClearSequences(ctx context.Context) error {
	return p.do(ctx, protocol.CmdClear)
}

func (p *Player) NumSequences(ctx context.Context) (int, error) {
	v, err := p.client.Request(ctx, protocol.CmdGetNumSequences)
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (p *Player) SequenceData(ctx context.Context, index int) ([]byte, error) {
	v, err := p.client.Request(ctx, protocol.CmdGetSequence, index)
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Terminate ends the session with the server and closes the connection
func (p *Player) Terminate(ctx context.Context) error {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return nil
	}
	p.terminated = true
	p.mu.Unlock()

	_, err := p.client.Request(ctx, protocol.CmdTerminateConnection)
	if cerr := p.client.Close(); err == nil {
		err = cerr
	}
	return err
}
