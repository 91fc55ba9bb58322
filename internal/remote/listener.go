package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/trigs/trigs/internal/protocol"
)

// Listener accepts TCP connections and hands each one to a Server
type Listener struct {
	mu       sync.Mutex
	listener net.Listener
	server   *Server
	addr     string
	limits   protocol.Limits
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewListener creates a listener for addr feeding server
func NewListener(addr string, server *Server, limits protocol.Limits, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		server: server,
		addr:   addr,
		limits: limits,
		logger: logger,
	}
}

// Start starts accepting connections
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("listener already running")
	}

	listener, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.listener = listener
	l.cancel = cancel
	l.running = true

	l.logger.Info("listening", zap.Stringer("addr", listener.Addr()))

	l.wg.Add(1)
	go l.acceptLoop(ctx)

	return nil
}

// Addr returns the address being listened on, nil before Start
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Stop closes the listener and all open connections and waits for their handlers
func (l *Listener) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	l.cancel()
	err := l.listener.Close()
	l.mu.Unlock()

	l.wg.Wait()
	return err
}

// acceptLoop accepts incoming connections
func (l *Listener) acceptLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			l.mu.Lock()
			running := l.running
			l.mu.Unlock()
			if !running || errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		l.wg.Add(1)
		go l.handleConnection(ctx, conn)
	}
}

func (l *Listener) handleConnection(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()

	if err := l.server.ServeConn(ctx, NewConn(conn, l.limits)); err != nil && ctx.Err() == nil {
		l.logger.Warn("connection closed with error",
			zap.Stringer("remote", conn.RemoteAddr()),
			zap.Error(err))
	}
}
