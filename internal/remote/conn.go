package remote

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/trigs/trigs/internal/protocol"
)

// Conn exchanges protocol messages over a stream connection
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	limits protocol.Limits
}

// NewConn wraps an established connection
func NewConn(conn net.Conn, limits protocol.Limits) *Conn {
	return &Conn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		limits: limits,
	}
}

// Dial connects to a server at addr
func Dial(ctx context.Context, addr string, limits protocol.Limits) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return NewConn(conn, limits), nil
}

// Send writes one message made of chunks
func (c *Conn) Send(ctx context.Context, chunks ...[]byte) error {
	stop := c.interruptOn(ctx)
	defer stop()

	if err := protocol.WriteMessage(c.writer, chunks...); err != nil {
		return c.cause(ctx, err)
	}
	if err := c.writer.Flush(); err != nil {
		return c.cause(ctx, fmt.Errorf("failed to flush message: %w", err))
	}
	return nil
}

// Recv reads one message.
// io.EOF means the peer closed the connection between messages.
func (c *Conn) Recv(ctx context.Context) ([][]byte, error) {
	stop := c.interruptOn(ctx)
	defer stop()

	chunks, err := protocol.ReadMessage(c.reader, c.limits)
	if err != nil {
		return nil, c.cause(ctx, err)
	}
	return chunks, nil
}

// Close closes the underlying connection
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the address of the peer
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// interruptOn unblocks pending I/O once ctx is done
func (c *Conn) interruptOn(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
}

// cause reports the context error for I/O interrupted by interruptOn
func (c *Conn) cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
