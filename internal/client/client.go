// Package client speaks the pomod wire protocol from the CLI side: it dials
// the daemon socket, performs the handshake, and exposes typed send and
// receive operations on top of the frame stream.
package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/pomod-sh/pomod/internal/protocol"
	"github.com/pomod-sh/pomod/internal/timer"
	"github.com/pomod-sh/pomod/internal/version"
)

// dialTimeout bounds the initial connect; the daemon is local, so anything
// slower than this means it is not there.
const dialTimeout = 2 * time.Second

// ErrDaemonNotRunning is returned when nothing answers on the socket.
var ErrDaemonNotRunning = errors.New("daemon is not running")

// ErrDaemonClosed is returned when the daemon ends the session, either by
// shutting down or by closing a one-shot connection.
var ErrDaemonClosed = errors.New("daemon closed the connection")

// Client is one attached connection to the daemon.
type Client struct {
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer
	log    zerolog.Logger

	// DaemonVersion is populated by the handshake.
	DaemonVersion string
}

// Dial connects to the daemon socket and completes the handshake, returning
// the client and the initial timer snapshot.
func Dial(socketPath string, log zerolog.Logger) (*Client, timer.Snapshot, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, timer.Snapshot{}, fmt.Errorf("%w (socket %s)", ErrDaemonNotRunning, socketPath)
	}

	c := &Client{
		conn:   conn,
		reader: protocol.NewReader(conn),
		writer: protocol.NewWriter(conn),
		log:    log,
	}

	snap, err := c.handshake()
	if err != nil {
		conn.Close()
		return nil, timer.Snapshot{}, err
	}
	return c, snap, nil
}

// handshake consumes the hello frame and the initial snapshot. A version
// skew between client and daemon is logged, never fatal.
func (c *Client) handshake() (timer.Snapshot, error) {
	hello, err := c.reader.ReadMessage()
	if err != nil {
		return timer.Snapshot{}, fmt.Errorf("handshake failed: %w", err)
	}
	if hello.Type != protocol.TypeHello {
		return timer.Snapshot{}, fmt.Errorf("handshake failed: expected hello, got %q", hello.Type)
	}
	c.DaemonVersion = hello.Version
	if warning := version.CheckSkew(version.Version, hello.Version); warning != "" {
		c.log.Warn().Msg(warning)
	}

	msg, err := c.reader.ReadMessage()
	if err != nil {
		return timer.Snapshot{}, fmt.Errorf("handshake failed: %w", err)
	}
	if msg.Type != protocol.TypeState || msg.State == nil {
		return timer.Snapshot{}, fmt.Errorf("handshake failed: expected initial state, got %q", msg.Type)
	}
	return *msg.State, nil
}

// Send submits one command to the daemon.
func (c *Client) Send(cmd protocol.Command) error {
	return c.writer.Write(protocol.CommandFrame{Command: cmd})
}

// Next blocks for the next state snapshot, skipping over frames that carry
// no state. Returns ErrDaemonClosed when the stream ends.
func (c *Client) Next() (timer.Snapshot, error) {
	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			return timer.Snapshot{}, ErrDaemonClosed
		}
		switch msg.Type {
		case protocol.TypeState:
			if msg.State != nil {
				return *msg.State, nil
			}
		case protocol.TypeError:
			return timer.Snapshot{}, fmt.Errorf("daemon rejected command: %s", msg.Error)
		case protocol.TypeShutdown:
			return timer.Snapshot{}, ErrDaemonClosed
		}
	}
}

// Close detaches from the daemon. The timer keeps running.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Once fetches a single snapshot over a short-lived connection.
func Once(socketPath string, log zerolog.Logger) (timer.Snapshot, error) {
	c, _, err := Dial(socketPath, log)
	if err != nil {
		return timer.Snapshot{}, err
	}
	defer c.Close()

	if err := c.Send(protocol.CmdOnce); err != nil {
		return timer.Snapshot{}, err
	}
	return c.Next()
}

// Command sends one command over a short-lived connection and returns the
// resulting snapshot, so callers can confirm the effect.
func Command(socketPath string, cmd protocol.Command, log zerolog.Logger) (timer.Snapshot, error) {
	c, _, err := Dial(socketPath, log)
	if err != nil {
		return timer.Snapshot{}, err
	}
	defer c.Close()

	if err := c.Send(cmd); err != nil {
		return timer.Snapshot{}, err
	}
	return c.Next()
}
