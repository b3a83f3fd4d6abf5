package daemon

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/pomod-sh/pomod/internal/config"
	"github.com/pomod-sh/pomod/internal/notify"
	"github.com/pomod-sh/pomod/internal/protocol"
	"github.com/pomod-sh/pomod/internal/timer"
	"github.com/pomod-sh/pomod/internal/version"
)

// commandQueueSize bounds the inbound queue merging client commands into the
// run loop. Senders block when it fills, preserving arrival order.
const commandQueueSize = 64

// ErrAlreadyRunning is returned when another live daemon holds the socket.
var ErrAlreadyRunning = errors.New("daemon is already running")

// request is one unit of work for the run loop: a decoded command attributed
// to the client that sent it. initial marks the registration sync that asks
// for the first snapshot of a fresh connection.
type request struct {
	cmd     protocol.Command
	client  uuid.UUID
	initial bool
}

// Server owns the one authoritative timer. All mutations — clock ticks,
// client commands, config reloads — are serialized through the run loop
// goroutine; nothing else ever touches the timer.
type Server struct {
	cfg   *config.Config
	clock clockwork.Clock
	log   zerolog.Logger

	tm       *timer.Timer
	registry *Registry
	notifier *notify.Notifier

	listener   net.Listener
	socketPath string

	requests chan request
	reload   chan *config.Config

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	done         chan struct{}
}

// NewServer assembles a daemon server from a resolved configuration.
func NewServer(cfg *config.Config, clock clockwork.Clock, log zerolog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		clock:      clock,
		log:        log,
		tm:         timer.New(cfg.Resolve()),
		registry:   NewRegistry(log),
		notifier:   notify.New(cfg.Notifications, log),
		requests:   make(chan request, commandQueueSize),
		reload:     make(chan *config.Config, 1),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Listen binds the local socket. A stale socket file left over from a dead
// daemon is reclaimed; a socket with a live listener behind it is fatal.
func (s *Server) Listen(socketPath string) error {
	if _, err := os.Stat(socketPath); err == nil {
		probe, err := net.DialTimeout("unix", socketPath, time.Second)
		if err == nil {
			probe.Close()
			return fmt.Errorf("%w at %s", ErrAlreadyRunning, socketPath)
		}
		s.log.Info().Str("socket", socketPath).Msg("reclaiming stale socket file")
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to bind socket %s: %w", socketPath, err)
	}
	s.listener = listener
	s.socketPath = socketPath
	return nil
}

// Serve runs the accept loop and the timer run loop until Shutdown. On
// return the listener is closed, every client has received a shutdown frame,
// and the socket file is removed. Listen must have been called.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}

	go s.acceptLoop()
	s.runLoop()

	// Shutdown ordering: stop accepting first, then tear down clients.
	s.listener.Close()
	if frame, err := protocol.Encode(protocol.NewShutdown()); err == nil {
		s.registry.CloseAll(frame)
	} else {
		s.registry.CloseAll(nil)
	}
	s.registry.Wait()
	os.Remove(s.socketPath)
	close(s.done)

	s.log.Info().Msg("daemon stopped")
	return nil
}

// Shutdown asks the server to stop. Safe to call from any goroutine and more
// than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

// Done is closed once Serve has fully torn down.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Reload hands a freshly loaded configuration to the run loop.
func (s *Server) Reload(cfg *config.Config) {
	select {
	case s.reload <- cfg:
	case <-s.shutdownCh:
	}
}

// runLoop is the single owner of the timer state. It merges clock ticks,
// client requests and config reloads into one ordered stream; ticks queue
// behind an in-flight command rather than being dropped.
func (s *Server) runLoop() {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	s.log.Info().
		Str("phase", string(s.tm.Snapshot().Phase)).
		Bool("paused", s.tm.Snapshot().Paused).
		Msg("timer ready")

	for {
		select {
		case <-s.shutdownCh:
			return

		case <-ticker.Chan():
			before := s.tm.Snapshot().Phase
			if s.tm.Tick() {
				s.afterChange(before)
			}

		case req := <-s.requests:
			if s.apply(req) {
				return
			}

		case cfg := <-s.reload:
			s.cfg = cfg
			s.notifier = notify.New(cfg.Notifications, s.log)
			s.tm.SetConfig(cfg.Resolve())
			s.log.Info().Msg("configuration reloaded")
			s.broadcastState()
		}
	}
}

// apply executes one request against the timer. Returns true when the
// request asks for daemon shutdown.
func (s *Server) apply(req request) bool {
	if req.initial {
		// Fresh connection: serve its first snapshot, serialized with
		// every other state access.
		s.sendState(req.client)
		return false
	}

	before := s.tm.Snapshot().Phase
	s.log.Debug().Str("client", req.client.String()).Str("command", string(req.cmd)).Msg("applying command")

	switch req.cmd {
	case protocol.CmdPause:
		s.tm.Pause()
	case protocol.CmdResume:
		s.tm.Resume()
	case protocol.CmdToggle:
		s.tm.Toggle()
	case protocol.CmdSkip:
		s.tm.Skip()
	case protocol.CmdReset:
		s.tm.Reset()
	case protocol.CmdOnce:
		// One snapshot, then the daemon closes that connection. Never
		// subscribes and never mutates.
		s.sendState(req.client)
		s.registry.UnregisterAfterFlush(req.client)
		return false
	case protocol.CmdShutdown:
		s.log.Info().Str("client", req.client.String()).Msg("shutdown requested")
		s.Shutdown()
		return true
	default:
		// Unknown commands are rejected during decode; reaching this arm
		// is a defect, not client input.
		s.log.Error().Str("command", string(req.cmd)).Msg("unroutable command reached the run loop")
		return false
	}

	s.afterChange(before)
	return false
}

// afterChange broadcasts the new state and fires a notification when the
// phase flipped.
func (s *Server) afterChange(before timer.Phase) {
	snap := s.tm.Snapshot()
	if snap.Phase != before {
		s.log.Info().
			Str("from", string(before)).
			Str("to", string(snap.Phase)).
			Int("completed_sessions", snap.CompletedSessions).
			Msg("phase transition")
		s.notifier.PhaseChanged(snap.Phase)
	}
	s.broadcastState()
}

func (s *Server) broadcastState() {
	frame, err := protocol.Encode(protocol.NewState(s.tm.Snapshot()))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode state frame")
		return
	}
	s.registry.Broadcast(frame)
}

func (s *Server) sendState(id uuid.UUID) {
	frame, err := protocol.Encode(protocol.NewState(s.tm.Snapshot()))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode state frame")
		return
	}
	s.registry.SendTo(id, frame)
}

// acceptLoop accepts connections for the server lifetime and hands each to
// its own handler goroutine.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return
			default:
			}
			s.log.Error().Err(err).Msg("accept failed")
			return
		}
		go s.handleConn(conn)
	}
}

// handleConn registers the client, greets it, requests its initial snapshot
// through the run loop, then reads command frames until the peer goes away.
// Protocol errors are answered to this client only; they never reach the
// timer or other clients.
func (s *Server) handleConn(conn net.Conn) {
	c := s.registry.Register(conn)
	defer s.registry.Unregister(c.id)

	if frame, err := protocol.Encode(protocol.NewHello(version.Version)); err == nil {
		if !c.enqueue(frame) {
			return
		}
	}
	if !s.submit(request{client: c.id, initial: true}) {
		return
	}

	reader := protocol.NewReader(conn)
	for {
		line, err := reader.ReadLine()
		if err != nil {
			if err != io.EOF {
				s.log.Debug().Str("client", c.id.String()).Err(err).Msg("read failed")
			}
			return
		}

		cmd, err := protocol.DecodeCommand(line)
		if err != nil {
			if frame, encErr := protocol.Encode(protocol.NewError(err)); encErr == nil {
				c.enqueue(frame)
			}
			continue
		}

		if !s.submit(request{cmd: cmd, client: c.id}) {
			return
		}
	}
}

// submit queues a request for the run loop, giving up during shutdown.
func (s *Server) submit(req request) bool {
	select {
	case s.requests <- req:
		return true
	case <-s.shutdownCh:
		return false
	}
}
