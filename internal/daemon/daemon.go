// Package daemon implements the pomod background process: the socket
// listener, the client registry and broadcast hub, and the single run loop
// that owns the timer state. It also provides the lifecycle commands
// (start/stop/status) used by the CLI.
package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/pomod-sh/pomod/internal/config"
	"github.com/pomod-sh/pomod/internal/protocol"
	"github.com/pomod-sh/pomod/internal/version"
)

// startupTimeout is how long Start waits for the spawned daemon's socket.
const startupTimeout = 3 * time.Second

// stopTimeout is how long Stop waits for a signalled daemon to exit.
const stopTimeout = 5 * time.Second

// Start spawns the daemon in the background and waits until its socket
// accepts connections.
func Start() error {
	socketPath := config.SocketPath()
	if probe, err := net.DialTimeout("unix", socketPath, time.Second); err == nil {
		probe.Close()
		return fmt.Errorf("%w at %s", ErrAlreadyRunning, socketPath)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(execPath, "daemon-run")
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	// Detach: the daemon outlives this process.
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("failed to release daemon process: %w", err)
	}

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		if probe, err := net.DialTimeout("unix", socketPath, time.Second); err == nil {
			probe.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not come up within %s", startupTimeout)
}

// Stop asks a running daemon to shut down, preferring the shutdown command
// over the socket and falling back to SIGTERM via the pid file.
func Stop() error {
	socketPath := config.SocketPath()

	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err == nil {
		writeErr := protocol.NewWriter(conn).Write(protocol.CommandFrame{Command: protocol.CmdShutdown})
		conn.Close()
		if writeErr == nil && waitForSocketGone(socketPath, stopTimeout) {
			return nil
		}
	}

	// Socket path unreachable or the daemon ignored us; try the pid file.
	pid, pidErr := readPid()
	if pidErr != nil {
		if err != nil {
			return fmt.Errorf("daemon is not running")
		}
		return fmt.Errorf("daemon did not stop within %s", stopTimeout)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	// The daemon is not our child, so poll for exit instead of waiting.
	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if err := process.Signal(syscall.Signal(0)); err != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for daemon to stop")
}

// Status reports whether a daemon is live on the socket, and its pid when
// the pid file is readable.
func Status() (running bool, pid int, err error) {
	socketPath := config.SocketPath()
	probe, dialErr := net.DialTimeout("unix", socketPath, time.Second)
	if dialErr != nil {
		return false, 0, nil
	}
	probe.Close()

	pid, _ = readPid()
	return true, pid, nil
}

// Run is the entry point for the daemon process itself. It blocks until
// shutdown (command, signal, or fatal startup error).
func Run(cfgPath string, verbose bool) error {
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, config.ErrConfigNotFound) {
		// Start with defaults; a later `pomod init` plus the watcher picks
		// up the file without a restart.
		cfg = config.Default()
	} else if err != nil {
		return err
	}

	log, closeLog, err := openLogger(cfg, verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := writePid(); err != nil {
		return err
	}
	defer removePid()

	server := NewServer(cfg, clockwork.NewRealClock(), log)
	if err := server.Listen(config.SocketPath()); err != nil {
		return err
	}

	watchPath := cfg.FilePath()
	if watchPath == "" {
		watchPath, _ = config.Path()
	}
	watcher, err := WatchConfig(watchPath, server, log)
	if err != nil {
		// Hot reload is a convenience; a daemon without it still works.
		log.Warn().Err(err).Msg("config watcher unavailable")
	} else {
		defer watcher.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
		server.Shutdown()
	}()

	log.Info().
		Str("version", version.Version).
		Str("socket", config.SocketPath()).
		Str("config", cfg.FilePath()).
		Msg("daemon started")

	return server.Serve()
}

// openLogger builds the daemon logger. Verbose foreground runs log to
// stderr; otherwise the log goes to ~/.pomod/daemon.log.
func openLogger(cfg *config.Config, verbose bool) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
		return log, func() {}, nil
	}

	logPath, err := config.LogPath()
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log := zerolog.New(f).Level(level).With().Timestamp().Logger()
	return log, func() { f.Close() }, nil
}

func writePid() error {
	pidPath, err := config.PidPath()
	if err != nil {
		return err
	}
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

func removePid() {
	if pidPath, err := config.PidPath(); err == nil {
		os.Remove(pidPath)
	}
}

func readPid() (int, error) {
	pidPath, err := config.PidPath()
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("failed to parse pid file: %w", err)
	}
	return pid, nil
}

func waitForSocketGone(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		probe, err := net.DialTimeout("unix", socketPath, time.Second)
		if err != nil {
			return true
		}
		probe.Close()
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
