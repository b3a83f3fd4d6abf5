// pomod is a Pomodoro timer split into a background daemon and a thin CLI.
// The daemon owns the timer; every other invocation talks to it over a
// local socket.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/pomod-sh/pomod/internal/client"
	"github.com/pomod-sh/pomod/internal/config"
	"github.com/pomod-sh/pomod/internal/daemon"
	"github.com/pomod-sh/pomod/internal/protocol"
	"github.com/pomod-sh/pomod/internal/version"
)

// Global holds state shared across subcommands.
type Global struct {
	Log   zerolog.Logger
	Style *termStyle
}

// CLI is the root command definition.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run       RunCmd       `cmd:"" default:"withargs" help:"Start the daemon if needed and attach to the timer"`
	Start     StartCmd     `cmd:"" help:"Start the daemon in the background"`
	Stop      StopCmd      `cmd:"" help:"Stop the daemon"`
	Status    StatusCmd    `cmd:"" help:"Show daemon status and the current timer state"`
	Init      InitCmd      `cmd:"" help:"Write a default configuration file"`
	Once      OnceCmd      `cmd:"" help:"Print one timer snapshot and exit"`
	Pause     PauseCmd     `cmd:"" help:"Pause the timer"`
	Resume    ResumeCmd    `cmd:"" help:"Resume the timer"`
	Toggle    ToggleCmd    `cmd:"" help:"Toggle between paused and running"`
	Skip      SkipCmd      `cmd:"" help:"Skip to the next phase"`
	Reset     ResetCmd     `cmd:"" help:"Reset the timer to a fresh cycle"`
	DaemonRun DaemonRunCmd `cmd:"" name:"daemon-run" hidden:"" help:"Run the daemon in the foreground"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("pomod"),
		kong.Description("A Pomodoro timer daemon with attachable clients."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version},
	)

	level := zerolog.WarnLevel
	if cli.Verbose {
		level = zerolog.DebugLevel
	}
	g := &Global{
		Log:   zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger(),
		Style: newTermStyle(),
	}

	ctx.FatalIfErrorf(ctx.Run(g, &cli))
}

// RunCmd is the default command: make sure a daemon exists, then attach.
type RunCmd struct{}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	if root.Config == "" {
		ok, err := config.EnsureExists()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	running, _, err := daemon.Status()
	if err != nil {
		return err
	}
	if !running {
		g.Style.Info("starting daemon...")
		if err := daemon.Start(); err != nil {
			return err
		}
	}
	return attach(g)
}

// StartCmd starts the daemon without attaching.
type StartCmd struct{}

func (s *StartCmd) Run(g *Global) error {
	if err := daemon.Start(); err != nil {
		return err
	}
	g.Style.Success("daemon started")
	return nil
}

// StopCmd stops a running daemon.
type StopCmd struct{}

func (s *StopCmd) Run(g *Global) error {
	if err := daemon.Stop(); err != nil {
		return err
	}
	g.Style.Success("daemon stopped")
	return nil
}

// StatusCmd reports daemon liveness and the current snapshot.
type StatusCmd struct{}

func (s *StatusCmd) Run(g *Global) error {
	running, pid, err := daemon.Status()
	if err != nil {
		return err
	}
	if !running {
		g.Style.Println("daemon: not running")
		return nil
	}
	if pid > 0 {
		g.Style.Printf("daemon: running (pid %d)\n", pid)
	} else {
		g.Style.Println("daemon: running")
	}

	snap, err := client.Once(config.SocketPath(), g.Log)
	if err != nil {
		return err
	}
	g.Style.Printf("timer:  %s\n", formatSnapshot(snap))
	return nil
}

// InitCmd writes a default config file.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Init(root.Config, i.Force)
	if err != nil {
		return err
	}
	g.Style.Success(fmt.Sprintf("config written to %s", cfg.FilePath()))
	return nil
}

// OnceCmd prints one snapshot, machine-friendly.
type OnceCmd struct{}

func (o *OnceCmd) Run(g *Global) error {
	snap, err := client.Once(config.SocketPath(), g.Log)
	if err != nil {
		return err
	}
	fmt.Println(formatSnapshot(snap))
	return nil
}

// commandCmd is the shared body of the one-shot timer commands.
func commandCmd(g *Global, cmd protocol.Command) error {
	snap, err := client.Command(config.SocketPath(), cmd, g.Log)
	if err != nil {
		return err
	}
	g.Style.Println(formatSnapshot(snap))
	return nil
}

type PauseCmd struct{}

func (c *PauseCmd) Run(g *Global) error { return commandCmd(g, protocol.CmdPause) }

type ResumeCmd struct{}

func (c *ResumeCmd) Run(g *Global) error { return commandCmd(g, protocol.CmdResume) }

type ToggleCmd struct{}

func (c *ToggleCmd) Run(g *Global) error { return commandCmd(g, protocol.CmdToggle) }

type SkipCmd struct{}

func (c *SkipCmd) Run(g *Global) error { return commandCmd(g, protocol.CmdSkip) }

type ResetCmd struct{}

func (c *ResetCmd) Run(g *Global) error { return commandCmd(g, protocol.CmdReset) }

// DaemonRunCmd is the foreground daemon body, spawned by `pomod start`.
type DaemonRunCmd struct{}

func (d *DaemonRunCmd) Run(g *Global, root *CLI) error {
	return daemon.Run(root.Config, root.Verbose)
}
