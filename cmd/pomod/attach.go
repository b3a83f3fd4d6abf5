package main

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/pomod-sh/pomod/internal/client"
	"github.com/pomod-sh/pomod/internal/config"
	"github.com/pomod-sh/pomod/internal/protocol"
	"github.com/pomod-sh/pomod/internal/timer"
)

// attach subscribes to the daemon and drives the interactive status line.
// Detaching leaves the timer running; only the daemon owns it.
func attach(g *Global) error {
	c, snap, err := client.Dial(config.SocketPath(), g.Log)
	if err != nil {
		return err
	}
	defer c.Close()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return streamSnapshots(c, snap)
	}

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	snapCh := make(chan timer.Snapshot)
	readErrCh := make(chan error, 1)
	go func() {
		for {
			next, err := c.Next()
			if err != nil {
				readErrCh <- err
				return
			}
			snapCh <- next
		}
	}()

	// Key reads block on stdin; the goroutine dies with the process.
	keyCh := make(chan byte)
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := os.Stdin.Read(buf); err != nil {
				return
			}
			keyCh <- buf[0]
		}
	}()

	renderStatusLine(g.Style, snap)
	for {
		select {
		case snap = <-snapCh:
			renderStatusLine(g.Style, snap)

		case err := <-readErrCh:
			fmt.Print("\r\033[K")
			if errors.Is(err, client.ErrDaemonClosed) {
				fmt.Print("daemon shut down\r\n")
				return nil
			}
			return err

		case key := <-keyCh:
			switch key {
			case ' ':
				if err := c.Send(protocol.CmdToggle); err != nil {
					return err
				}
			case 's':
				if err := c.Send(protocol.CmdSkip); err != nil {
					return err
				}
			case 'r':
				if err := c.Send(protocol.CmdReset); err != nil {
					return err
				}
			case 'q', 3, 4: // q, ctrl-c, ctrl-d
				fmt.Print("\r\033[K")
				fmt.Print("detached, timer keeps running\r\n")
				return nil
			}
		}
	}
}

// streamSnapshots is the non-TTY fallback: one line per update, no keymap.
func streamSnapshots(c *client.Client, snap timer.Snapshot) error {
	fmt.Println(formatSnapshot(snap))
	for {
		next, err := c.Next()
		if err != nil {
			if errors.Is(err, client.ErrDaemonClosed) {
				return nil
			}
			return err
		}
		fmt.Println(formatSnapshot(next))
	}
}

// renderStatusLine redraws the single status line in place.
func renderStatusLine(style *termStyle, snap timer.Snapshot) {
	indicator := style.Cyan("▶")
	if snap.Paused {
		indicator = style.Yellow("⏸")
	}
	line := fmt.Sprintf("%s %s %s %s  %s",
		indicator,
		style.Bold(snap.Phase.String()),
		style.Bold(snap.Time()),
		style.Dim(fmt.Sprintf("(%d sessions)", snap.CompletedSessions)),
		style.Dim("space pause · s skip · r reset · q detach"),
	)
	fmt.Print("\r\033[K" + line)
}
