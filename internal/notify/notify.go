// Package notify dispatches best-effort OS notifications on phase
// transitions. Delivery failures are logged and never propagate: a missing
// notification tool must not affect the timer.
package notify

import (
	"fmt"
	"math/rand"
	"os/exec"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/pomod-sh/pomod/internal/config"
	"github.com/pomod-sh/pomod/internal/timer"
)

const summary = "pomod"

// runCommand is swapped out in tests.
var runCommand = func(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Notifier sends phase-transition notifications.
type Notifier struct {
	cfg config.Notifications
	log zerolog.Logger
	// pick selects a break suggestion index; seeded rand by default.
	pick func(n int) int
}

// New creates a notifier with the given notification config.
func New(cfg config.Notifications, log zerolog.Logger) *Notifier {
	return &Notifier{cfg: cfg, log: log, pick: rand.Intn}
}

// PhaseChanged dispatches a notification for a transition into newPhase.
// It returns immediately; delivery runs in the background.
func (n *Notifier) PhaseChanged(newPhase timer.Phase) {
	if !n.cfg.Enabled {
		return
	}

	body := n.message(newPhase)
	go func() {
		if err := send(body); err != nil {
			n.log.Debug().Err(err).Str("phase", string(newPhase)).Msg("notification dispatch failed")
		}
	}()
}

// message builds the notification text, appending a random break suggestion
// when entering a break.
func (n *Notifier) message(newPhase timer.Phase) string {
	if !newPhase.IsBreak() {
		return "Break is over"
	}

	body := "Good job! Take a break"
	if len(n.cfg.BreakSuggestions) > 0 {
		body += "\n\n" + n.cfg.BreakSuggestions[n.pick(len(n.cfg.BreakSuggestions))]
	}
	return body
}

// send shells out to the platform notification tool.
func send(body string) error {
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", body, summary)
		return runCommand("osascript", "-e", script)
	case "linux":
		return runCommand("notify-send", summary, body)
	default:
		return fmt.Errorf("no notification backend for %s", runtime.GOOS)
	}
}
