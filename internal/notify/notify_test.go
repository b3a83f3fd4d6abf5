package notify

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pomod-sh/pomod/internal/config"
	"github.com/pomod-sh/pomod/internal/timer"
)

func TestMessageForWork(t *testing.T) {
	n := New(config.Notifications{Enabled: true}, zerolog.Nop())
	if got := n.message(timer.PhaseWork); got != "Break is over" {
		t.Errorf("unexpected work message: %q", got)
	}
}

func TestMessageForBreakWithoutSuggestions(t *testing.T) {
	n := New(config.Notifications{Enabled: true}, zerolog.Nop())
	if got := n.message(timer.PhaseShortBreak); got != "Good job! Take a break" {
		t.Errorf("unexpected break message: %q", got)
	}
}

func TestMessageAppendsSuggestion(t *testing.T) {
	n := New(config.Notifications{
		Enabled:          true,
		BreakSuggestions: []string{"Stretch", "Drink water"},
	}, zerolog.Nop())
	n.pick = func(int) int { return 1 }

	got := n.message(timer.PhaseLongBreak)
	if !strings.HasPrefix(got, "Good job! Take a break") {
		t.Errorf("suggestion replaced the base message: %q", got)
	}
	if !strings.Contains(got, "Drink water") {
		t.Errorf("expected suggestion in message, got %q", got)
	}
}

func TestDisabledNotifierSendsNothing(t *testing.T) {
	called := make(chan string, 1)
	original := runCommand
	runCommand = func(name string, args ...string) error {
		called <- name
		return nil
	}
	defer func() { runCommand = original }()

	n := New(config.Notifications{Enabled: false}, zerolog.Nop())
	n.PhaseChanged(timer.PhaseShortBreak)

	select {
	case name := <-called:
		t.Errorf("disabled notifier invoked %q", name)
	default:
	}
}
