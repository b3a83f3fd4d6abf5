package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/pomod-sh/pomod/internal/timer"
)

// ANSI color codes
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

// termStyle provides terminal styling helpers with automatic color detection
type termStyle struct {
	useColors bool
}

func newTermStyle() *termStyle {
	return &termStyle{
		useColors: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func (t *termStyle) colorize(code, text string) string {
	if !t.useColors {
		return text
	}
	return code + text + ansiReset
}

// Success prints a success message with green checkmark
func (t *termStyle) Success(msg string) {
	fmt.Println(t.colorize(ansiGreen, "✓ "+msg))
}

// Info prints informational text (dimmed)
func (t *termStyle) Info(msg string) {
	fmt.Println(t.colorize(ansiDim, msg))
}

func (t *termStyle) Bold(text string) string {
	return t.colorize(ansiBold, text)
}

func (t *termStyle) Dim(text string) string {
	return t.colorize(ansiDim, text)
}

func (t *termStyle) Cyan(text string) string {
	return t.colorize(ansiCyan, text)
}

func (t *termStyle) Yellow(text string) string {
	return t.colorize(ansiYellow, text)
}

func (t *termStyle) Println(text string) {
	fmt.Println(text)
}

func (t *termStyle) Printf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// formatSnapshot renders one timer snapshot as a single plain line, e.g.
// "work 24:31 (running, 2 sessions)".
func formatSnapshot(snap timer.Snapshot) string {
	state := "running"
	if snap.Paused {
		state = "paused"
	}
	return fmt.Sprintf("%s %s (%s, %d sessions)", snap.Phase.String(), snap.Time(), state, snap.CompletedSessions)
}
