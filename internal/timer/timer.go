// Package timer implements the Pomodoro state machine. A Timer is owned by
// exactly one goroutine (the daemon run loop); it performs no I/O and never
// fails: every operation is total over the defined state space.
package timer

import (
	"fmt"
)

// Phase is one segment of the Pomodoro cycle.
type Phase string

const (
	PhaseWork       Phase = "work"
	PhaseShortBreak Phase = "short_break"
	PhaseLongBreak  Phase = "long_break"
)

// IsBreak reports whether the phase is a break phase.
func (p Phase) IsBreak() bool {
	return p == PhaseShortBreak || p == PhaseLongBreak
}

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseWork:
		return "work"
	case PhaseShortBreak:
		return "short break"
	case PhaseLongBreak:
		return "long break"
	default:
		return string(p)
	}
}

// Config is the fully-resolved timer configuration. Durations are whole
// seconds. Intervals is the number of completed work sessions before a long
// break.
type Config struct {
	WorkSeconds       int
	ShortBreakSeconds int
	LongBreakSeconds  int
	Intervals         int
	AutoStartWork     bool
	AutoStartBreaks   bool
}

// Snapshot is an immutable projection of the timer state at a point in time.
// It carries no reference back to the Timer.
type Snapshot struct {
	Phase             Phase `json:"phase"`
	Remaining         int   `json:"remaining"`
	Paused            bool  `json:"paused"`
	CompletedSessions int   `json:"completed_sessions"`
}

// Time formats the remaining duration as MM:SS.
func (s Snapshot) Time() string {
	return fmt.Sprintf("%02d:%02d", s.Remaining/60, s.Remaining%60)
}

// Timer is the single source of truth for the Pomodoro cycle. It is not safe
// for concurrent use; the owning goroutine serializes all access.
type Timer struct {
	cfg       Config
	phase     Phase
	remaining int
	paused    bool
	completed int
}

// New creates a timer in the initial state: work phase, full work duration,
// paused unless work auto-start is configured.
func New(cfg Config) *Timer {
	t := &Timer{cfg: cfg}
	t.reset()
	return t
}

func (t *Timer) reset() {
	t.phase = PhaseWork
	t.remaining = t.cfg.WorkSeconds
	t.paused = !t.cfg.AutoStartWork
	t.completed = 0
}

// Snapshot returns a copy of the observable state. Pure read, no event.
func (t *Timer) Snapshot() Snapshot {
	return Snapshot{
		Phase:             t.phase,
		Remaining:         t.remaining,
		Paused:            t.paused,
		CompletedSessions: t.completed,
	}
}

// Tick advances the timer by one second. It is a no-op while paused. When the
// remaining time reaches zero the phase transition fires. Returns true when
// observers must be notified.
func (t *Timer) Tick() bool {
	if t.paused {
		return false
	}
	if err := t.check(); err != nil {
		t.reset()
		return true
	}
	t.remaining--
	if t.remaining <= 0 {
		t.transition()
	}
	return true
}

// Pause stops the countdown. Observers are always notified, even when the
// timer was already paused.
func (t *Timer) Pause() bool {
	t.paused = true
	return true
}

// Resume restarts the countdown. Observers are always notified, even when the
// timer was already running.
func (t *Timer) Resume() bool {
	t.paused = false
	return true
}

// Toggle flips between paused and running.
func (t *Timer) Toggle() bool {
	t.paused = !t.paused
	return true
}

// Skip forces immediate expiry of the current phase. It follows the same
// transition rule as natural expiry, including the session-count increment
// when skipping out of work.
func (t *Timer) Skip() bool {
	t.transition()
	return true
}

// Reset returns the timer to the initial state of a fresh cycle.
func (t *Timer) Reset() bool {
	t.reset()
	return true
}

// SetConfig swaps the resolved configuration, e.g. after a config file
// reload. The current phase keeps counting; its remaining time is clamped to
// the new phase duration when that is shorter. Later phases use the new
// durations.
func (t *Timer) SetConfig(cfg Config) bool {
	t.cfg = cfg
	if max := t.phaseDuration(t.phase); t.remaining > max {
		t.remaining = max
	}
	return true
}

// Config returns the active configuration.
func (t *Timer) Config() Config {
	return t.cfg
}

// transition moves to the next phase per the Pomodoro cycle rule: work
// increments the completed-session count and leads into a short break, or a
// long break every cfg.Intervals sessions; any break leads back to work.
// The new phase starts paused unless auto-start is configured for it.
func (t *Timer) transition() {
	if t.phase == PhaseWork {
		t.completed++
		if t.cfg.Intervals > 0 && t.completed%t.cfg.Intervals == 0 {
			t.phase = PhaseLongBreak
		} else {
			t.phase = PhaseShortBreak
		}
		t.paused = !t.cfg.AutoStartBreaks
	} else {
		t.phase = PhaseWork
		t.paused = !t.cfg.AutoStartWork
	}
	t.remaining = t.phaseDuration(t.phase)
}

func (t *Timer) phaseDuration(p Phase) int {
	switch p {
	case PhaseWork:
		return t.cfg.WorkSeconds
	case PhaseShortBreak:
		return t.cfg.ShortBreakSeconds
	case PhaseLongBreak:
		return t.cfg.LongBreakSeconds
	default:
		return t.cfg.WorkSeconds
	}
}

// check validates the internal invariants. A violation is a programming
// defect; callers reset to the initial state rather than continue with
// corrupted state.
func (t *Timer) check() error {
	switch t.phase {
	case PhaseWork, PhaseShortBreak, PhaseLongBreak:
	default:
		return fmt.Errorf("undefined phase %q", string(t.phase))
	}
	if t.remaining < 0 {
		return fmt.Errorf("negative remaining time %d in %s", t.remaining, t.phase)
	}
	return nil
}
