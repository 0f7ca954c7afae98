package diag

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/cortexm-rtos/kernel/internal/kernel"
)

// stateColor maps a task state to the SGR color its name is rendered in
// the ps table, so a blocked or killed task stands out in a scrollback
// full of READY/UNRUN rows.
func stateColor(s kernel.State) string {
	switch s {
	case kernel.StateReady, kernel.StateUnrun:
		return "32" // green
	case kernel.StateDelayed:
		return "36" // cyan
	case kernel.StateBlockedSemaphore, kernel.StateBlockedMutex:
		return "33" // yellow
	case kernel.StateKilled:
		return "31" // red
	default:
		return "37"
	}
}

func colorize(code, text string) string {
	return "\x1b[" + code + "m" + text + "\x1b[0m"
}

// padRight pads s with spaces to width columns, measuring width with
// ansi.StringWidth rather than len(s) so embedded SGR escape sequences
// never count toward the visible column width.
func padRight(s string, width int) string {
	visible := ansi.StringWidth(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

// FormatPS renders service 11's output: one row per task, name/state/
// priority/%CPU columns, state colorized by stateColor.
func FormatPS(rows []kernel.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-15s %-8s %-5s %s\n", "NAME", "STATE", "PRIO", "%CPU")
	for _, r := range rows {
		state := colorize(stateColor(r.State), r.State.String())
		whole := r.CPUPercentCenti / 100
		frac := r.CPUPercentCenti % 100
		cpu := fmt.Sprintf("%d.%02d", whole, frac)
		fmt.Fprintf(&b, "%s %s %-5d %s\n", padRight(r.Name, 15), padRight(state, 8), r.CurrentPriority, cpu)
	}
	return b.String()
}

// FormatIPCS renders service 12's output: one SEM line per semaphore and
// one MUTEX line per mutex, each with its waiter names in submission
// order. Idle semaphores (no tokens, no waiters) and unlocked,
// uncontended mutexes are skipped, mirroring the filter kernel.IPCS
// itself applies, so this formatter stays correct even if ever handed an
// unfiltered snapshot from somewhere other than that call.
func FormatIPCS(mutexes []kernel.MutexSnapshot, semaphores []kernel.SemaphoreSnapshot) string {
	var b strings.Builder
	for _, s := range semaphores {
		if s.Count == 0 && len(s.Waiting) == 0 {
			continue
		}
		fmt.Fprintf(&b, "SEM %d count=%d waiting=%d [%s]\n",
			s.ID, s.Count, len(s.Waiting), strings.Join(s.Waiting, ","))
	}
	for _, m := range mutexes {
		if !m.Locked && len(m.Waiting) == 0 {
			continue
		}
		owner := "---"
		locked := 0
		if m.Locked {
			owner = m.Owner
			locked = 1
		}
		fmt.Fprintf(&b, "MUTEX %d locked=%d by=%s waiting=%d [%s]\n",
			m.ID, locked, owner, len(m.Waiting), strings.Join(m.Waiting, ","))
	}
	return b.String()
}
