// Package shell implements the interactive operator console: a small
// line-oriented command interpreter driving the kernel's Syscalls surface
// exclusively through its public administrative services, the way the
// reference firmware's shell is itself just another task with no
// privileged access the syscall table doesn't grant it.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cortexm-rtos/kernel/internal/diag"
	"github.com/cortexm-rtos/kernel/internal/kernel"
)

// Shell reads command lines from in and writes command output to out. It
// holds nothing but a Syscalls handle: every command it implements is a
// call tasks could make themselves, plus the string parsing around it.
type Shell struct {
	calls kernel.AdminSyscalls
	out   io.Writer
	in    *bufio.Scanner
}

// New returns a Shell driving calls, reading lines from in and writing
// output to out.
func New(calls kernel.AdminSyscalls, in io.Reader, out io.Writer) *Shell {
	return &Shell{calls: calls, out: out, in: bufio.NewScanner(in)}
}

// Run reads and dispatches command lines until in is exhausted or a
// "reboot" command succeeds (which does not return). It returns the
// first read error other than io.EOF.
func (sh *Shell) Run() error {
	for sh.in.Scan() {
		line := strings.TrimSpace(sh.in.Text())
		if line == "" {
			continue
		}
		if err := sh.dispatch(line); err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}
	return sh.in.Err()
}

func fields(line string) []string {
	return strings.Fields(line)
}

func isCommand(fs []string, name string) bool {
	return len(fs) > 0 && fs[0] == name
}

func getFieldString(fs []string, i int) (string, bool) {
	if i < 0 || i >= len(fs) {
		return "", false
	}
	return fs[i], true
}

func getFieldInteger(fs []string, i int) (int, bool) {
	s, ok := getFieldString(fs, i)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (sh *Shell) dispatch(line string) error {
	fs := fields(line)

	switch {
	case isCommand(fs, "reboot"):
		return sh.calls.Reboot()

	case isCommand(fs, "ps"):
		fmt.Fprint(sh.out, diag.FormatPS(sh.calls.PS()))
		return nil

	case isCommand(fs, "ipcs"):
		mutexes, semaphores := sh.calls.IPCS()
		fmt.Fprint(sh.out, diag.FormatIPCS(mutexes, semaphores))
		return nil

	case isCommand(fs, "kill"):
		pid, ok := getFieldInteger(fs, 1)
		if !ok || pid == 0 {
			return fmt.Errorf("usage: kill <pid>")
		}
		return sh.calls.Kill(kernel.TaskID(pid))

	case isCommand(fs, "pkill"):
		return sh.pkill(fs)

	case isCommand(fs, "run"):
		name, ok := getFieldString(fs, 1)
		if !ok {
			return fmt.Errorf("usage: run <name>")
		}
		return sh.calls.Restart(sh.calls.PidOf(name))

	case isCommand(fs, "setpriority"):
		name, ok := getFieldString(fs, 1)
		if !ok {
			return fmt.Errorf("usage: setpriority <name> <priority>")
		}
		priority, ok := getFieldInteger(fs, 2)
		if !ok {
			return fmt.Errorf("usage: setpriority <name> <priority>")
		}
		return sh.calls.SetPriority(sh.calls.PidOf(name), priority)

	case isCommand(fs, "pi"):
		mode, ok := getFieldString(fs, 1)
		if !ok {
			return fmt.Errorf("usage: pi <on|off>")
		}
		sh.calls.PI(mode == "on")
		return nil

	case isCommand(fs, "preempt"):
		mode, ok := getFieldString(fs, 1)
		if !ok {
			return fmt.Errorf("usage: preempt <on|off>")
		}
		sh.calls.Preempt(mode == "on")
		return nil

	case isCommand(fs, "sched"):
		mode, ok := getFieldString(fs, 1)
		if !ok {
			return fmt.Errorf("usage: sched <priority|rr>")
		}
		if mode == "rr" {
			sh.calls.Sched(kernel.SchedulerRoundRobin)
		} else {
			sh.calls.Sched(kernel.SchedulerPriority)
		}
		return nil

	case isCommand(fs, "pidof"):
		name, ok := getFieldString(fs, 1)
		if !ok {
			return fmt.Errorf("usage: pidof <name>")
		}
		id := sh.calls.PidOf(name)
		if id == kernel.NoTask {
			fmt.Fprintln(sh.out, "no such task")
			return nil
		}
		fmt.Fprintf(sh.out, "%d\n", id)
		return nil

	default:
		return fmt.Errorf("unknown command %q", fs[0])
	}
}

// pkill resolves name to a single pid via PidOf and kills exactly that
// task, the same single resolve-and-kill the reference firmware's pkill
// performs — it is a kill by name, not a mass-kill by name prefix.
func (sh *Shell) pkill(fs []string) error {
	name, ok := getFieldString(fs, 1)
	if !ok {
		return fmt.Errorf("usage: pkill <name>")
	}
	id := sh.calls.PidOf(name)
	if id == kernel.NoTask {
		return fmt.Errorf("no such task: %s", name)
	}
	return sh.calls.Kill(id)
}
