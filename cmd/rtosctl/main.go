// Command rtosctl hosts the kernel as a normal OS process: it boots a
// task set from a YAML manifest and either drives an interactive
// operator shell over the current terminal, or runs a fixed number of
// simulated SysTick ticks unattended and reports the result.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/cortexm-rtos/kernel/internal/config"
	"github.com/cortexm-rtos/kernel/internal/diag"
	"github.com/cortexm-rtos/kernel/internal/hal"
	"github.com/cortexm-rtos/kernel/internal/kernel"
	"github.com/cortexm-rtos/kernel/internal/mpu"
	"github.com/cortexm-rtos/kernel/internal/shell"
	"github.com/cortexm-rtos/kernel/internal/tasks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rtosctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: rtosctl <shell|simulate> [flags] manifest.yaml")
	}
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "shell":
		return runShell(args)
	case "simulate":
		return runSimulate(args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func boot(manifestPath string, sink *diag.Buffer) (*kernel.Kernel, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	manifest, err := config.Parse(data)
	if err != nil {
		return nil, err
	}

	priorityScheduler, priorityInheritance, preemption := manifest.Policy()
	k := kernel.New(kernel.Config{
		MPU:  mpu.NewSimulated(),
		HAL:  hal.NewDefault(resetSelf),
		Sink: sink,

		PriorityScheduler:   priorityScheduler,
		PriorityInheritance: priorityInheritance,
		Preemption:          preemption,
	})

	if err := manifest.CreateTasks(k, tasks.Registry()); err != nil {
		return nil, err
	}
	if err := k.Start(); err != nil {
		return nil, err
	}
	return k, nil
}

// resetSelf re-execs the current process image: the host analogue of
// writing the SCB's AIRCR reset key.
func resetSelf() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	return unix.Exec(exe, os.Args, os.Environ())
}

func runShell(args []string) error {
	fs := flag.NewFlagSet("shell", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: rtosctl shell manifest.yaml")
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	sink := diag.NewBuffer(log)

	k, err := boot(fs.Arg(0), sink)
	if err != nil {
		return err
	}

	// Drive the SysTick driver at 1ms of real time for the session.
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			k.Tick()
		}
	}()

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("term.MakeRaw: %w", err)
		}
		defer term.Restore(fd, oldState)
	}

	sh := shell.New(k.Admin(), os.Stdin, os.Stdout)
	return sh.Run()
}

func runSimulate(args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	ticks := fs.Int("ticks", 2000, "number of 1ms ticks to simulate")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: rtosctl simulate --ticks N manifest.yaml")
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	sink := diag.NewBuffer(log)

	k, err := boot(fs.Arg(0), sink)
	if err != nil {
		return err
	}

	bar := progressbar.Default(int64(*ticks), "simulating")
	start := time.Now()
	for i := 0; i < *ticks; i++ {
		k.Tick()
		_ = bar.Add(1)
	}
	bar.Close()

	fmt.Println(diag.FormatPS(k.Admin().PS()))
	fmt.Printf("simulated %d ticks in %s\n", *ticks, time.Since(start))
	return nil
}
