package kernel

import (
	"testing"
	"time"

	"github.com/cortexm-rtos/kernel/internal/hal"
	"github.com/cortexm-rtos/kernel/internal/mpu"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	return New(Config{
		MPU:                 mpu.NewSimulated(),
		HAL:                 hal.NewDefault(nil),
		PriorityScheduler:   true,
		PriorityInheritance: false,
		Preemption:          true,
	})
}

const testTimeout = 2 * time.Second

// startTicker drives k.Tick() once per millisecond of real time for the
// duration of a test, standing in for the host SysTick driver a real
// deployment runs. Tests that use Syscalls.Sleep need this; tests that
// only use Yield do not, since Yield never waits on a tick.
func startTicker(t *testing.T, k *Kernel) {
	t.Helper()
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				k.Tick()
			}
		}
	}()
}

func awaitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for signal")
	}
}

// mustCreateIdle registers the always-ready, lowest-priority task Start
// requires to exist before it will run: every test that calls Start must
// call this first, exactly like a boot manifest must name one.
func mustCreateIdle(t *testing.T, k *Kernel) {
	t.Helper()
	idle := func(s Syscalls) {
		for {
			s.Yield()
		}
	}
	if _, err := k.CreateTask("idle", IdlePriority, 1024, idle); err != nil {
		t.Fatalf("CreateTask idle: %v", err)
	}
}

func TestCreateTaskAssignsDistinctSlots(t *testing.T) {
	k := newTestKernel(t)
	body1 := func(s Syscalls) { for { s.Yield() } }
	body2 := func(s Syscalls) { for { s.Yield() } }

	id1, err := k.CreateTask("a", 3, 1024, body1)
	if err != nil {
		t.Fatalf("CreateTask a: %v", err)
	}
	id2, err := k.CreateTask("b", 3, 1024, body2)
	if err != nil {
		t.Fatalf("CreateTask b: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("distinct bodies got the same TaskID")
	}
}

func TestCreateTaskRejectsDuplicateBody(t *testing.T) {
	k := newTestKernel(t)
	body := func(s Syscalls) { for { s.Yield() } }

	if _, err := k.CreateTask("a", 3, 1024, body); err != nil {
		t.Fatalf("CreateTask a: %v", err)
	}
	if _, err := k.CreateTask("b", 3, 1024, body); err == nil {
		t.Fatalf("expected an error registering the same body twice")
	}
}

func TestStartDispatchesHighestPriorityFirst(t *testing.T) {
	k := newTestKernel(t)
	ran := make(chan string, 2)

	hi := func(s Syscalls) {
		ran <- "hi"
		for {
			s.Sleep(1000)
		}
	}
	lo := func(s Syscalls) {
		ran <- "lo"
		for {
			s.Sleep(1000)
		}
	}

	if _, err := k.CreateTask("lo", 6, 1024, lo); err != nil {
		t.Fatalf("CreateTask lo: %v", err)
	}
	if _, err := k.CreateTask("hi", 1, 1024, hi); err != nil {
		t.Fatalf("CreateTask hi: %v", err)
	}
	mustCreateIdle(t, k)
	if err := k.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case name := <-ran:
		if name != "hi" {
			t.Fatalf("first task to run = %q, want hi", name)
		}
	case <-time.After(testTimeout):
		t.Fatal("no task ran")
	}
}

func TestYieldRoundRobinsAtEqualPriority(t *testing.T) {
	k := newTestKernel(t)
	order := make(chan string, 10)

	a := func(s Syscalls) {
		for i := 0; i < 3; i++ {
			order <- "a"
			s.Yield()
		}
		for {
			s.Yield()
		}
	}
	b := func(s Syscalls) {
		for i := 0; i < 3; i++ {
			order <- "b"
			s.Yield()
		}
		for {
			s.Yield()
		}
	}

	if _, err := k.CreateTask("a", 3, 1024, a); err != nil {
		t.Fatal(err)
	}
	if _, err := k.CreateTask("b", 3, 1024, b); err != nil {
		t.Fatal(err)
	}
	mustCreateIdle(t, k)
	if err := k.Start(); err != nil {
		t.Fatal(err)
	}

	var got []string
	for i := 0; i < 6; i++ {
		select {
		case s := <-order:
			got = append(got, s)
		case <-time.After(testTimeout):
			t.Fatalf("only got %d of 6 runs: %v", i, got)
		}
	}
	want := []string{"a", "b", "a", "b", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("run order = %v, want %v", got, want)
		}
	}
}
