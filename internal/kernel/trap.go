package kernel

import "fmt"

// trap.go is the supervisor-call surface: the sixteen numbered, ABI-stable
// services a task body calls instead of issuing an SVC instruction. Every
// service that can switch tasks (yield, sleep, lock, unlock, wait, post,
// and kill of the caller itself) follows the same shape — take k.mu,
// mutate kernel state, possibly call requestSwitch, capture the caller's
// own gate while mu is still held, unlock, then wait on that gate only if
// requestSwitch says the caller gave up the run token. Yield, sleep and
// unlock always call requestSwitch; lock and wait call it only when the
// caller blocks, and post only when it wakes a waiter. The remaining
// services (pidof, reboot, restart, setpriority, ps, ipcs, pi, preempt,
// sched, and kill of another task) never call requestSwitch.

// Syscalls is the view of the kernel a task body is handed; it is the Go
// analogue of the fixed SVC numbers 0 through 15.
type Syscalls interface {
	Yield()
	Sleep(ms uint32)
	Lock(mutexID int)
	Unlock(mutexID int)
	Wait(semID int)
	Post(semID int)
	PidOf(name string) TaskID
	Reboot() error
	Kill(target TaskID) error
	Restart(target TaskID) error
	SetPriority(target TaskID, priority int) error
	PS() []Snapshot
	IPCS() (mutexes []MutexSnapshot, semaphores []SemaphoreSnapshot)
	PI(enable bool)
	Preempt(enable bool)
	Sched(mode SchedulerMode)
	Self() TaskID
}

// AdminSyscalls is the subset of Syscalls that makes sense for an
// operator console rather than a task: every administrative and
// diagnostic service, with none of the ones (Yield, Sleep, Lock, Wait,
// Self...) that only mean something for the task currently holding the
// run token.
type AdminSyscalls interface {
	PidOf(name string) TaskID
	Reboot() error
	Kill(target TaskID) error
	Restart(target TaskID) error
	SetPriority(target TaskID, priority int) error
	PS() []Snapshot
	IPCS() (mutexes []MutexSnapshot, semaphores []SemaphoreSnapshot)
	PI(enable bool)
	Preempt(enable bool)
	Sched(mode SchedulerMode)
}

// Admin returns an AdminSyscalls view not bound to any task slot, for a
// host operator console. Its slot index is -1, which never matches a
// real task slot inside the underlying syscalls methods, so self-oriented
// special cases (such as Kill observing it was asked to kill its own
// caller) simply never trigger.
func (k *Kernel) Admin() AdminSyscalls {
	return &syscalls{k: k, idx: -1}
}

// SchedulerMode selects between the two scheduling disciplines service 15
// switches between.
type SchedulerMode int

const (
	SchedulerPriority SchedulerMode = iota
	SchedulerRoundRobin
)

// MutexSnapshot and SemaphoreSnapshot are read-only copies of IPC table
// rows for service 12 (ipcs) and for tests, carrying task names instead
// of bare indices so callers never need to reach back into the table.
type MutexSnapshot struct {
	ID      int
	Locked  bool
	Owner   string
	Waiting []string
}

type SemaphoreSnapshot struct {
	ID      int
	Count   uint
	Waiting []string
}

// syscalls is the concrete Syscalls a task body receives; idx is fixed at
// spawn time and never changes across that goroutine's lifetime, even
// across the gate swaps a switch performs.
type syscalls struct {
	k   *Kernel
	idx int
}

func (s *syscalls) Self() TaskID {
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	return s.k.tasks[s.idx].id
}

// Yield implements service 0: pend a switch unconditionally, without
// changing the caller's own state.
func (s *syscalls) Yield() {
	k := s.k
	k.mu.Lock()
	switched := k.requestSwitch(s.idx)
	gate := k.gates[s.idx]
	k.mu.Unlock()
	if switched {
		<-gate
	}
}

// Sleep implements service 1: the caller becomes Delayed for ms ticks and
// always blocks, since a sleeping task is by definition not the one
// chosen next.
func (s *syscalls) Sleep(ms uint32) {
	if ms == 0 {
		s.Yield()
		return
	}
	k := s.k
	k.mu.Lock()
	k.tasks[s.idx].state = StateDelayed
	k.tasks[s.idx].ticksRemaining = ms
	k.requestSwitch(s.idx)
	gate := k.gates[s.idx]
	k.mu.Unlock()
	<-gate
}

// Lock implements service 2.
func (s *syscalls) Lock(mutexID int) {
	k := s.k
	k.mu.Lock()
	switched := k.lock(s.idx, mutexID)
	gate := k.gates[s.idx]
	k.mu.Unlock()
	if switched {
		<-gate
	}
}

// Unlock implements service 3.
func (s *syscalls) Unlock(mutexID int) {
	k := s.k
	k.mu.Lock()
	switched := k.unlock(s.idx, mutexID)
	gate := k.gates[s.idx]
	k.mu.Unlock()
	if switched {
		<-gate
	}
}

// Wait implements service 4.
func (s *syscalls) Wait(semID int) {
	k := s.k
	k.mu.Lock()
	switched := k.wait(s.idx, semID)
	gate := k.gates[s.idx]
	k.mu.Unlock()
	if switched {
		<-gate
	}
}

// Post implements service 5.
func (s *syscalls) Post(semID int) {
	k := s.k
	k.mu.Lock()
	switched := k.post(s.idx, semID)
	gate := k.gates[s.idx]
	k.mu.Unlock()
	if switched {
		<-gate
	}
}

// PidOf implements service 6. It never blocks, so it takes no part in the
// switch protocol.
func (s *syscalls) PidOf(name string) TaskID {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pidOf(name)
}

// Reboot implements service 7: it hands off to the HAL's reset
// controller under the widened-access window administrative services
// use, and never returns on success.
func (s *syscalls) Reboot() error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	var err error
	k.withWidenedAccess(func() {
		err = k.hal.Reset()
	})
	return err
}

// Kill implements service 8. Killing oneself always pends a switch;
// killing another task never does, since the caller's own runnability is
// unaffected.
func (s *syscalls) Kill(target TaskID) error {
	k := s.k
	k.mu.Lock()
	idx, ok := k.indexByID(target)
	if !ok {
		k.mu.Unlock()
		return fmt.Errorf("kernel: kill: no such task")
	}

	k.withWidenedAccess(func() {
		k.kill(idx)
	})

	var switched bool
	var gate chan struct{}
	if idx == s.idx && s.idx >= 0 {
		switched = k.requestSwitch(s.idx)
		gate = k.gates[s.idx]
	}
	k.mu.Unlock()
	if switched {
		<-gate
	}
	return nil
}

// Restart implements service 9: always performed under widened access
// since it touches another task's table row and stack, and never
// switches the caller away (a task cannot restart itself and expect to
// resume).
func (s *syscalls) Restart(target TaskID) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	idx, ok := k.indexByID(target)
	if !ok {
		return fmt.Errorf("kernel: restart: no such task")
	}
	if k.tasks[idx].state != StateKilled {
		return fmt.Errorf("kernel: restart: task is not killed")
	}

	var restarted bool
	k.withWidenedAccess(func() {
		restarted = k.restart(idx)
	})
	if !restarted {
		return fmt.Errorf("kernel: restart: heap cannot satisfy stack")
	}
	return nil
}

// SetPriority implements service 10.
func (s *syscalls) SetPriority(target TaskID, priority int) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	idx, ok := k.indexByID(target)
	if !ok {
		return fmt.Errorf("kernel: setpriority: no such task")
	}
	k.withWidenedAccess(func() {
		k.setPriority(idx, priority)
	})
	return nil
}

// PS implements service 11: a point-in-time snapshot of every valid
// task, taken under widened access since it reads every row, not just
// the caller's own.
func (s *syscalls) PS() []Snapshot {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()

	var out []Snapshot
	k.withWidenedAccess(func() {
		for i := range k.tasks {
			if k.tasks[i].valid() {
				out = append(out, k.tasks[i].snapshot())
			}
		}
	})
	return out
}

// IPCS implements service 12: idle semaphores (no tokens, no waiters) and
// unlocked, uncontended mutexes are skipped entirely, matching the
// reference firmware's own ipcs handler, which continues past exactly
// those rows instead of printing a screenful of unused IPC objects.
func (s *syscalls) IPCS() ([]MutexSnapshot, []SemaphoreSnapshot) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()

	var mutexes []MutexSnapshot
	var semaphores []SemaphoreSnapshot
	k.withWidenedAccess(func() {
		for i := range k.mutexes {
			m := &k.mutexes[i]
			if !m.locked && len(m.queue) == 0 {
				continue
			}
			snap := MutexSnapshot{ID: i, Locked: m.locked}
			if m.locked {
				snap.Owner = k.tasks[m.owner].name
			}
			for _, w := range m.queue {
				snap.Waiting = append(snap.Waiting, k.tasks[w].name)
			}
			mutexes = append(mutexes, snap)
		}
		for i := range k.semaphores {
			sem := &k.semaphores[i]
			if sem.count == 0 && len(sem.queue) == 0 {
				continue
			}
			snap := SemaphoreSnapshot{ID: i, Count: sem.count}
			for _, w := range sem.queue {
				snap.Waiting = append(snap.Waiting, k.tasks[w].name)
			}
			semaphores = append(semaphores, snap)
		}
	})
	return mutexes, semaphores
}

// PI implements service 13: toggles priority inheritance for future
// contention; it never retroactively restores an already-boosted owner.
func (s *syscalls) PI(enable bool) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	k.withWidenedAccess(func() {
		k.priorityInheritance = enable
	})
}

// Preempt implements service 14: toggles whether the SysTick driver may
// request a switch on a tick boundary at all.
func (s *syscalls) Preempt(enable bool) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	k.withWidenedAccess(func() {
		k.preemption = enable
	})
}

// Sched implements service 15: switching modes takes effect on the very
// next requestSwitch call, mid-run, with no transitional state.
func (s *syscalls) Sched(mode SchedulerMode) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	k.withWidenedAccess(func() {
		k.priorityScheduler = mode == SchedulerPriority
	})
}
