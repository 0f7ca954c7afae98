package kernel

import "fmt"

// switch.go implements the deferred context switch: the Go analogue of
// PendSV. A real core swaps register banks and stack pointers; a Go
// process cannot, so instead exactly one task goroutine ever holds a
// "run token" at a time, represented by a close of its gate channel.
// requestSwitch is the sole function that ever changes which task holds
// the token, exactly as the reference firmware has exactly one function
// that ever changes which TCB is current.

// requestSwitch must be called with k.mu held. callerIdx is whoever is
// asking, which is not always k.current: the SysTick driver calls this
// on behalf of the task it finds current at tick time, and that task's
// goroutine may since have called a trap of its own and moved k.current
// elsewhere. requestSwitch always recomputes the true next task from
// the live table and compares it against callerIdx itself, never against
// k.current, so it never misjudges whether callerIdx still holds the run
// token. It commits the switch unconditionally — applying the new task's
// MPU mask, building its initial frame if it has never run, and updating
// k.current — even when next == callerIdx, since that is a cheap,
// idempotent no-op in that case. It reports whether callerIdx itself must
// wait (true) for its gate to be reopened by some future dispatch.
//
// Callers at trap sites must capture callerIdx's gate channel while
// still holding k.mu, immediately after calling requestSwitch, and only
// receive from it after unlocking: a concurrent restart of callerIdx's
// slot replaces that slot's channel, and reading a stale reference after
// unlock would wait on a channel nobody will ever close.
func (k *Kernel) requestSwitch(callerIdx int) (callerMustWait bool) {
	next, ok := k.pickNext()
	if !ok {
		// No task in the whole table is runnable: the reference firmware
		// spins forever with interrupts masked. Holding the executive lock
		// forever is the faithful analogue, since nothing useful can
		// happen system-wide from here on.
		k.writeDiag("kernel: halt, no runnable task\n")
		select {}
	}

	k.dispatch(next)
	return callerIdx != next
}

// dispatch commits next as the current task: widens or narrows the MPU
// window, synthesizes an initial frame the first time a task runs, and
// grants its gate. Must be called with k.mu held.
func (k *Kernel) dispatch(next int) {
	t := &k.tasks[next]

	if t.state == StateUnrun {
		_ = k.hal.BuildInitialFrame(t.stackTop, uint64(t.id))
		t.state = StateReady
	}

	k.mpu.ApplyMask(t.srdMask)
	k.current = next

	gate := k.gates[next]
	close(gate)
	k.gates[next] = make(chan struct{})
}

// spawn launches the goroutine backing task slot idx. It blocks
// immediately on the slot's current gate until granted the run token,
// exactly like every task after its first dispatch.
func (k *Kernel) spawn(idx int) {
	gate := k.gates[idx]
	body := k.bodies[idx]

	go func() {
		<-gate

		defer k.selfKillOnReturn(idx)

		body(&syscalls{k: k, idx: idx})
	}()
}

// selfKillOnReturn runs when a task body returns normally instead of
// calling Kill on itself: the reference firmware treats falling off the
// end of a task function as a programming error it recovers from rather
// than a crash, so the slot is killed here and the scheduler moves on.
func (k *Kernel) selfKillOnReturn(idx int) {
	k.mu.Lock()
	if k.tasks[idx].state != StateKilled {
		k.kill(idx)
		k.requestSwitch(idx)
	}
	k.mu.Unlock()
}

// Start launches every registered task's goroutine and performs the
// first dispatch. It must be called exactly once, after every CreateTask
// call. It fails if no task is registered at IdlePriority: the kernel
// never fabricates a fallback task of its own, since "no task ever
// occupies the lowest scheduling step" is a boot-configuration error, not
// a condition to paper over silently.
func (k *Kernel) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.started {
		return fmt.Errorf("kernel: Start called twice")
	}
	if !k.hasIdleTaskLocked() {
		return fmt.Errorf("kernel: Start: no task registered at IdlePriority (%d); CreateTask one that runs forever before calling Start", IdlePriority)
	}
	k.started = true

	for i := range k.tasks {
		if k.tasks[i].valid() {
			k.spawn(i)
		}
	}

	next, ok := k.pickNext()
	if !ok {
		return fmt.Errorf("kernel: no runnable task at Start")
	}
	k.dispatch(next)
	return nil
}

// hasIdleTaskLocked reports whether some valid task occupies IdlePriority.
// Must be called with k.mu held.
func (k *Kernel) hasIdleTaskLocked() bool {
	for i := range k.tasks {
		if k.tasks[i].valid() && k.tasks[i].basePriority == IdlePriority {
			return true
		}
	}
	return false
}
