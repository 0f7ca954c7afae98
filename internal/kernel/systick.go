package kernel

// systick.go is the 1ms tick driver: the Go analogue of the reference
// firmware's SysTick handler. It accounts run time for whichever task is
// current, counts down every Delayed task's remaining ticks, and every
// normalizeEveryTicks ticks recomputes %CPU from the accumulated
// run-time totals before resetting them for the next window.

// Tick must be called once per simulated millisecond, serialized by the
// caller (cmd/rtosctl's host ticker or a test). It never switches tasks
// directly; instead it marks needSwitch and, if preemption is enabled,
// asks requestSwitch to act on it before returning — exactly the
// reference firmware's "pend PendSV from SysTick" split between the
// tick's bookkeeping and the deferred switch it may provoke.
//
// Tick is the ISR-equivalent caller: it is not a task and must never
// block waiting for a gate. requestSwitch may hand the run token to some
// other task right here, leaving whichever goroutine Tick found current
// still running briefly alongside it; that goroutine discovers it has
// lost the token and parks itself the next time it makes a trap call of
// its own. Waiting here for it to do so would deadlock the ticker the
// instant a lower-priority task never becomes current again to close its
// own gate.
func (k *Kernel) Tick() {
	k.mu.Lock()

	if k.current >= 0 {
		cur := &k.tasks[k.current]
		if cur.state == StateReady {
			cur.runTimeMs++
		}
	}

	needSwitch := false
	for i := range k.tasks {
		t := &k.tasks[i]
		if t.state != StateDelayed {
			continue
		}
		if t.ticksRemaining > 0 {
			t.ticksRemaining--
		}
		if t.ticksRemaining == 0 {
			t.state = StateReady
			needSwitch = true
		}
	}

	k.msCounter++
	if k.msCounter >= normalizeEveryTicks {
		k.normalizeLocked()
		k.msCounter = 0
	}

	if needSwitch && k.preemption && k.current >= 0 {
		k.requestSwitch(k.current)
	}
	k.mu.Unlock()
}

// normalizeLocked recomputes each valid task's %CPU, in hundredths of a
// percent, from its accumulated run time over the just-finished window,
// then resets every accumulator for the next one. Must be called with
// k.mu held.
func (k *Kernel) normalizeLocked() {
	const windowMs = normalizeEveryTicks
	for i := range k.tasks {
		t := &k.tasks[i]
		if !t.valid() {
			continue
		}
		ran := t.runTimeMs
		centi := uint32((ran * 10000) / windowMs)
		t.cpuPercentCenti = centi
		t.runTimeMs = 0
	}
}
