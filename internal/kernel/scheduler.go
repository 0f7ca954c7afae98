package kernel

// pickNext chooses the next task to run. Must be called with k.mu held.
// It implements both scheduler modes over the live task table so the
// "skip current if another candidate exists at the same priority" rule
// and the per-priority round-robin cursor behave identically regardless
// of which mode is active.
//
// pickNext never mutates scheduling state for a mode that isn't active;
// the active mode's cursor (roundRobinNext or priorityCursor[best]) is
// advanced here, before the picked index is returned.
func (k *Kernel) pickNext() (idx int, ok bool) {
	if k.priorityScheduler {
		return k.pickNextPriority()
	}
	return k.pickNextRoundRobin()
}

func (k *Kernel) pickNextRoundRobin() (int, bool) {
	for count := 0; count < MaxTasks; count++ {
		k.roundRobinNext = (k.roundRobinNext + 1) % MaxTasks
		t := &k.tasks[k.roundRobinNext]
		if t.valid() && t.runnable() {
			return k.roundRobinNext, true
		}
	}
	return 0, false
}

func (k *Kernel) pickNextPriority() (int, bool) {
	best := NumPriorities
	for i := range k.tasks {
		t := &k.tasks[i]
		if t.valid() && t.runnable() && t.currentPriority < best {
			best = t.currentPriority
		}
	}
	if best == NumPriorities {
		return 0, false
	}

	start := k.priorityCursor[best]
	for step := 0; step < MaxTasks; step++ {
		i := (start + step) % MaxTasks
		t := &k.tasks[i]
		if i != k.current && t.valid() && t.runnable() && t.currentPriority == best {
			k.priorityCursor[best] = (i + 1) % MaxTasks
			return i, true
		}
	}

	// No candidate other than the current task: keep it if it is still
	// runnable at all, matching the reference scheduler's fallback.
	if k.current >= 0 {
		t := &k.tasks[k.current]
		if t.valid() && t.runnable() {
			return k.current, true
		}
	}
	return 0, false
}
