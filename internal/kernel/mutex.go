package kernel

// mutexState is one row of the fixed-capacity mutex table: a lock flag,
// the owning task index, and a strict FIFO of waiting task indices.
type mutexState struct {
	locked bool
	owner  int
	queue  []int
}

func (m *mutexState) init() {
	m.locked = false
	m.owner = -1
	m.queue = m.queue[:0]
}

func (m *mutexState) enqueue(idx int) bool {
	if len(m.queue) >= queueCapacity {
		return false
	}
	m.queue = append(m.queue, idx)
	return true
}

func (m *mutexState) dequeue() (int, bool) {
	if len(m.queue) == 0 {
		return 0, false
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	return next, true
}

func (m *mutexState) remove(idx int) {
	for i, v := range m.queue {
		if v == idx {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// lock implements service 2: if the mutex is free, the caller takes it
// immediately; otherwise the caller blocks FIFO behind every earlier
// contender and a switch is requested. Out-of-range ids are ignored.
func (k *Kernel) lock(callerIdx int, mutexID int) bool {
	if mutexID < 0 || mutexID >= MaxMutexes {
		return false
	}
	m := &k.mutexes[mutexID]

	if !m.locked {
		m.locked = true
		m.owner = callerIdx
		k.tasks[callerIdx].heldMutex = mutexID
		return false
	}

	if k.priorityInheritance {
		owner := &k.tasks[m.owner]
		attempter := &k.tasks[callerIdx]
		if attempter.currentPriority < owner.currentPriority {
			owner.currentPriority = attempter.currentPriority
		}
	}

	k.tasks[callerIdx].state = StateBlockedMutex
	m.enqueue(callerIdx)
	return k.requestSwitch(callerIdx)
}

// unlock implements service 3: only the owner may unlock. If the wait
// queue is non-empty, ownership transfers to the head waiter, who becomes
// Ready; otherwise the mutex is simply cleared. A switch is always
// requested so the newly-runnable waiter gets a chance to run.
func (k *Kernel) unlock(callerIdx int, mutexID int) bool {
	if mutexID < 0 || mutexID >= MaxMutexes {
		return false
	}
	m := &k.mutexes[mutexID]
	if !m.locked || m.owner != callerIdx {
		return false
	}

	if k.priorityInheritance {
		k.tasks[callerIdx].currentPriority = k.tasks[callerIdx].basePriority
	}

	if next, ok := m.dequeue(); ok {
		m.owner = next
		k.tasks[next].heldMutex = mutexID
		k.tasks[next].state = StateReady
	} else {
		m.locked = false
		m.owner = -1
	}

	k.tasks[callerIdx].heldMutex = noMutex
	return k.requestSwitch(callerIdx)
}

// releaseMutexesHeldBy is called from kill: if idx owns a mutex, ownership
// transfers exactly as in unlock; if idx is merely waiting on one, it is
// removed from that queue.
func (k *Kernel) releaseMutexesHeldBy(idx int) {
	for i := range k.mutexes {
		m := &k.mutexes[i]
		if m.locked && m.owner == idx {
			if next, ok := m.dequeue(); ok {
				m.owner = next
				k.tasks[next].heldMutex = i
				k.tasks[next].state = StateReady
			} else {
				m.locked = false
				m.owner = -1
			}
		}
		m.remove(idx)
	}
	k.tasks[idx].heldMutex = noMutex
}
