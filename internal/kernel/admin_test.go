package kernel

import (
	"testing"
	"time"
)

// snapshotByName finds the PS row for name, failing the test if it is
// missing.
func snapshotByName(t *testing.T, snaps []Snapshot, name string) Snapshot {
	t.Helper()
	for _, s := range snaps {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no PS row for %q in %+v", name, snaps)
	return Snapshot{}
}

// TestKillReclaimsHeapImmediatelyForOtherTasks exercises S3: killing a
// task that is not the one currently running frees its stack blocks
// right away, while an untouched task's blocks stay owned.
func TestKillReclaimsHeapImmediatelyForOtherTasks(t *testing.T) {
	k := newTestKernel(t)
	readyToSleep := make(chan struct{})

	t1 := func(s Syscalls) {
		close(readyToSleep)
		s.Sleep(1_000_000)
		for {
			s.Yield()
		}
	}
	t2 := func(s Syscalls) {
		for {
			s.Sleep(1_000_000)
		}
	}

	id1, err := k.CreateTask("t1", 5, 2048, t1)
	if err != nil {
		t.Fatalf("CreateTask t1: %v", err)
	}
	id2, err := k.CreateTask("t2", 5, 3072, t2)
	if err != nil {
		t.Fatalf("CreateTask t2: %v", err)
	}
	mustCreateIdle(t, k)
	if err := k.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	startTicker(t, k)
	awaitSignal(t, readyToSleep)

	k.mu.Lock()
	idx1, _ := k.indexByID(id1)
	idx2, _ := k.indexByID(id2)
	base1 := k.tasks[idx1].stackBase
	base2 := k.tasks[idx2].stackBase
	k.mu.Unlock()

	// t1 gave up the run token via Sleep before we get here, so it is
	// never k.current at the moment of kill; its two blocks must be
	// reclaimed synchronously.
	deadline := time.Now().Add(testTimeout)
	for {
		k.mu.Lock()
		cur := k.current
		k.mu.Unlock()
		if cur != idx1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("t1 never relinquished current")
		}
		time.Sleep(time.Millisecond)
	}

	if err := k.Admin().Kill(id1); err != nil {
		t.Fatalf("Kill t1: %v", err)
	}

	if owner, err := k.heap.Owner(base1); err != nil || owner != 0 {
		t.Fatalf("t1's stack block owner = %d, err=%v; want 0 (free)", owner, err)
	}
	if owner, err := k.heap.Owner(base2); err != nil || owner != uint16(idx2+1) {
		t.Fatalf("t2's stack block owner = %d, err=%v; want %d (still owned)", owner, err, idx2+1)
	}
}

// TestRestartResetsRunTimeAndCPUPercent exercises S5: a killed task that
// accumulated run time and a nonzero %CPU reads both as zero immediately
// after restart.
func TestRestartResetsRunTimeAndCPUPercent(t *testing.T) {
	k := newTestKernel(t)
	body := func(s Syscalls) {
		for {
			s.Yield()
		}
	}

	id, err := k.CreateTask("t", 3, 1024, body)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	mustCreateIdle(t, k)
	if err := k.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	k.mu.Lock()
	idx, _ := k.indexByID(id)
	k.tasks[idx].runTimeMs = 3850
	k.tasks[idx].cpuPercentCenti = 9625
	k.mu.Unlock()

	if err := k.Admin().Kill(id); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if err := k.Admin().Restart(id); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	snap := snapshotByName(t, k.Admin().PS(), "t")
	if snap.RunTimeMs != 0 || snap.CPUPercentCenti != 0 {
		t.Fatalf("after restart RunTimeMs=%d CPUPercentCenti=%d, want 0, 0", snap.RunTimeMs, snap.CPUPercentCenti)
	}
}

// TestSetPriorityClampsToValidRange table-drives service 10's clamping:
// out-of-range requests are pulled into [0, NumPriorities-1] rather than
// rejected or stored verbatim.
func TestSetPriorityClampsToValidRange(t *testing.T) {
	cases := []struct {
		name      string
		requested int
		want      int
	}{
		{"within range", 2, 2},
		{"negative clamps to 0", -5, 0},
		{"too high clamps to max", 100, NumPriorities - 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k := newTestKernel(t)
			body := func(s Syscalls) { for { s.Yield() } }
			id, err := k.CreateTask("t", 3, 1024, body)
			if err != nil {
				t.Fatalf("CreateTask: %v", err)
			}
			mustCreateIdle(t, k)
			if err := k.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}

			if err := k.Admin().SetPriority(id, tc.requested); err != nil {
				t.Fatalf("SetPriority: %v", err)
			}

			snap := snapshotByName(t, k.Admin().PS(), "t")
			if snap.BasePriority != tc.want || snap.CurrentPriority != tc.want {
				t.Fatalf("priority = (%d, %d), want (%d, %d)", snap.BasePriority, snap.CurrentPriority, tc.want, tc.want)
			}
		})
	}
}

// TestPSReportsOnlyValidTasks checks that PS's snapshot includes every
// registered task by name and excludes table slots nothing ever occupied.
func TestPSReportsOnlyValidTasks(t *testing.T) {
	k := newTestKernel(t)
	body := func(s Syscalls) { for { s.Yield() } }

	if _, err := k.CreateTask("a", 3, 1024, body); err != nil {
		t.Fatal(err)
	}
	mustCreateIdle(t, k)
	if err := k.Start(); err != nil {
		t.Fatal(err)
	}

	snaps := k.Admin().PS()
	if len(snaps) != 2 {
		t.Fatalf("PS returned %d rows, want 2 (a, idle)", len(snaps))
	}
	snapshotByName(t, snaps, "a")
	snapshotByName(t, snaps, "idle")
}

// TestIPCSFiltersIdleObjects exercises the filter added to service 12:
// a held mutex and a nonzero semaphore are reported, while an untouched
// mutex and semaphore are skipped entirely.
func TestIPCSFiltersIdleObjects(t *testing.T) {
	k := newTestKernel(t)
	locked := make(chan struct{})
	posted := make(chan struct{})

	holder := func(s Syscalls) {
		s.Lock(0)
		close(locked)
		for {
			s.Yield()
		}
	}
	poster := func(s Syscalls) {
		s.Post(1)
		close(posted)
		for {
			s.Yield()
		}
	}

	mustCreate(t, k, "holder", 3, holder)
	mustCreate(t, k, "poster", 3, poster)
	mustCreateIdle(t, k)
	if err := k.Start(); err != nil {
		t.Fatal(err)
	}
	awaitSignal(t, locked)
	awaitSignal(t, posted)

	mutexes, semaphores := k.Admin().IPCS()

	if len(mutexes) != 1 || mutexes[0].ID != 0 || !mutexes[0].Locked || mutexes[0].Owner != "holder" {
		t.Fatalf("mutexes = %+v, want exactly mutex 0 locked by holder", mutexes)
	}
	if len(semaphores) != 1 || semaphores[0].ID != 1 || semaphores[0].Count != 1 {
		t.Fatalf("semaphores = %+v, want exactly semaphore 1 with count 1", semaphores)
	}
}

// TestSchedSwitchesBetweenPriorityAndRoundRobin checks that service 15
// actually changes which scheduling discipline pickNext uses: a
// lower-priority task is starved under priority scheduling and gets a
// turn once switched to round-robin.
func TestSchedSwitchesBetweenPriorityAndRoundRobin(t *testing.T) {
	k := newTestKernel(t)
	order := make(chan string, 16)

	hi := func(s Syscalls) {
		for i := 0; i < 3; i++ {
			select {
			case order <- "hi":
			default:
			}
			s.Yield()
		}
		for {
			s.Yield()
		}
	}
	lo := func(s Syscalls) {
		for i := 0; i < 3; i++ {
			select {
			case order <- "lo":
			default:
			}
			s.Yield()
		}
		for {
			s.Yield()
		}
	}

	mustCreate(t, k, "hi", 1, hi)
	mustCreate(t, k, "lo", 6, lo)
	mustCreateIdle(t, k)
	if err := k.Start(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		select {
		case name := <-order:
			if name != "hi" {
				t.Fatalf("under priority scheduling, run[%d] = %q, want hi", i, name)
			}
		case <-time.After(testTimeout):
			t.Fatal("hi never ran under priority scheduling")
		}
	}

	k.Admin().Sched(SchedulerRoundRobin)

	sawLo := false
	for i := 0; i < 3; i++ {
		select {
		case name := <-order:
			if name == "lo" {
				sawLo = true
			}
		case <-time.After(testTimeout):
			t.Fatalf("only saw %d of 3 post-switch runs", i)
		}
	}
	if !sawLo {
		t.Fatal("lo never ran after switching to round-robin scheduling")
	}
}

// TestPreemptGatesTickDrivenSwitch checks that disabling preemption stops
// SysTick from forcing a switch away from a task that never itself traps
// into the kernel, even once a higher-priority task becomes ready.
func TestPreemptGatesTickDrivenSwitch(t *testing.T) {
	for _, preempt := range []bool{true, false} {
		preempt := preempt
		t.Run(map[bool]string{true: "enabled", false: "disabled"}[preempt], func(t *testing.T) {
			k := newTestKernel(t)
			k.preemption = preempt
			ranHi := make(chan struct{})
			stop := make(chan struct{})

			hi := func(s Syscalls) {
				s.Sleep(20)
				close(ranHi)
				close(stop)
				for {
					s.Yield()
				}
			}
			lo := func(s Syscalls) {
				deadline := time.Now().Add(150 * time.Millisecond)
				for {
					select {
					case <-stop:
						for {
							s.Yield()
						}
					default:
					}
					if time.Now().After(deadline) {
						for {
							s.Yield()
						}
					}
				}
			}

			mustCreate(t, k, "hi", 1, hi)
			mustCreate(t, k, "lo", 6, lo)
			mustCreateIdle(t, k)
			if err := k.Start(); err != nil {
				t.Fatal(err)
			}
			startTicker(t, k)

			if preempt {
				awaitSignal(t, ranHi)
				return
			}

			select {
			case <-ranHi:
				t.Fatal("hi ran despite preemption disabled and lo never trapping into the kernel")
			case <-time.After(150 * time.Millisecond):
			}
		})
	}
}

// TestPIBoostTogglesViaService checks that service 13 actually gates
// priority-inheritance boosting: with PI left off, a low-priority owner
// is never boosted by a waiting high-priority contender; calling PI(true)
// before a fresh contention lets that same scenario boost it.
func TestPIBoostTogglesViaService(t *testing.T) {
	cases := []struct {
		name         string
		enablePI     bool
		wantPriority int
	}{
		{"PI off: owner priority unaffected by contention", false, 6},
		{"PI on: owner boosted to contender's priority", true, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k := newTestKernel(t)
			k.Admin().PI(tc.enablePI)
			reported := make(chan int, 1)

			low := func(s Syscalls) {
				s.Lock(0)
				s.Sleep(20) // give the high-priority contender time to block
				self := s.Self()
				k.mu.Lock()
				idx, _ := k.indexByID(self)
				reported <- k.tasks[idx].currentPriority
				k.mu.Unlock()
				s.Unlock(0)
				for {
					s.Yield()
				}
			}
			high := func(s Syscalls) {
				s.Sleep(5)
				s.Lock(0)
				for {
					s.Yield()
				}
			}

			mustCreate(t, k, "low", 6, low)
			mustCreate(t, k, "high", 1, high)
			mustCreateIdle(t, k)
			if err := k.Start(); err != nil {
				t.Fatal(err)
			}
			startTicker(t, k)

			select {
			case p := <-reported:
				if p != tc.wantPriority {
					t.Fatalf("owner currentPriority = %d, want %d", p, tc.wantPriority)
				}
			case <-time.After(testTimeout):
				t.Fatal("low never reported its priority")
			}
		})
	}
}
