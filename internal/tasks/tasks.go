// Package tasks is the registry of task bodies a boot manifest can name:
// the Go equivalent of the reference firmware's fixed, board-specific
// task table compiled into the image. Each body is an ordinary function
// over a Syscalls handle; config.Manifest.CreateTasks looks them up here
// by the name a manifest's "body" field gives.
package tasks

import (
	"github.com/cortexm-rtos/kernel/internal/config"
	"github.com/cortexm-rtos/kernel/internal/kernel"
)

// Registry returns every body this binary knows how to run, keyed by
// the name a boot manifest's tasks[].body field names. A task's identity
// is its body function's code pointer (kernel.identityOf), exactly like
// the reference firmware's function-pointer pid, so two manifest entries
// can never share one registry entry as their body — workerA and workerB
// are distinct functions for exactly that reason, even though their
// bodies are identical.
func Registry() config.Registry {
	return config.Registry{
		"producer":  producer,
		"consumer":  consumer,
		"heartbeat": heartbeat,
		"worker_a":  workerA,
		"worker_b":  workerB,
		"idle":      idle,
	}
}

// idle never blocks and never sleeps: the always-ready fallback a
// manifest must register at kernel.IdlePriority before Start will run.
func idle(s kernel.Syscalls) {
	for {
		s.Yield()
	}
}

// producer posts semaphore 0 once per second forever, the simplest
// possible periodic task.
func producer(s kernel.Syscalls) {
	for {
		s.Post(0)
		s.Sleep(1000)
	}
}

// consumer waits on semaphore 0 and reports each wakeup by yielding
// immediately after, exercising the FIFO wakeup order a mutex or
// semaphore wait queue guarantees.
func consumer(s kernel.Syscalls) {
	for {
		s.Wait(0)
		s.Yield()
	}
}

// heartbeat simply sleeps for 500ms at a time, forever, standing in for
// a low-priority monitoring task in example manifests.
func heartbeat(s kernel.Syscalls) {
	for {
		s.Sleep(500)
	}
}

// criticalSection locks mutex 0, does a bounded amount of simulated
// work, then unlocks: the minimal critical-section body used to exercise
// priority inheritance and FIFO mutex contention between workerA and
// workerB.
func criticalSection(s kernel.Syscalls) {
	s.Lock(0)
	for i := 0; i < 10; i++ {
		s.Yield()
	}
	s.Unlock(0)
	s.Sleep(100)
}

func workerA(s kernel.Syscalls) {
	for {
		criticalSection(s)
	}
}

func workerB(s kernel.Syscalls) {
	for {
		criticalSection(s)
	}
}
