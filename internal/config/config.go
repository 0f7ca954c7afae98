// Package config loads the boot manifest that tells the kernel which
// tasks to create before Start: names, priorities, and stack sizes, kept
// out of Go source so a deployment can retune scheduling without a
// rebuild, the way the reference firmware's board-specific task table
// is itself just data bolted onto a fixed kernel.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cortexm-rtos/kernel/internal/kernel"
)

// TaskSpec is one row of the boot manifest: a task to create, by name,
// at boot, and the registry key whose body function to run it with.
type TaskSpec struct {
	Name       string `yaml:"name"`
	Body       string `yaml:"body"`
	Priority   int    `yaml:"priority"`
	StackBytes uint32 `yaml:"stack_bytes"`
}

// Manifest is the whole boot configuration: the task set plus the
// scheduler policy flags the reference firmware also fixes at boot. The
// policy flags are pointers so an omitted field falls back to the
// reference defaults (kernel.DefaultPolicy) rather than to Go's zero
// value for bool, which would silently disable priority scheduling and
// preemption.
type Manifest struct {
	Tasks               []TaskSpec `yaml:"tasks"`
	PriorityScheduler   *bool      `yaml:"priority_scheduler"`
	PriorityInheritance *bool      `yaml:"priority_inheritance"`
	Preemption          *bool      `yaml:"preemption"`
}

// Policy resolves the manifest's scheduler policy flags against the
// reference defaults for any field left unset.
func (m Manifest) Policy() (priorityScheduler, priorityInheritance, preemption bool) {
	priorityScheduler, priorityInheritance, preemption = kernel.DefaultPolicy()
	if m.PriorityScheduler != nil {
		priorityScheduler = *m.PriorityScheduler
	}
	if m.PriorityInheritance != nil {
		priorityInheritance = *m.PriorityInheritance
	}
	if m.Preemption != nil {
		preemption = *m.Preemption
	}
	return
}

// Registry maps a manifest's body names to the Go functions that
// implement them. main registers every task body a deployment can name
// before loading a manifest; an unknown name is a load-time error, not a
// silently skipped task.
type Registry map[string]func(kernel.Syscalls)

// Parse decodes a YAML boot manifest. It requires at least one task
// tagged to run at kernel.IdlePriority, matching the contract
// kernel.Start itself enforces: a manifest that never fills the
// lowest-priority slot is a configuration error to catch at load time,
// not something CreateTasks should discover the hard way later.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("config: %w", err)
	}
	if err := m.validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (m Manifest) validate() error {
	for _, t := range m.Tasks {
		if t.Priority == kernel.IdlePriority {
			return nil
		}
	}
	return fmt.Errorf("config: manifest must register at least one task at priority %d (IdlePriority)", kernel.IdlePriority)
}

// CreateTasks registers every task the manifest names against k, looking
// up each one's body in reg. It stops at the first error, per
// CreateTask's own one-shot, boot-time-only contract.
func (m Manifest) CreateTasks(k *kernel.Kernel, reg Registry) error {
	for _, spec := range m.Tasks {
		body, ok := reg[spec.Body]
		if !ok {
			return fmt.Errorf("config: task %q: no registered body %q", spec.Name, spec.Body)
		}
		if _, err := k.CreateTask(spec.Name, spec.Priority, spec.StackBytes, body); err != nil {
			return fmt.Errorf("config: task %q: %w", spec.Name, err)
		}
	}
	return nil
}
