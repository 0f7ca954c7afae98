// Package diag implements the kernel's diagnostic sink and the table
// renderers behind the ps and ipcs shell commands. Writes are
// privilege-ignorant: the MPU window a caller happens to hold never
// gates whether a diagnostic line reaches the operator.
package diag

import (
	"bytes"
	"log/slog"
	"sync"
)

// Buffer is a Sink that appends every write to an in-memory log and
// mirrors it through a structured logger, so a host operator gets both a
// scrollback the shell can page through and a normal slog record stream
// for whatever handler the process was configured with.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	log *slog.Logger
}

// NewBuffer returns a Buffer that mirrors writes to log. A nil log
// disables mirroring, which tests that only care about the scrollback
// use to keep output quiet.
func NewBuffer(log *slog.Logger) *Buffer {
	return &Buffer{log: log}
}

// WriteString implements kernel.Sink.
func (b *Buffer) WriteString(s string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.buf.WriteString(s)
	if b.log != nil {
		b.log.Info("kernel", "msg", s)
	}
	return n, err
}

// String returns everything written so far.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Reset discards the accumulated scrollback.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}
