// Package ids provides unique identifier generation and an injectable clock
// for the agent runtime. Production code uses uuid.NewString() and the
// system clock; tests substitute a FakeClock for deterministic replay.
package ids

import (
	"time"

	"github.com/google/uuid"
)

// New returns a fresh UUIDv4 string, optionally prefixed (e.g. "msg_", "thr_").
func New(prefix string) string {
	return prefix + uuid.NewString()
}

// Message, Thread, ToolCall, and Run ID prefixes used throughout the runtime.
const (
	PrefixMessage  = "msg_"
	PrefixThread   = "thr_"
	PrefixToolCall = "call_"
	PrefixRun      = "run_"
)

// NewMessageID allocates a unique message ID.
func NewMessageID() string { return New(PrefixMessage) }

// NewThreadID allocates a unique thread ID.
func NewThreadID() string { return New(PrefixThread) }

// NewToolCallID allocates a unique tool-call ID.
func NewToolCallID() string { return New(PrefixToolCall) }

// NewRunID allocates a unique per-turn run ID.
func NewRunID() string { return New(PrefixRun) }

// Clock abstracts time.Now so loop and store logic can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// FakeClock is a test Clock that advances only when told to.
type FakeClock struct {
	t time.Time
}

// NewFakeClock returns a FakeClock starting at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{t: t}
}

// Now returns the clock's current fixed time.
func (f *FakeClock) Now() time.Time { return f.t }

// Advance moves the clock forward by d.
func (f *FakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

// Set pins the clock to t.
func (f *FakeClock) Set(t time.Time) { f.t = t }
