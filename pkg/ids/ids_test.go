package ids

import (
	"testing"
	"time"
)

func TestNewMessageID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewMessageID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
		if len(id) <= len(PrefixMessage) {
			t.Fatalf("id missing suffix: %s", id)
		}
	}
}

func TestNewIDPrefixes(t *testing.T) {
	cases := []struct {
		name string
		fn   func() string
		want string
	}{
		{"message", NewMessageID, PrefixMessage},
		{"thread", NewThreadID, PrefixThread},
		{"toolcall", NewToolCallID, PrefixToolCall},
		{"run", NewRunID, PrefixRun},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := tc.fn()
			if len(id) < len(tc.want) || id[:len(tc.want)] != tc.want {
				t.Fatalf("id %q does not start with prefix %q", id, tc.want)
			}
		})
	}
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	if !c.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, c.Now())
	}
	c.Advance(5 * time.Second)
	want := start.Add(5 * time.Second)
	if !c.Now().Equal(want) {
		t.Fatalf("expected %v, got %v", want, c.Now())
	}
}

func TestSystemClockMonotonic(t *testing.T) {
	var c SystemClock
	a := c.Now()
	b := c.Now()
	if b.Before(a) {
		t.Fatalf("system clock went backwards: %v then %v", a, b)
	}
}
