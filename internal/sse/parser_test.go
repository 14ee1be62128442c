package sse

import (
	"io"
	"strings"
	"testing"

	"github.com/relaykit/agentcore/pkg/wire"
)

func frame(json string) string {
	return "data: " + json + "\n\n"
}

func TestReader_ParsesSequentialFrames(t *testing.T) {
	body := frame(`{"type":"message:start","id":"A"}`) +
		frame(`{"type":"message:delta","content":" hi"}`) +
		frame(`{"type":"message:delta","content":" there"}`) +
		frame(`{"type":"done"}`)

	r := NewReader(strings.NewReader(body), nil)
	var got []wire.StreamEvent
	for {
		ev, err := r.Next()
		if err != nil {
			break
		}
		got = append(got, ev)
		if _, ok := ev.(wire.DoneEvent); ok {
			break
		}
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(got), got)
	}
	if got[0].EventType() != wire.EventMessageStart {
		t.Fatalf("expected message:start first, got %s", got[0].EventType())
	}
	if got[3].EventType() != wire.EventDone {
		t.Fatalf("expected done last, got %s", got[3].EventType())
	}
}

// byteAtATimeReader yields one byte per Read call, simulating a frame split
// across many small TCP reads.
type byteAtATimeReader struct {
	data []byte
	pos  int
}

func (b *byteAtATimeReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	p[0] = b.data[b.pos]
	b.pos++
	return 1, nil
}

func TestReader_HandlesFrameSplitAcrossReads(t *testing.T) {
	body := frame(`{"type":"message:delta","content":"hello world"}`) + frame(`{"type":"done"}`)
	r := NewReader(&byteAtATimeReader{data: []byte(body)}, nil)

	ev, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	delta, ok := ev.(wire.MessageDeltaEvent)
	if !ok {
		t.Fatalf("expected MessageDeltaEvent, got %T", ev)
	}
	if delta.Content != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", delta.Content)
	}
}

func TestReader_SkipsMalformedFrameAndContinues(t *testing.T) {
	body := "data: {not json\n\n" + frame(`{"type":"done"}`)
	r := NewReader(strings.NewReader(body), nil)
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.EventType() != wire.EventDone {
		t.Fatalf("expected malformed frame to be skipped, landing on done, got %s", ev.EventType())
	}
}

func TestReader_SkipsUnknownEventType(t *testing.T) {
	body := frame(`{"type":"future:thing"}`) + frame(`{"type":"done"}`)
	r := NewReader(strings.NewReader(body), nil)
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.EventType() != wire.EventDone {
		t.Fatalf("expected unknown event to be skipped, got %s", ev.EventType())
	}
}

func TestReader_StreamClosedAtEOF(t *testing.T) {
	r := NewReader(strings.NewReader(frame(`{"type":"done"}`)), nil)
	if _, err := r.Next(); err != nil {
		t.Fatalf("unexpected error reading done: %v", err)
	}
	if _, err := r.Next(); err != ErrStreamClosed {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}
