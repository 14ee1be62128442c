// Package sse implements an incremental parser over `data: <json>\n\n`
// framed Server-Sent Events, used by the Agent Loop to consume the runtime
// endpoint's streaming replies. Grounded on the teacher's connectSSE scanner
// loop (internal/mcp/transport_http.go), generalized into a restartable,
// typed Reader rather than a goroutine pushing onto a channel.
package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/relaykit/agentcore/internal/observability"
	"github.com/relaykit/agentcore/pkg/wire"
)

// ErrStreamClosed is returned by Next once the underlying reader is
// exhausted with no further frames pending.
var ErrStreamClosed = errors.New("sse: stream closed")

// Reader incrementally parses SSE frames from an io.Reader, buffering
// partial frames across reads exactly as the wire may split them across TCP
// chunks, and yielding typed wire.StreamEvent values.
type Reader struct {
	scanner *bufio.Scanner
	metrics *observability.Metrics
	data    []string // accumulated "data:" lines for the frame in progress
}

// NewReader wraps body (typically an HTTP response body) in an SSE frame
// reader. metrics may be nil, in which case parse counters are not recorded.
func NewReader(body io.Reader, metrics *observability.Metrics) *Reader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Reader{scanner: scanner, metrics: metrics}
}

// Next returns the next successfully parsed StreamEvent. It skips blank
// frames, malformed JSON (§4.I.6: parse errors are dropped, not fatal), and
// unknown event types (§4.H: forward compatibility) by looping internally
// until a decodable event is found or the stream ends.
func (r *Reader) Next() (wire.StreamEvent, error) {
	for {
		frame, err := r.nextFrame()
		if err != nil {
			return nil, err
		}
		if frame == "" {
			continue
		}
		if r.metrics != nil {
			r.metrics.SSEFramesTotal.Inc()
		}
		ev, err := wire.ParseEvent([]byte(frame))
		if err != nil {
			if r.metrics != nil {
				r.metrics.SSEParseErrorsTotal.Inc()
			}
			continue
		}
		if ev == nil {
			// Recognized-as-JSON but unknown discriminator: ignore silently.
			continue
		}
		return ev, nil
	}
}

// nextFrame reads lines until a blank line terminates one SSE frame,
// returning the concatenated `data:` payload (joined by newline per the SSE
// spec's multi-line data rule). Returns ("", ErrStreamClosed) at EOF with no
// frame in progress.
func (r *Reader) nextFrame() (string, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if len(r.data) == 0 {
				continue
			}
			frame := strings.Join(r.data, "\n")
			r.data = nil
			return frame, nil
		}
		if rest, ok := cutPrefix(line, "data:"); ok {
			r.data = append(r.data, strings.TrimPrefix(rest, " "))
			continue
		}
		// Other SSE fields (event:, id:, retry:, comments) are not part of
		// this protocol's framing; ignore them.
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	if len(r.data) > 0 {
		frame := strings.Join(r.data, "\n")
		r.data = nil
		return frame, nil
	}
	return "", ErrStreamClosed
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

// ReadAll drains the reader, invoking fn for every decoded event, stopping
// on a done event, a terminal error, or stream close. Convenience wrapper
// for callers that want every event without driving Next themselves.
func ReadAll(r *Reader, fn func(wire.StreamEvent) (continueReading bool)) error {
	for {
		ev, err := r.Next()
		if err != nil {
			if errors.Is(err, ErrStreamClosed) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !fn(ev) {
			return nil
		}
		if _, ok := ev.(wire.DoneEvent); ok {
			return nil
		}
	}
}
