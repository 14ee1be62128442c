package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/relaykit/agentcore/internal/observability"
	"github.com/relaykit/agentcore/internal/sse"
	"github.com/relaykit/agentcore/pkg/wire"
)

// EventStream yields the typed events of one logical assistant response,
// regardless of whether the underlying reply was SSE or a single JSON
// document (§4.I.1 keeps downstream logic uniform across both). Next
// returns io.EOF once exhausted.
type EventStream interface {
	Next() (wire.StreamEvent, error)
	Close() error
}

// Transport submits one request body to the runtime endpoint and returns
// the resulting event stream. Grounded on internal/mcp/transport_http.go's
// Content-Type branching idiom, generalized to the runtime HTTP endpoint of
// spec §6.1.
type Transport interface {
	Submit(ctx context.Context, req wire.RunRequest) (EventStream, error)
}

// sliceStream adapts a pre-materialized []wire.StreamEvent (the
// non-streaming JSON synthesis path) to the EventStream interface.
type sliceStream struct {
	events []wire.StreamEvent
	pos    int
}

func (s *sliceStream) Next() (wire.StreamEvent, error) {
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *sliceStream) Close() error { return nil }

// sseStream adapts an sse.Reader, closing the HTTP body when done.
type sseStream struct {
	reader *sse.Reader
	body   io.Closer
}

func (s *sseStream) Next() (wire.StreamEvent, error) {
	ev, err := s.reader.Next()
	if err != nil {
		if err == sse.ErrStreamClosed {
			return nil, io.EOF
		}
		return nil, err
	}
	return ev, nil
}

func (s *sseStream) Close() error { return s.body.Close() }

// HTTPTransport POSTs RunRequest bodies to a single runtime endpoint URL,
// authenticating with either a bearer token or an X-API-Key header.
type HTTPTransport struct {
	URL        string
	APIKey     string
	UseXAPIKey bool // false sends "Authorization: Bearer <key>"; true sends "X-API-Key: <key>"
	Client     *http.Client
	Metrics    *observability.Metrics
}

// NewHTTPTransport returns an HTTPTransport using http.DefaultClient.
func NewHTTPTransport(url, apiKey string) *HTTPTransport {
	return &HTTPTransport{URL: url, APIKey: apiKey, Client: http.DefaultClient}
}

// Submit POSTs req and branches on the response Content-Type exactly as
// spec §4.I.1 describes: text/event-stream is consumed incrementally via
// (B); application/json is decoded as one NonStreamingReply and
// synthesized into the equivalent event sequence.
func (t *HTTPTransport) Submit(ctx context.Context, req wire.RunRequest) (EventStream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, newErr(KindProtocol, "submit", 0, fmt.Errorf("marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return nil, newErr(KindTransport, "submit", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.APIKey != "" {
		if t.UseXAPIKey {
			httpReq.Header.Set("X-API-Key", t.APIKey)
		} else {
			httpReq.Header.Set("Authorization", "Bearer "+t.APIKey)
		}
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, newErr(KindTransport, "submit", 0, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newErr(KindTransport, "submit", 0, fmt.Errorf("http %d: %s", resp.StatusCode, b))
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch contentType {
	case "text/event-stream":
		reader := sse.NewReader(resp.Body, t.Metrics)
		return &sseStream{reader: reader, body: resp.Body}, nil
	case "application/json", "":
		defer resp.Body.Close()
		var reply wire.NonStreamingReply
		if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
			return nil, newErr(KindProtocol, "submit", 0, fmt.Errorf("decode json reply: %w", err))
		}
		return &sliceStream{events: reply.SynthesizeEvents()}, nil
	default:
		defer resp.Body.Close()
		return nil, newErr(KindProtocol, "submit", 0, fmt.Errorf("unsupported content-type %q", contentType))
	}
}
