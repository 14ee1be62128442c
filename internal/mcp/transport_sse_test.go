package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// TestSSETransport_EndpointRedirectAndRoundTrip exercises the transport's
// distinguishing behavior: the server's first SSE event names the POST
// endpoint (here, a path on the same test server, proving the relative
// "endpoint" data is resolved against the SSE URL), and a Call's response
// arrives asynchronously as a later SSE "message" event rather than in the
// POST's own body.
func TestSSETransport_EndpointRedirectAndRoundTrip(t *testing.T) {
	var mu sync.Mutex
	var pendingID any

	mux := http.NewServeMux()
	flusherReady := make(chan struct{})
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "event: endpoint\ndata: /rpc?sessionId=abc123\n\n")
		flusher.Flush()
		close(flusherReady)

		for {
			mu.Lock()
			id := pendingID
			mu.Unlock()
			if id != nil {
				result, _ := json.Marshal(map[string]string{"ok": "yes"})
				resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
				raw, _ := json.Marshal(resp)
				fmt.Fprintf(w, "data: %s\n\n", raw)
				flusher.Flush()
				return
			}
			select {
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	})
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sessionId") != "abc123" {
			t.Errorf("expected sessionId=abc123 on posted endpoint, got %q", r.URL.RawQuery)
		}
		var req JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode posted request: %v", err)
		}
		mu.Lock()
		pendingID = req.ID
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	transport := NewSSETransport(&ServerConfig{ID: "sse-srv", URL: srv.URL + "/sse", Timeout: 2 * time.Second})
	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer transport.Close()

	result, err := transport.Call(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(result, &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if decoded["ok"] != "yes" {
		t.Fatalf("unexpected result: %v", decoded)
	}
}
