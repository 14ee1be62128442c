package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SSETransport implements the MCP "HTTP+SSE" transport named alongside
// stdio and HTTP-streamable in spec §4.K: one persistent GET SSE
// connection for server push, and a single POST endpoint for requests.
// Unlike HTTPTransport's streamable-HTTP transport — where a POST's own
// response body carries the JSON-RPC reply — this transport gets the
// server's authoritative POST endpoint from the SSE stream's first
// `endpoint` event, which also supplies the session id baked into that
// URL's query string; every POST after that gets a bare 202 Accepted and
// the real JSON-RPC response arrives later as a `message` event on the SSE
// stream, so Call parks a channel keyed by request ID for the SSE loop to
// fulfill.
type SSETransport struct {
	config  *ServerConfig
	logger  *slog.Logger
	client  *http.Client
	timeout time.Duration

	events    chan *JSONRPCNotification
	requests  chan *JSONRPCRequest
	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup

	endpointOnce sync.Once
	endpointMu   sync.RWMutex
	endpointURL  string
	endpointSet  chan struct{}

	pendingMu sync.Mutex
	pending   map[string]chan *JSONRPCResponse
}

// NewSSETransport builds an SSETransport for cfg. cfg.URL is the initial
// SSE endpoint; the server redirects requests elsewhere via the `endpoint`
// event.
func NewSSETransport(cfg *ServerConfig) *SSETransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SSETransport{
		config:      cfg,
		logger:      slog.Default().With("mcp_server", cfg.ID, "transport", "sse"),
		client:      &http.Client{Timeout: timeout},
		timeout:     timeout,
		events:      make(chan *JSONRPCNotification, 100),
		requests:    make(chan *JSONRPCRequest, 100),
		stopChan:    make(chan struct{}),
		endpointSet: make(chan struct{}),
		pending:     make(map[string]chan *JSONRPCResponse),
	}
}

// Connect opens the SSE stream and blocks until the server's `endpoint`
// event names the POST URL, or ctx/timeout expires first.
func (t *SSETransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("mcp: url is required for sse transport")
	}
	t.connected.Store(true)
	t.wg.Add(1)
	go t.sseLoop(ctx)

	select {
	case <-t.endpointSet:
		t.logger.Debug("sse endpoint ready", "url", t.requestURL())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.timeout):
		return fmt.Errorf("mcp: timed out waiting for sse endpoint event from %s", t.config.URL)
	}
}

// Close stops the SSE listener and fails any call still parked waiting on
// a response.
func (t *SSETransport) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(t.stopChan)
	t.wg.Wait()

	t.pendingMu.Lock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()
	return nil
}

func (t *SSETransport) requestURL() string {
	t.endpointMu.RLock()
	defer t.endpointMu.RUnlock()
	return t.endpointURL
}

// Call posts the request to the announced endpoint and waits for the
// matching JSON-RPC response to arrive over the SSE stream.
func (t *SSETransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("mcp: not connected")
	}
	id := uuid.New().String()
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("mcp: marshal params: %w", err)
		}
		req.Params = raw
	}

	wait := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = wait
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.postAccepted(ctx, req); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-wait:
		if !ok {
			return nil, fmt.Errorf("mcp: sse transport closed while awaiting response to %s", method)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("mcp: server error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notify posts a fire-and-forget JSON-RPC notification.
func (t *SSETransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("mcp: not connected")
	}
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("mcp: marshal params: %w", err)
		}
		notif.Params = raw
	}
	return t.postAccepted(ctx, notif)
}

// Respond posts a reply to a server-initiated request.
func (t *SSETransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	if !t.connected.Load() {
		return fmt.Errorf("mcp: not connected")
	}
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil && result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("mcp: marshal result: %w", err)
		}
		resp.Result = raw
	}
	return t.postAccepted(ctx, resp)
}

// postAccepted POSTs payload to the endpoint the server announced and
// requires a 2xx (normally 202 Accepted — the payload's actual effect, if
// any, arrives later over the SSE stream).
func (t *SSETransport) postAccepted(ctx context.Context, payload any) error {
	target := t.requestURL()
	if target == "" {
		return fmt.Errorf("mcp: sse endpoint not yet announced by server")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mcp: marshal payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mcp: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mcp: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mcp: http %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (t *SSETransport) Events() <-chan *JSONRPCNotification { return t.events }
func (t *SSETransport) Requests() <-chan *JSONRPCRequest     { return t.requests }
func (t *SSETransport) Connected() bool                      { return t.connected.Load() }

// sseLoop holds the single long-lived SSE connection open for the
// transport's lifetime: the server never gets a second chance to announce
// an endpoint, so unlike HTTPTransport's push-only sseLoop this one isn't
// reconnected on failure — a drop means the session is gone.
func (t *SSETransport) sseLoop(ctx context.Context) {
	defer t.wg.Done()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.config.URL, nil)
	if err != nil {
		t.logger.Error("failed to build sse request", "error", err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Error("sse connect failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.logger.Error("sse returned non-200", "status", resp.StatusCode)
		return
	}
	t.logger.Debug("sse connected", "url", t.config.URL)

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	flush := func() {
		if data == "" {
			return
		}
		t.handleSSEEvent(event, data)
		event, data = "", ""
	}
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		default:
		}
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		t.logger.Debug("sse scanner error", "error", err)
	}
}

// handleSSEEvent dispatches one parsed SSE frame: an `endpoint` event
// (re)points subsequent POSTs, optionally carrying a session id in its
// query string; anything else is a JSON-RPC envelope routed by shape
// (response if its id matches a pending Call, else request or
// notification).
func (t *SSETransport) handleSSEEvent(event, data string) {
	if event == "endpoint" {
		t.setEndpoint(data)
		return
	}

	var probe struct {
		ID     any             `json:"id"`
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  *JSONRPCError   `json:"error"`
	}
	if err := json.Unmarshal([]byte(data), &probe); err != nil {
		return
	}

	if probe.Method == "" && probe.ID != nil {
		t.pendingMu.Lock()
		wait, ok := t.pending[fmt.Sprint(probe.ID)]
		t.pendingMu.Unlock()
		if ok {
			wait <- &JSONRPCResponse{ID: probe.ID, Result: probe.Result, Error: probe.Error}
			return
		}
	}

	if probe.Method == "" {
		return
	}
	var envelope JSONRPCRequest
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return
	}
	if probe.ID != nil {
		select {
		case t.requests <- &envelope:
		default:
			t.logger.Warn("request channel full, dropping")
		}
		return
	}
	notif := &JSONRPCNotification{JSONRPC: envelope.JSONRPC, Method: envelope.Method, Params: envelope.Params}
	select {
	case t.events <- notif:
	default:
		t.logger.Warn("notification channel full, dropping")
	}
}

// setEndpoint resolves the `endpoint` event's data (an absolute URL, or a
// path/query relative to the SSE URL) against the transport's base URL and
// unblocks Connect.
func (t *SSETransport) setEndpoint(data string) {
	resolved := data
	if base, err := url.Parse(t.config.URL); err == nil {
		if ref, err := url.Parse(data); err == nil {
			resolved = base.ResolveReference(ref).String()
		}
	}
	t.endpointMu.Lock()
	t.endpointURL = resolved
	t.endpointMu.Unlock()
	t.endpointOnce.Do(func() { close(t.endpointSet) })
}
