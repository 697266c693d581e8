// Package httpsse serves the MCP protocol over HTTP: synchronous
// JSON-RPC on /rpc, a server-sent-events stream on /sse and a health
// probe on /health.
package httpsse

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sapmcp/odata-bridge/internal/trace"
	"github.com/sapmcp/odata-bridge/internal/transport"
)

const keepaliveInterval = 15 * time.Second

// Transport is the HTTP/SSE server.
type Transport struct {
	addr   string
	server *http.Server
	tracer *trace.Logger

	mu      sync.Mutex
	clients map[string]chan []byte
	handle  transport.Handler
}

// New builds a transport listening on addr.
func New(addr string) *Transport {
	return &Transport{
		addr:    addr,
		clients: make(map[string]chan []byte),
	}
}

// SetTracer attaches a wire trace logger.
func (t *Transport) SetTracer(tracer *trace.Logger) {
	t.tracer = tracer
}

// IsLocalhostAddr reports whether a listen address binds only to
// loopback. ":8080" binds every interface and does not qualify.
func IsLocalhostAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Serve runs the HTTP server until the context is canceled.
func (t *Transport) Serve(ctx context.Context, handle transport.Handler) error {
	t.handle = handle

	mux := http.NewServeMux()
	mux.HandleFunc("/health", t.handleHealth)
	mux.HandleFunc("/sse", t.handleSSE)
	mux.HandleFunc("/rpc", t.handleRPC)

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return t.Close()
	}
}

// Close drains the server with a grace period.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.server.Shutdown(shutdownCtx)
}

func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	t.mu.Lock()
	clients := len(t.clients)
	t.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": clients,
	})
}

// handleSSE registers a client, announces its id and keeps the stream
// alive with comment pings until the client goes away.
func (t *Transport) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientID := uuid.NewString()
	events := make(chan []byte, 16)
	t.mu.Lock()
	t.clients[clientID] = events
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.clients, clientID)
		t.mu.Unlock()
	}()

	fmt.Fprintf(w, "event: connection\ndata: {\"client_id\":%q}\n\n", clientID)
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload := <-events:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (t *Transport) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg transport.Message
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&msg); err != nil {
		writeJSON(w, transport.NewError(nil, transport.CodeParseError, "parse error: "+err.Error()))
		return
	}
	if raw, err := json.Marshal(msg); err == nil {
		t.tracer.Log("recv", raw)
	}

	// The request context aborts in-flight upstream calls when the
	// client disconnects.
	resp := t.handle(r.Context(), &msg)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	t.broadcast(resp)
	writeJSON(w, resp)
}

// broadcast mirrors responses onto every SSE stream.
func (t *Transport) broadcast(msg *transport.Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, events := range t.clients {
		select {
		case events <- raw:
		default: // slow client, drop rather than block the RPC path
		}
	}
}

func writeJSON(w http.ResponseWriter, msg *transport.Message) {
	w.Header().Set("Content-Type", "application/json")
	raw, err := json.Marshal(msg)
	if err != nil {
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}
	w.Write(raw)
}
