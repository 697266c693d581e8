package httpsse

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapmcp/odata-bridge/internal/transport"
)

func TestIsLocalhostAddr(t *testing.T) {
	assert.True(t, IsLocalhostAddr("localhost:8080"))
	assert.True(t, IsLocalhostAddr("127.0.0.1:9000"))
	assert.True(t, IsLocalhostAddr("[::1]:8080"))
	assert.False(t, IsLocalhostAddr(":8080"), "empty host binds all interfaces")
	assert.False(t, IsLocalhostAddr("0.0.0.0:8080"))
	assert.False(t, IsLocalhostAddr("192.168.1.5:8080"))
}

func TestHandleHealth(t *testing.T) {
	tr := New("localhost:0")
	rec := httptest.NewRecorder()
	tr.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, 200, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleRPCRoundTrip(t *testing.T) {
	tr := New("localhost:0")
	tr.handle = func(ctx context.Context, msg *transport.Message) *transport.Message {
		assert.Equal(t, "tools/list", msg.Method)
		return transport.NewResponse(msg.ID, map[string]interface{}{"tools": []interface{}{}})
	}

	req := httptest.NewRequest("POST", "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":3,"method":"tools/list"}`))
	rec := httptest.NewRecorder()
	tr.handleRPC(rec, req)

	var resp transport.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "3", string(resp.ID))
	assert.Nil(t, resp.Error)
}

func TestHandleRPCParseError(t *testing.T) {
	tr := New("localhost:0")
	tr.handle = func(ctx context.Context, msg *transport.Message) *transport.Message {
		t.Fatal("handler must not run")
		return nil
	}

	req := httptest.NewRequest("POST", "/rpc", strings.NewReader("junk"))
	rec := httptest.NewRecorder()
	tr.handleRPC(rec, req)

	var resp transport.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, transport.CodeParseError, resp.Error.Code)
}

func TestHandleSSEAnnouncesConnection(t *testing.T) {
	tr := New("localhost:0")
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		tr.handleSSE(rec, req)
		close(done)
	}()

	for i := 0; i < 200; i++ {
		tr.mu.Lock()
		registered := len(tr.clients)
		tr.mu.Unlock()
		if registered == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: connection\n")
	assert.Contains(t, body, "client_id")
}

func TestHandleRPCRejectsGet(t *testing.T) {
	tr := New("localhost:0")
	rec := httptest.NewRecorder()
	tr.handleRPC(rec, httptest.NewRequest("GET", "/rpc", nil))
	assert.Equal(t, 405, rec.Code)
}
