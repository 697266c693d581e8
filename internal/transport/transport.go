// Package transport defines the JSON-RPC 2.0 framing shared by the
// stdio and HTTP transports.
package transport

import (
	"context"
	"encoding/json"
)

// JSON-RPC 2.0 error codes used across the bridge.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Message is a JSON-RPC 2.0 request, response or notification. ID is
// kept raw so number and string ids echo back byte-identical.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsNotification reports whether the message carries no id and thus
// expects no response.
func (m *Message) IsNotification() bool {
	return len(m.ID) == 0 || string(m.ID) == "null"
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Handler processes one inbound message and returns the response, or
// nil for notifications.
type Handler func(ctx context.Context, msg *Message) *Message

// Transport delivers inbound frames to a handler and carries the
// responses back. Serve blocks until the context is canceled or the
// peer disconnects.
type Transport interface {
	Serve(ctx context.Context, handle Handler) error
	Close() error
}

// NewResponse builds a success response carrying the marshaled result.
func NewResponse(id json.RawMessage, result interface{}) *Message {
	raw, err := json.Marshal(result)
	if err != nil {
		return NewError(id, CodeInternalError, "failed to encode result: "+err.Error())
	}
	return &Message{JSONRPC: "2.0", ID: normalizeID(id), Result: raw}
}

// NewError builds an error response.
func NewError(id json.RawMessage, code int, message string) *Message {
	return &Message{
		JSONRPC: "2.0",
		ID:      normalizeID(id),
		Error:   &Error{Code: code, Message: message},
	}
}

// normalizeID substitutes 0 for missing ids so error responses to
// unparseable requests still validate.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 || string(id) == "null" {
		return json.RawMessage("0")
	}
	return id
}
