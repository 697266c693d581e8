// Package mcp implements the protocol dispatcher: tool registry,
// request routing and argument validation for the Model Context
// Protocol over JSON-RPC 2.0.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sapmcp/odata-bridge/internal/odata"
	"github.com/sapmcp/odata-bridge/internal/transport"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Tool is one callable tool as advertised through tools/list.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolHandler executes a tool call with already-validated arguments.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Server routes JSON-RPC messages to registered tools. The tool table
// is populated during startup and read-only afterwards.
type Server struct {
	name      string
	version   string
	sortTools bool

	mu       sync.RWMutex
	tools    map[string]Tool
	handlers map[string]ToolHandler
	order    []string
}

// NewServer builds an empty dispatcher. With sortTools the tool list
// is presented alphabetically; otherwise registration order is kept.
func NewServer(name, version string, sortTools bool) *Server {
	return &Server{
		name:      name,
		version:   version,
		sortTools: sortTools,
		tools:     make(map[string]Tool),
		handlers:  make(map[string]ToolHandler),
	}
}

// RegisterTool adds a tool to the table.
func (s *Server) RegisterTool(tool Tool, handler ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[tool.Name]; !exists {
		s.order = append(s.order, tool.Name)
	}
	s.tools[tool.Name] = tool
	s.handlers[tool.Name] = handler
}

// ToolNames returns the advertised tool names in list order.
func (s *Server) ToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	if s.sortTools {
		sort.Strings(names)
	}
	return names
}

// Tools returns the advertised tools in list order.
func (s *Server) Tools() []Tool {
	names := s.ToolNames()
	s.mu.RLock()
	defer s.mu.RUnlock()
	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, s.tools[name])
	}
	return tools
}

// Handle implements transport.Handler.
func (s *Server) Handle(ctx context.Context, msg *transport.Message) *transport.Message {
	switch msg.Method {
	case "initialize":
		return transport.NewResponse(msg.ID, map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    s.name,
				"version": s.version,
			},
		})

	case "notifications/initialized", "initialized":
		return nil

	case "ping":
		return transport.NewResponse(msg.ID, map[string]interface{}{})

	case "tools/list":
		return transport.NewResponse(msg.ID, map[string]interface{}{"tools": s.Tools()})

	case "tools/call":
		return s.handleToolCall(ctx, msg)

	case "resources/list":
		return transport.NewResponse(msg.ID, map[string]interface{}{"resources": []interface{}{}})

	case "prompts/list":
		return transport.NewResponse(msg.ID, map[string]interface{}{"prompts": []interface{}{}})

	default:
		if msg.IsNotification() {
			return nil
		}
		return transport.NewError(msg.ID, transport.CodeMethodNotFound,
			fmt.Sprintf("method not found: %s", msg.Method))
	}
}

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func (s *Server) handleToolCall(ctx context.Context, msg *transport.Message) *transport.Message {
	var params toolCallParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return transport.NewError(msg.ID, transport.CodeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	s.mu.RLock()
	tool, ok := s.tools[params.Name]
	handler := s.handlers[params.Name]
	s.mu.RUnlock()
	if !ok {
		return transport.NewError(msg.ID, transport.CodeInvalidParams,
			fmt.Sprintf("unknown tool: %s", params.Name))
	}

	args := params.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := ValidateArgs(tool.InputSchema, args); err != nil {
		return transport.NewError(msg.ID, transport.CodeInvalidParams, err.Error())
	}

	result, err := handler(ctx, args)
	if err != nil {
		return transport.NewError(msg.ID, errorCode(err), err.Error())
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return transport.NewError(msg.ID, transport.CodeInternalError, "encoding tool result: "+err.Error())
	}
	return transport.NewResponse(msg.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(text)},
		},
	})
}

// errorCode maps the typed client errors onto JSON-RPC codes. Caller
// mistakes surface as invalid params; everything upstream or internal
// is an internal error.
func errorCode(err error) int {
	var argErr *odata.ArgumentError
	var polErr *odata.PolicyError
	if errors.As(err, &argErr) || errors.As(err, &polErr) {
		return transport.CodeInvalidParams
	}
	return transport.CodeInternalError
}
