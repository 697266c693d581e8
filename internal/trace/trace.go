// Package trace provides the wire-level MCP trace log and the
// credential masking helpers used everywhere a value might be logged.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger appends masked JSON-RPC frames to a timestamped file in the
// platform temp directory. A nil *Logger is valid and records nothing,
// so callers never need to guard their Log calls.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewLogger opens the trace file. The path is printed to stderr so
// users can find the log after the session.
func NewLogger() (*Logger, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("mcp_trace_%s.log", time.Now().Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "[TRACE] MCP trace log: %s\n", path)
	return &Logger{file: f, path: path}, nil
}

// Path returns the trace file location.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

type traceEntry struct {
	Timestamp string          `json:"timestamp"`
	Direction string          `json:"direction"`
	Frame     json.RawMessage `json:"frame"`
}

// Log records one frame. Direction is "recv" or "send".
func (l *Logger) Log(direction string, frame []byte) {
	if l == nil {
		return
	}
	entry := traceEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Direction: direction,
		Frame:     json.RawMessage(maskFrame(frame)),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.file.Write(line)
	l.file.Write([]byte("\n"))
}

// Close flushes and closes the trace file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// maskFrame redacts sensitive values inside a JSON frame. Frames that
// do not parse are stored as a quoted string.
func maskFrame(frame []byte) []byte {
	var parsed interface{}
	if err := json.Unmarshal(frame, &parsed); err != nil {
		quoted, _ := json.Marshal(string(frame))
		return quoted
	}
	masked, err := json.Marshal(maskValue(parsed, ""))
	if err != nil {
		return []byte(`"unserializable frame"`)
	}
	return masked
}

func maskValue(v interface{}, key string) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = maskValue(item, k)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = maskValue(item, key)
		}
		return out
	case string:
		if IsSensitiveKey(key) {
			return MaskValue(val)
		}
		return val
	default:
		return v
	}
}
