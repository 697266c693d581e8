// Package stdio carries JSON-RPC frames as newline-delimited JSON on
// stdin/stdout. Requests are handled strictly in order; diagnostics
// must go to stderr because stdout belongs to the protocol.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sapmcp/odata-bridge/internal/trace"
	"github.com/sapmcp/odata-bridge/internal/transport"
)

// Transport reads NDJSON frames from an input stream and writes
// responses atomically to an output stream.
type Transport struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	tracer  *trace.Logger
}

// New builds a transport on stdin/stdout.
func New() *Transport {
	return NewWithStreams(os.Stdin, os.Stdout)
}

// NewWithStreams builds a transport on arbitrary streams, used by
// tests.
func NewWithStreams(in io.Reader, out io.Writer) *Transport {
	return &Transport{
		reader: bufio.NewReaderSize(in, 1024*1024),
		writer: out,
	}
}

// SetTracer attaches a wire trace logger.
func (t *Transport) SetTracer(tracer *trace.Logger) {
	t.tracer = tracer
}

// Serve reads frames until EOF or context cancellation. Each request
// is handled before the next is read, so tool calls never interleave.
func (t *Transport) Serve(ctx context.Context, handle transport.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := t.reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(line) == 0 {
					return nil
				}
				// Final frame without trailing newline.
			} else {
				return fmt.Errorf("reading frame: %w", err)
			}
		}

		frame := trimmed(line)
		if len(frame) == 0 {
			if err != nil {
				return nil
			}
			continue
		}
		t.tracer.Log("recv", frame)

		var msg transport.Message
		if parseErr := json.Unmarshal(frame, &msg); parseErr != nil {
			t.write(transport.NewError(nil, transport.CodeParseError, "parse error: "+parseErr.Error()))
			continue
		}

		if resp := handle(ctx, &msg); resp != nil {
			if writeErr := t.write(resp); writeErr != nil {
				return writeErr
			}
		}

		if err != nil {
			return nil // EOF after the final frame
		}
	}
}

func (t *Transport) write(msg *transport.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	t.tracer.Log("send", raw)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}

// Close is a no-op; stdin is owned by the process.
func (t *Transport) Close() error { return nil }

func trimmed(line []byte) []byte {
	start, end := 0, len(line)
	for start < end && (line[start] == ' ' || line[start] == '\t' || line[start] == '\r' || line[start] == '\n') {
		start++
	}
	for end > start && (line[end-1] == ' ' || line[end-1] == '\t' || line[end-1] == '\r' || line[end-1] == '\n') {
		end--
	}
	return line[start:end]
}
