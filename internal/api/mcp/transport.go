package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// maxLineSize bounds a single JSON-RPC frame on stdin. Large memorize
// payloads with inline text can get big.
const maxLineSize = 4 * 1024 * 1024

// StdioTransport speaks line-delimited JSON-RPC over stdin/stdout.
// Stdout carries only protocol frames; all logging goes to stderr.
type StdioTransport struct {
	server *Server
	in     io.Reader
	out    io.Writer
	log    *zap.Logger
}

// NewStdioTransport wires the server to os.Stdin and os.Stdout.
func NewStdioTransport(server *Server, log *zap.Logger) *StdioTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &StdioTransport{
		server: server,
		in:     os.Stdin,
		out:    os.Stdout,
		log:    log,
	}
}

// Serve reads requests until stdin closes or the context is canceled.
// Malformed frames get an error response; they never kill the loop.
func (t *StdioTransport) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			t.log.Warn("unparseable request", zap.Error(err))
			t.write(parseErrorResponse(line))
			continue
		}

		resp := t.handle(ctx, &req)
		if resp != nil {
			t.write(resp)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdio transport: %w", err)
	}
	return nil
}

// handle isolates a panicking handler to a single internal-error
// response instead of taking down the transport.
func (t *StdioTransport) handle(ctx context.Context, req *JSONRPCRequest) (resp *JSONRPCResponse) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("handler panic", zap.String("method", req.Method), zap.Any("panic", r))
			resp = errorResponse(req.ID, ErrCodeInternalError, "internal error")
		}
	}()
	return t.server.HandleRequest(ctx, req)
}

func (t *StdioTransport) write(resp *JSONRPCResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		t.log.Error("failed to encode response", zap.Error(err))
		return
	}
	if _, err := fmt.Fprintf(t.out, "%s\n", data); err != nil {
		t.log.Error("failed to write response", zap.Error(err))
	}
}

// parseErrorResponse tries to salvage the request ID from a frame that
// failed full decoding, so the client can correlate the error.
func parseErrorResponse(line []byte) *JSONRPCResponse {
	var partial struct {
		ID interface{} `json:"id"`
	}
	_ = json.Unmarshal(line, &partial)
	return errorResponse(partial.ID, ErrCodeParseError, "parse error")
}
