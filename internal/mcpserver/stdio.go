package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"nlsql/internal/logging"
	"nlsql/internal/orchestrator"
)

// Server dispatches newline-delimited JSON-RPC 2.0 requests arriving on
// an io.Reader to the registered nlsql tool and resources, writing
// responses to an io.Writer (spec.md §6 EXPANSION).
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Resources    *ResourceReader
	DatabaseID   string
	initialized  bool
}

// New wires a Server around an already-constructed orchestrator.
func New(orc *orchestrator.Orchestrator, resources *ResourceReader, databaseID string) *Server {
	return &Server{Orchestrator: orc, Resources: resources, DatabaseID: databaseID}
}

// ServeStdio reads one JSON-RPC message per line from r, dispatches it,
// and writes one JSON-RPC response per line to w, until r hits EOF or
// ctx is cancelled. Grounded on the teacher's internal/mangle/lsp.go
// ServeStdio read loop, adapted from Content-Length framing to
// newline-delimited framing per spec.md §6.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	log := logging.For(logging.CategoryMCP)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

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

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(w, errorResponse(nil, codeParseError, "invalid JSON: "+err.Error()))
			continue
		}

		resp := s.handle(ctx, req)
		if resp == nil {
			continue // notification, no reply
		}
		if err := writeResponse(w, resp); err != nil {
			log.Errorw("failed to write response", "error", err)
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}

func writeResponse(w io.Writer, resp *response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// handle dispatches one request to the matching method, mirroring the
// teacher's handleRequest method-string switch.
func (s *Server) handle(ctx context.Context, req request) *response {
	switch req.Method {
	case "initialize":
		s.initialized = true
		return resultResponse(req.ID, map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools":     map[string]interface{}{},
				"resources": map[string]interface{}{},
			},
			"serverInfo": map[string]string{"name": "nlsqld", "version": "1.0.0"},
		})
	case "notifications/initialized":
		return nil
	case "shutdown":
		return resultResponse(req.ID, map[string]interface{}{})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/read":
		return s.handleResourcesRead(ctx, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req request) *response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "bad tools/call params: "+err.Error())
	}
	if params.Name != "query_database" {
		return errorResponse(req.ID, codeInvalidParams, "unknown tool: "+params.Name)
	}

	var args queryDatabaseArgs
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "bad query_database arguments: "+err.Error())
		}
	}
	if args.MaxRows <= 0 {
		args.MaxRows = 100
	}
	if args.MaxRows > 1000 {
		args.MaxRows = 1000
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if args.TimeoutMs > 0 {
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(args.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	queryID := uuid.NewString()
	result := s.Orchestrator.Run(callCtx, orchestrator.Request{
		QueryID:    queryID,
		DatabaseID: s.DatabaseID,
		Question:   args.Question,
	})

	payload := toQueryDatabaseResult(result)
	return resultResponse(req.ID, payload)
}

func toQueryDatabaseResult(result orchestrator.QueryResult) queryDatabaseResult {
	out := queryDatabaseResult{
		QueryID:      result.QueryID,
		SQLGenerated: result.ExecutedSQL,
		RowCount:     result.RowCount,
		TablesUsed:   result.TablesReferenced,
		Confidence:   result.Confidence,
		Notes:        result.Notes,
		Executed:     result.Error == nil,
	}
	for _, row := range result.Rows {
		out.Rows = append(out.Rows, map[string]interface{}(row))
	}
	if result.Error != nil {
		out.Error = &errorPayload{
			Kind:        string(result.Error.Kind),
			Message:     result.Error.Message,
			Recoverable: result.Error.Recoverable(),
		}
	}
	return out
}

func (s *Server) handleResourcesRead(ctx context.Context, req request) *response {
	var params resourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "bad resources/read params: "+err.Error())
	}
	if s.Resources == nil {
		return errorResponse(req.ID, codeInternalError, "resources not configured")
	}
	text, mimeType, err := s.Resources.Read(ctx, s.DatabaseID, params.URI)
	if err != nil {
		return errorResponse(req.ID, codeInvalidParams, err.Error())
	}
	return resultResponse(req.ID, resourcesReadResult{
		Contents: []resourceContent{{URI: params.URI, MimeType: mimeType, Text: text}},
	})
}
