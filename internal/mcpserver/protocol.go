// Package mcpserver implements nlsql's tool-facing transport (spec.md §6
// EXPANSION): newline-delimited JSON-RPC 2.0 over stdio, registering one
// tool method (`query_database`) and two schema resources, grounded on
// the teacher's MCP client framing (internal/mcp/transport_stdio.go) and
// its own JSON-RPC server loop (internal/mangle/lsp.go's
// ServeStdio/handleRequest).
package mcpserver

import "encoding/json"

// request is one incoming JSON-RPC 2.0 message.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// response is one outgoing JSON-RPC 2.0 message. Exactly one of
// Result/Error is set, unless both are nil (a notification with no
// reply, which handle never produces for a request carrying an ID).
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

func errorResponse(id json.RawMessage, code int, message string) *response {
	return &response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

func resultResponse(id json.RawMessage, result interface{}) *response {
	return &response{JSONRPC: "2.0", ID: id, Result: result}
}

// toolCallParams is the body of a `tools/call` request.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// queryDatabaseArgs mirrors spec.md §6's tool request shape.
type queryDatabaseArgs struct {
	Question  string `json:"question"`
	MaxRows   int    `json:"max_rows"`
	TimeoutMs int    `json:"timeout_ms"`
	Trace     bool   `json:"trace"`
}

// queryDatabaseResult mirrors spec.md §6's tool response shape.
type queryDatabaseResult struct {
	QueryID     string                   `json:"query_id"`
	SQLGenerated string                  `json:"sql_generated"`
	Rows        []map[string]interface{} `json:"rows"`
	RowCount    int                      `json:"row_count"`
	TablesUsed  []string                 `json:"tables_used"`
	Confidence  float64                  `json:"confidence"`
	Notes       string                   `json:"notes,omitempty"`
	Executed    bool                     `json:"executed"`
	Error       *errorPayload            `json:"error,omitempty"`
}

type errorPayload struct {
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

type resourcesReadResult struct {
	Contents []resourceContent `json:"contents"`
}

type resourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}
