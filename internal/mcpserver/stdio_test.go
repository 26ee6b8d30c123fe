package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlsql/internal/schema"
)

func TestServeStdioHandlesInitializeAndShutdown(t *testing.T) {
	s := &Server{}
	input := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}` + "\n" +
			`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"shutdown"}` + "\n",
	)
	var out bytes.Buffer
	err := s.ServeStdio(context.Background(), input, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2) // notification produced no reply

	var first response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Nil(t, first.Error)

	var second response
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Nil(t, second.Error)
}

func TestServeStdioRejectsUnknownMethod(t *testing.T) {
	s := &Server{}
	input := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"bogus"}` + "\n")
	var out bytes.Buffer
	require.NoError(t, s.ServeStdio(context.Background(), input, &out))

	var resp response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestHandleResourcesReadListsTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := schema.NewStore(db)
	mock.ExpectQuery("schema_tables").WillReturnRows(
		sqlmock.NewRows([]string{"schema_name", "table_name", "module_tag", "fingerprint", "gloss", "fk_degree", "is_hub"}).
			AddRow("public", "orders", "sales", "fp1", "orders", 1, false))

	s := &Server{Resources: NewResourceReader(store), DatabaseID: "db1"}
	reqBody, _ := json.Marshal(request{
		JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "resources/read",
		Params: json.RawMessage(`{"uri":"schema://tables"}`),
	})
	input := strings.NewReader(string(reqBody) + "\n")
	var out bytes.Buffer
	require.NoError(t, s.ServeStdio(context.Background(), input, &out))

	var resp response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Nil(t, resp.Error)
	assert.Contains(t, out.String(), "orders")
}
