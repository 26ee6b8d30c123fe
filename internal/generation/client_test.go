package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCollapsesCaseAndWhitespace(t *testing.T) {
	a := Normalize("select   id  FROM orders")
	b := Normalize("SELECT id FROM orders")
	assert.Equal(t, a, b)
}

func TestNormalizePreservesLiterals(t *testing.T) {
	a := Normalize("SELECT * FROM t WHERE name = 'Bob'")
	b := Normalize("SELECT * FROM t WHERE name = 'bob'")
	assert.NotEqual(t, a, b)
}

func TestGenerateKDedupesIdenticalCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{SQLGenerated: "SELECT 1 FROM t LIMIT 10"})
	}))
	defer server.Close()

	c := NewClient(server.URL, 2*time.Second)
	candidates, err := c.GenerateK(context.Background(), "how many rows", "db1", "schema context", 4, 1)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestGenerateKTreatsPartialFailureAsSuccess(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls%2 == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{SQLGenerated: "SELECT 1 FROM t LIMIT 10"})
	}))
	defer server.Close()

	c := NewClient(server.URL, 2*time.Second)
	candidates, err := c.GenerateK(context.Background(), "how many rows", "db1", "schema context", 4, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, candidates)
}

func TestGenerateKFailsWhenAllCallsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL, 2*time.Second)
	_, err := c.GenerateK(context.Background(), "how many rows", "db1", "schema context", 2, 1)
	assert.Error(t, err)
}

func TestGenerateKCollectsSQLCandidatesAlongsideSQLGenerated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{
			SQLGenerated:  "SELECT 1 FROM t LIMIT 10",
			SQLCandidates: []string{"SELECT 2 FROM t LIMIT 10"},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, 2*time.Second)
	candidates, err := c.GenerateK(context.Background(), "how many rows", "db1", "schema context", 1, 1)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func TestRepairCallsRepairEndpointWithDBError(t *testing.T) {
	var path string
	var body repairRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(generateResponse{SQLGenerated: "SELECT 1 FROM t LIMIT 10"})
	}))
	defer server.Close()

	c := NewClient(server.URL, 2*time.Second)
	cand, err := c.Repair(context.Background(), "how many rows", "db1", "SELECT * FROM t",
		[]string{"missing GROUP BY"}, &DBError{SQLState: "42703", Message: `column "bogus" does not exist`}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "/repair_sql", path)
	assert.NotEmpty(t, cand.NormalizedForm)
	assert.Equal(t, "db1", body.DatabaseID)
	assert.Equal(t, "42703", body.DBError.SQLState)
	assert.Equal(t, 2, body.Attempt)
	assert.Equal(t, 3, body.MaxAttempts)
}
