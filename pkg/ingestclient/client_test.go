// file: pkg/ingestclient/client_test.go
package ingestclient

import (
	"ClickFlow/internal/core/domain"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("POST /api/ingestion/configure-connection", func(w http.ResponseWriter, r *http.Request) {
		var d domain.ConnectionDetails
		require.NoError(t, json.NewDecoder(r.Body).Decode(&d))
		if d.Host == "bad" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("Configuration failed: no such host"))
			return
		}
		_, _ = w.Write([]byte("Connection successful: ClickHouse 24.3"))
	})
	mux.HandleFunc("GET /api/ingestion/tables", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		_, _ = w.Write([]byte(`["a","b"]`))
	})
	mux.HandleFunc("GET /api/ingestion/columns/{table}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]string{r.PathValue("table")})
	})
	mux.HandleFunc("GET /api/ingestion/data", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		_ = json.NewEncoder(w).Encode(domain.Grid{q["columns"], {q.Get("source"), q.Get("limit")}})
	})
	mux.HandleFunc("POST /api/ingestion/ingest", func(w http.ResponseWriter, r *http.Request) {
		var req domain.IngestionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(domain.IngestionResult{RecordCount: int64(len(req.Columns)), Message: "Ingestion from " + req.Source + " completed"})
	})
	return httptest.NewServer(mux)
}

func TestClient_TextAndErrors(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := New(srv.URL + "/")
	ctx := context.Background()

	msg, err := c.ConfigureConnection(ctx, domain.ConnectionDetails{Host: "ch", Port: 8123})
	require.NoError(t, err)
	assert.Equal(t, "Connection successful: ClickHouse 24.3", msg)

	_, err = c.ConfigureConnection(ctx, domain.ConnectionDetails{Host: "bad", Port: 8123})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Configuration failed: no such host", apiErr.Message)
}

func TestClient_LoginAttachesToken(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := New(srv.URL)
	ctx := context.Background()

	_, err := c.Tables(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "unauthorized", apiErr.Message, "JSON 错误体取 error 字段")

	_, err = c.Login(ctx, "ops", "pw")
	require.NoError(t, err)
	tables, err := c.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tables)
}

func TestClient_ContextTokenOverridesClientToken(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := New(srv.URL, WithToken("stale"))

	_, err := c.Tables(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	tables, err := c.Tables(ContextWithToken(context.Background(), "tok"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tables)
}

func TestClient_QueryEncoding(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := New(srv.URL, WithHTTPClient(srv.Client()))
	ctx := context.Background()

	cols, err := c.Columns(ctx, "uk price")
	require.NoError(t, err)
	assert.Equal(t, []string{"uk price"}, cols)

	grid, err := c.Data(ctx, domain.DataRequest{Source: "FlatFile", Columns: []string{"x", "y"}, Limit: 7})
	require.NoError(t, err)
	assert.Equal(t, domain.Grid{{"x", "y"}, {"FlatFile", "7"}}, grid)

	res, err := c.Ingest(ctx, domain.IngestionRequest{Source: "ClickHouse", Columns: []string{"a", "b"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.RecordCount)
	assert.Equal(t, "Ingestion from ClickHouse completed", res.Message)
}
