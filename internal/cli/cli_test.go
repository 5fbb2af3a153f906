// file: internal/cli/cli_test.go
package cli

import (
	"ClickFlow/internal/core/domain"
	"ClickFlow/pkg/ingestclient"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recorded struct {
	configure domain.ConnectionDetails
	ingest    domain.IngestionRequest
	join      domain.JoinIngestionRequest
	dataQuery string
	auth      string
}

func newTestServer(t *testing.T) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ingestion/configure-connection", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec.configure))
		_, _ = w.Write([]byte("Connection successful: ClickHouse 24.3"))
	})
	mux.HandleFunc("GET /api/ingestion/test-connection", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Connection failed: no route to host"))
	})
	mux.HandleFunc("GET /api/ingestion/tables", func(w http.ResponseWriter, r *http.Request) {
		rec.auth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]string{"trades", "users"})
	})
	mux.HandleFunc("GET /api/ingestion/columns/{table}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("table") == "missing" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("Error fetching columns: table missing not found"))
			return
		}
		_ = json.NewEncoder(w).Encode([]string{"id", "price"})
	})
	mux.HandleFunc("GET /api/ingestion/data", func(w http.ResponseWriter, r *http.Request) {
		rec.dataQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(domain.Grid{{"1", "100"}, {"2", ""}})
	})
	mux.HandleFunc("POST /api/ingestion/ingest", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec.ingest))
		_ = json.NewEncoder(w).Encode(domain.IngestionResult{RecordCount: 3, Message: "ClickHouse -> output.csv", JobID: "job-1"})
	})
	mux.HandleFunc("POST /api/ingestion/clickhouse-join-to-flatfile", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec.join))
		_ = json.NewEncoder(w).Encode(domain.IngestionResult{RecordCount: 7, Message: "joined"})
	})
	mux.HandleFunc("GET /api/ingestion/jobs", func(w http.ResponseWriter, _ *http.Request) {
		done := time.Date(2025, 1, 1, 0, 0, 2, 0, time.UTC)
		_ = json.NewEncoder(w).Encode([]*domain.Job{{
			ID: "job-1", Kind: domain.JobKindIngest, Source: "ClickHouse", TableName: "trades",
			FileName: "output.csv", RecordCount: 3, Status: domain.JobSucceeded,
			StartedAt: done.Add(-2 * time.Second), FinishedAt: &done,
		}})
	})
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rec
}

func run(t *testing.T, srv *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigure(t *testing.T) {
	srv, rec := newTestServer(t)
	out, err := run(t, srv, "s3cret\n", "configure", "--host", "ch", "--port", "9000",
		"--database", "uk_price_paid", "--username", "ingestor_user", "--ask-password")
	require.NoError(t, err)
	assert.Contains(t, out, "Connection successful")
	assert.Equal(t, domain.ConnectionDetails{
		Host: "ch", Port: 9000, Database: "uk_price_paid", Username: "ingestor_user", Password: "s3cret",
	}, rec.configure)
}

func TestTestConnection_FailureText(t *testing.T) {
	srv, _ := newTestServer(t)
	out, err := run(t, srv, "", "test")
	require.Error(t, err)
	assert.Contains(t, out, "Connection failed: no route to host")
}

func TestTables(t *testing.T) {
	srv, rec := newTestServer(t)

	out, err := run(t, srv, "", "--token", "abc", "tables")
	require.NoError(t, err)
	assert.Contains(t, out, "trades")
	assert.Contains(t, out, "(2 rows)")
	assert.Equal(t, "Bearer abc", rec.auth)

	out, err = run(t, srv, "", "-o", "json", "tables")
	require.NoError(t, err)
	var tables []string
	require.NoError(t, json.Unmarshal([]byte(out), &tables))
	assert.Equal(t, []string{"trades", "users"}, tables)
}

func TestTokenFromEnv(t *testing.T) {
	srv, rec := newTestServer(t)
	t.Setenv("CLICKFLOW_TOKEN", "from-env")
	_, err := run(t, srv, "", "tables")
	require.NoError(t, err)
	assert.Equal(t, "Bearer from-env", rec.auth)
}

func TestColumns_APIError(t *testing.T) {
	srv, _ := newTestServer(t)
	_, err := run(t, srv, "", "columns", "missing")
	var apiErr *ingestclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Error fetching columns: table missing not found", apiErr.Message)
}

func TestPreview(t *testing.T) {
	srv, rec := newTestServer(t)
	out, err := run(t, srv, "", "preview", "--table", "trades", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "PRICE", "未指定列时表头来自表结构")
	assert.Contains(t, out, "N/A")
	assert.Contains(t, out, "(2 rows)")
	assert.Contains(t, rec.dataQuery, "limit=5")
	assert.Contains(t, rec.dataQuery, "tableName=trades")
}

func TestPreview_SelectedColumns(t *testing.T) {
	srv, rec := newTestServer(t)
	_, err := run(t, srv, "", "preview", "--table", "trades", "--columns", "id,price")
	require.NoError(t, err)
	assert.Contains(t, rec.dataQuery, "columns=id&columns=price")
}

func TestIngest(t *testing.T) {
	srv, rec := newTestServer(t)
	out, err := run(t, srv, "", "ingest", "--source", "ClickHouse", "--table", "trades",
		"--columns", "id,price", "--file", "output.csv", "-d", "tab")
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 3 records: ClickHouse -> output.csv")
	assert.Contains(t, out, "job-1")
	assert.Equal(t, domain.IngestionRequest{
		Source: "ClickHouse", TableName: "trades", FileName: "output.csv",
		Columns: []string{"id", "price"}, Delimiter: "tab",
	}, rec.ingest)
}

func TestIngest_RequiresColumns(t *testing.T) {
	srv, _ := newTestServer(t)
	_, err := run(t, srv, "", "ingest", "--source", "ClickHouse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "columns")
}

func TestJoin(t *testing.T) {
	srv, rec := newTestServer(t)
	out, err := run(t, srv, "", "-o", "json", "join", "--tables", "a,b",
		"--on", "a.id = b.id", "--columns", "a.id,b.name")
	require.NoError(t, err)
	var res domain.IngestionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.EqualValues(t, 7, res.RecordCount)
	assert.Equal(t, []string{"a", "b"}, rec.join.Tables)
	assert.Equal(t, "a.id = b.id", rec.join.JoinCondition)
}

func TestJobs(t *testing.T) {
	srv, _ := newTestServer(t)
	out, err := run(t, srv, "", "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "2s")
}

func TestLogin(t *testing.T) {
	srv, _ := newTestServer(t)
	out, err := run(t, srv, "pw\n", "login", "--username", "ops")
	require.NoError(t, err)
	assert.Equal(t, "tok-123\n", out)
}

func TestHashPassword(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("hunter2\n"))
	cmd.SetArgs([]string{"hash-password"})
	require.NoError(t, cmd.Execute())
	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))
}

func TestInvalidOutputFormat(t *testing.T) {
	srv, _ := newTestServer(t)
	_, err := run(t, srv, "", "-o", "yaml", "tables")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yaml")
}
