package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sqlward/sqlward/internal/catalog"
	"github.com/sqlward/sqlward/internal/query"
	"github.com/sqlward/sqlward/internal/validate"
)

type stubEngine struct {
	request query.Request
	result  query.Result
}

func (s *stubEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	s.request = request
	return s.result, nil
}

type stubFiles struct{}

func (stubFiles) ListDataFiles(context.Context) ([]catalog.DataFile, error) {
	return []catalog.DataFile{{TableName: "patients", ObjectPath: "clinic/patients/part-00000.parquet"}}, nil
}

func queryDeps(engine query.Engine) Dependencies {
	descriptor := &catalog.Descriptor{Tables: []catalog.Table{{
		Name: "patients",
		Columns: []catalog.Column{
			{Name: "patient_id", Type: "BIGINT"},
			{Name: "name", Type: "VARCHAR"},
		},
	}}}
	return Dependencies{
		Logger:     testLogger(),
		Descriptor: descriptor,
		Validator:  validate.New(descriptor, 1000),
		Executor:   query.NewExecutor(engine, time.Second, 100),
		Files:      stubFiles{},
	}
}

func TestQueryValidatesBeforeExecuting(t *testing.T) {
	engine := &stubEngine{}
	handler := NewHandler(testConfig(), queryDeps(engine))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"sql": "DROP TABLE patients"}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error_code"] != "SQL_REJECTED" {
		t.Fatalf("error_code = %v", payload["error_code"])
	}
	if engine.request.SQL != "" {
		t.Fatalf("engine received %q, want no execution", engine.request.SQL)
	}
}

func TestQueryExecutesNormalizedStatement(t *testing.T) {
	engine := &stubEngine{result: query.Result{Columns: []string{"name"}, Rows: [][]any{{"alice"}}, RowCount: 1}}
	handler := NewHandler(testConfig(), queryDeps(engine))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"sql": "SELECT name FROM patients"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if !strings.Contains(engine.request.SQL, "limit 1000") {
		t.Fatalf("engine sql = %q, want injected limit", engine.request.SQL)
	}
	var payload queryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.RowCount != 1 {
		t.Fatalf("row_count = %d, want 1", payload.RowCount)
	}
}

func TestQueryAppliesRowLimit(t *testing.T) {
	engine := &stubEngine{result: query.Result{Columns: []string{"name"}}}
	handler := NewHandler(testConfig(), queryDeps(engine))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"sql": "SELECT name FROM patients LIMIT 500", "row_limit": 20}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if !strings.Contains(engine.request.SQL, "limit 20") {
		t.Fatalf("engine sql = %q, want tightened limit", engine.request.SQL)
	}
}

func TestQueryRequiresSQL(t *testing.T) {
	handler := NewHandler(testConfig(), queryDeps(&stubEngine{}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"sql": " "}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSchemaListsTablesWithSensitivity(t *testing.T) {
	descriptor := &catalog.Descriptor{Tables: []catalog.Table{{
		Name: "patients",
		Columns: []catalog.Column{
			{Name: "name", Type: "VARCHAR"},
			{Name: "national_id", Type: "VARCHAR", Sensitive: true},
		},
		PrimaryKey: []string{"patient_id"},
	}}}
	handler := NewHandler(testConfig(), Dependencies{Logger: testLogger(), Descriptor: descriptor})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var payload struct {
		Tables []schemaTable `json:"tables"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(payload.Tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(payload.Tables))
	}
	if !payload.Tables[0].Columns[1].Sensitive {
		t.Fatalf("sensitive flag missing: %+v", payload.Tables[0])
	}
}
