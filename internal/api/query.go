package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sqlward/sqlward/internal/query"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	SQL       string   `json:"sql"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
	Stats     any      `json:"stats"`
}

// handleQuery runs caller-supplied SQL through exactly the same validation
// gate as model-generated SQL before it reaches the engine.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Validator == nil || deps.Executor == nil || deps.Files == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "asker"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if request.RowLimit < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", "row_limit must not be negative", false, nil)
		return
	}

	outcome := deps.Validator.ValidateWithLimit(request.SQL, request.RowLimit)
	if !outcome.Accepted() {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REJECTED", "statement failed validation", false, map[string]any{
			"violation": string(outcome.Violation.Kind),
			"detail":    outcome.Violation.Detail,
		})
		return
	}

	dataFiles, err := deps.Files.ListDataFiles(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list data files", true, map[string]any{"details": err.Error()})
		return
	}
	files := make([]query.TableFile, 0, len(dataFiles))
	for _, file := range dataFiles {
		files = append(files, query.TableFile{
			TableName:     file.TableName,
			ObjectPath:    file.ObjectPath,
			FileSizeBytes: file.FileSizeBytes,
		})
	}

	result, err := deps.Executor.Execute(r.Context(), outcome.Receipt, outcome.NormalizedSQL, files)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		SQL:       outcome.NormalizedSQL,
		Columns:   result.Columns,
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
		Stats: map[string]any{
			"duration_ms":            result.Duration.Milliseconds(),
			"implicit_limit_applied": outcome.ImplicitLimitApplied,
		},
	})
}
