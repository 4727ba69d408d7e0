// Package duckdb executes accepted statements against an in-process DuckDB
// instance. Each execution stages the catalog's parquet files into a scratch
// directory, exposes them as views named after their tables, and streams the
// result under the caller's row cap.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/sqlward/sqlward/internal/query"
	"github.com/sqlward/sqlward/internal/storage"
)

type Engine struct {
	Store storage.ObjectStore
}

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if len(request.Files) == 0 {
		return query.Result{}, fmt.Errorf("no data files registered for the referenced tables")
	}
	if e.Store == nil {
		return query.Result{}, fmt.Errorf("object store is required")
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "sqlward-query-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	groupedPaths, err := e.stageFiles(ctx, workDir, request.Files)
	if err != nil {
		return query.Result{}, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	for tableName, localPaths := range groupedPaths {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(tableName), quoteStringArray(localPaths))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return query.Result{}, fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, resultRows, truncated, err := scanRows(rows, request.RowCap)
	if err != nil {
		return query.Result{}, err
	}

	return query.Result{
		Columns:   columns,
		Rows:      resultRows,
		RowCount:  len(resultRows),
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}

func (e *Engine) stageFiles(ctx context.Context, workDir string, files []query.TableFile) (map[string][]string, error) {
	groupedPaths := map[string][]string{}
	for index, file := range files {
		reader, err := e.Store.Get(ctx, file.ObjectPath)
		if err != nil {
			return nil, fmt.Errorf("get object %q: %w", file.ObjectPath, err)
		}

		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(file.TableName), index))
		err = stageFile(localPath, reader)
		if closeErr := reader.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return nil, fmt.Errorf("stage parquet file %q: %w", file.ObjectPath, err)
		}
		groupedPaths[file.TableName] = append(groupedPaths[file.TableName], localPath)
	}
	return groupedPaths, nil
}

func stageFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// scanRows drains the cursor up to rowCap rows, then stops reading and
// reports truncation. The cap applies to the actual stream, independent of
// any limit embedded in the statement text.
func scanRows(rows *sql.Rows, rowCap int) ([]string, [][]any, bool, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, false, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	truncated := false
	for rows.Next() {
		if rowCap > 0 && len(resultRows) >= rowCap {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, false, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if !truncated {
		if err := rows.Err(); err != nil {
			return nil, nil, false, fmt.Errorf("iterate rows: %w", err)
		}
	}
	return columns, resultRows, truncated, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
