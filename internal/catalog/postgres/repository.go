package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sqlward/sqlward/internal/catalog"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

// EnsureSchema creates the catalog tables when they do not exist yet. The
// seeder calls this before registering demo data.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ward_table (
			table_name  TEXT PRIMARY KEY,
			primary_key JSONB NOT NULL DEFAULT '[]',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS ward_column (
			table_name  TEXT NOT NULL REFERENCES ward_table(table_name) ON DELETE CASCADE,
			ordinal     INT NOT NULL,
			column_name TEXT NOT NULL,
			column_type TEXT NOT NULL,
			sensitive   BOOLEAN NOT NULL DEFAULT false,
			PRIMARY KEY (table_name, column_name)
		)`,
		`CREATE TABLE IF NOT EXISTS ward_data_file (
			object_path     TEXT PRIMARY KEY,
			table_name      TEXT NOT NULL REFERENCES ward_table(table_name) ON DELETE CASCADE,
			file_size_bytes BIGINT NOT NULL,
			registered_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, statement := range statements {
		if _, err := r.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("ensure catalog schema: %w", err)
		}
	}
	return nil
}

func (r *Repository) CreateTable(ctx context.Context, table catalog.Table) error {
	if table.Name == "" {
		return fmt.Errorf("table name is required")
	}
	primaryKey, err := json.Marshal(table.PrimaryKey)
	if err != nil {
		return fmt.Errorf("encode primary key: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create table: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO ward_table (table_name, primary_key)
VALUES ($1, $2)
ON CONFLICT (table_name) DO UPDATE SET primary_key = EXCLUDED.primary_key`,
		table.Name, primaryKey); err != nil {
		return fmt.Errorf("create table %q: %w", table.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ward_column WHERE table_name = $1`, table.Name); err != nil {
		return fmt.Errorf("reset columns for %q: %w", table.Name, err)
	}
	for ordinal, column := range table.Columns {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO ward_column (table_name, ordinal, column_name, column_type, sensitive)
VALUES ($1, $2, $3, $4, $5)`,
			table.Name, ordinal, column.Name, column.Type, column.Sensitive); err != nil {
			return fmt.Errorf("create column %q.%q: %w", table.Name, column.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create table: %w", err)
	}
	return nil
}

func (r *Repository) RegisterDataFile(ctx context.Context, file catalog.DataFile) error {
	if file.TableName == "" || file.ObjectPath == "" {
		return fmt.Errorf("table name and object path are required")
	}
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO ward_data_file (object_path, table_name, file_size_bytes)
VALUES ($1, $2, $3)
ON CONFLICT (object_path) DO UPDATE SET file_size_bytes = EXCLUDED.file_size_bytes`,
		file.ObjectPath, file.TableName, file.FileSizeBytes); err != nil {
		return fmt.Errorf("register data file %q: %w", file.ObjectPath, err)
	}
	return nil
}

func (r *Repository) Describe(ctx context.Context) (catalog.Descriptor, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT t.table_name, t.primary_key, c.column_name, c.column_type, c.sensitive
FROM ward_table t
JOIN ward_column c ON c.table_name = t.table_name
ORDER BY t.table_name, c.ordinal`)
	if err != nil {
		return catalog.Descriptor{}, fmt.Errorf("describe catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var descriptor catalog.Descriptor
	index := map[string]int{}
	for rows.Next() {
		var (
			tableName  string
			primaryKey []byte
			column     catalog.Column
		)
		if err := rows.Scan(&tableName, &primaryKey, &column.Name, &column.Type, &column.Sensitive); err != nil {
			return catalog.Descriptor{}, fmt.Errorf("scan catalog row: %w", err)
		}
		position, ok := index[tableName]
		if !ok {
			table := catalog.Table{Name: tableName}
			if err := json.Unmarshal(primaryKey, &table.PrimaryKey); err != nil {
				return catalog.Descriptor{}, fmt.Errorf("decode primary key for %q: %w", tableName, err)
			}
			descriptor.Tables = append(descriptor.Tables, table)
			position = len(descriptor.Tables) - 1
			index[tableName] = position
		}
		descriptor.Tables[position].Columns = append(descriptor.Tables[position].Columns, column)
	}
	if err := rows.Err(); err != nil {
		return catalog.Descriptor{}, fmt.Errorf("iterate catalog rows: %w", err)
	}
	if len(descriptor.Tables) == 0 {
		return catalog.Descriptor{}, catalog.ErrNotFound
	}
	return descriptor, nil
}

func (r *Repository) ListDataFiles(ctx context.Context) ([]catalog.DataFile, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT table_name, object_path, file_size_bytes, registered_at
FROM ward_data_file
ORDER BY table_name, object_path`)
	if err != nil {
		return nil, fmt.Errorf("list data files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []catalog.DataFile
	for rows.Next() {
		var file catalog.DataFile
		if err := rows.Scan(&file.TableName, &file.ObjectPath, &file.FileSizeBytes, &file.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan data file row: %w", err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data file rows: %w", err)
	}
	return files, nil
}
