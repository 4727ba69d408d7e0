package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("catalog: not found")

// Column describes one column of a catalog table. Sensitive columns are
// named in prompts but never sampled, and statements touching them are
// rejected by the validator.
type Column struct {
	Name      string
	Type      string
	Sensitive bool
}

// Table describes one queryable table.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
}

// Descriptor is the full read-only schema inventory. It is loaded once per
// process and shared across concurrent pipeline runs without locking.
type Descriptor struct {
	Tables []Table
}

// DataFile points at one parquet object backing a table.
type DataFile struct {
	TableName     string
	ObjectPath    string
	FileSizeBytes int64
	RegisteredAt  time.Time
}

// Provider yields the schema descriptor consumed by the prompt builder and
// the validator.
type Provider interface {
	Describe(ctx context.Context) (Descriptor, error)
}

// Repository is the persistent catalog: the descriptor plus the data-file
// registry the query engine stages from.
type Repository interface {
	Provider
	HealthCheck(ctx context.Context) error
	ListDataFiles(ctx context.Context) ([]DataFile, error)
	CreateTable(ctx context.Context, table Table) error
	RegisterDataFile(ctx context.Context, file DataFile) error
}

// Table looks up a table by name, case-insensitively.
func (d Descriptor) Table(name string) (Table, bool) {
	for _, table := range d.Tables {
		if strings.EqualFold(table.Name, name) {
			return table, true
		}
	}
	return Table{}, false
}

func (d Descriptor) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, table := range d.Tables {
		names = append(names, table.Name)
	}
	return names
}

// Column looks up a column by name, case-insensitively.
func (t Table) Column(name string) (Column, bool) {
	for _, column := range t.Columns {
		if strings.EqualFold(column.Name, name) {
			return column, true
		}
	}
	return Column{}, false
}
