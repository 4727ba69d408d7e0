package api

import (
	"net/http"
)

type schemaColumn struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Sensitive bool   `json:"sensitive"`
}

type schemaTable struct {
	Name       string         `json:"name"`
	Columns    []schemaColumn `json:"columns"`
	PrimaryKey []string       `json:"primary_key,omitempty"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Descriptor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema catalog is not configured", false, nil)
		return
	}
	if err := requireRole(r, "asker"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	tables := make([]schemaTable, 0, len(deps.Descriptor.Tables))
	for _, table := range deps.Descriptor.Tables {
		columns := make([]schemaColumn, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, schemaColumn{Name: column.Name, Type: column.Type, Sensitive: column.Sensitive})
		}
		tables = append(tables, schemaTable{Name: table.Name, Columns: columns, PrimaryKey: table.PrimaryKey})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}
