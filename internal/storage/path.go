package storage

import (
	"fmt"
	"path"
	"regexp"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildDataFilePath names the parquet object backing one part of a table,
// e.g. "clinic/patients/part-00000.parquet".
func BuildDataFilePath(dataset, tableName string, part int) (string, error) {
	if err := validatePathComponent(dataset, "dataset"); err != nil {
		return "", err
	}
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	if part < 0 {
		return "", fmt.Errorf("part must be >= 0")
	}
	return path.Join(dataset, tableName, fmt.Sprintf("part-%05d.parquet", part)), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
