package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const ExportPrefix = "exports"

var exportIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,127}$`)

// ExportKey places an export under its UTC creation day:
// exports/YYYY/MM/DD/<id>.parquet.
func ExportKey(createdAt time.Time, id string) (string, error) {
	if !exportIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid export id: %q", id)
	}
	ts := createdAt.UTC()
	return path.Join(
		ExportPrefix,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		id+".parquet",
	), nil
}

// ValidateExportKey accepts only keys produced by ExportKey.
func ValidateExportKey(key string) error {
	parts := strings.Split(key, "/")
	if len(parts) != 5 || parts[0] != ExportPrefix {
		return fmt.Errorf("invalid export key: %q", key)
	}
	day := strings.Join(parts[1:4], "-")
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return fmt.Errorf("invalid export key: %q", key)
	}
	id, ok := strings.CutSuffix(parts[4], ".parquet")
	if !ok || !exportIDPattern.MatchString(id) {
		return fmt.Errorf("invalid export key: %q", key)
	}
	return nil
}
