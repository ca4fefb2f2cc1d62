package storage

import (
	"fmt"
	"path"
	"regexp"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSnapshotPath returns the object key for a noun-index snapshot of the
// given collection, e.g. "nouns/chinook.parquet".
func BuildSnapshotPath(collection string) (string, error) {
	if err := validatePathComponent(collection, "collection"); err != nil {
		return "", err
	}
	return path.Join("nouns", collection+".parquet"), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
