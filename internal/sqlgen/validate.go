package sqlgen

import (
	"fmt"
	"strings"

	"github.com/sqlscout/sqlscout/internal/observability"
)

var forbiddenKeywords = []string{
	"insert", "update", "delete", "merge", "drop", "alter", "create",
	"truncate", "grant", "revoke", "attach", "detach", "copy", "vacuum",
}

// Validate rejects anything that is not a single read-only SELECT or WITH
// statement. Generated SQL is never trusted blindly.
func Validate(sqlText string) error {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	normalized = strings.TrimSuffix(normalized, ";")
	if strings.TrimSpace(normalized) == "" {
		return rejection("empty", "sql is empty")
	}
	if strings.Contains(normalized, ";") {
		return rejection("multiple_statements", "only a single statement is allowed")
	}
	if !strings.HasPrefix(normalized, "select") && !strings.HasPrefix(normalized, "with") {
		return rejection("not_select", "only SELECT/WITH queries are allowed")
	}
	for _, word := range strings.FieldsFunc(normalized, isSQLSeparator) {
		for _, keyword := range forbiddenKeywords {
			if word == keyword {
				return rejection("forbidden_keyword", fmt.Sprintf("keyword %q is not allowed", keyword))
			}
		}
	}
	return nil
}

func rejection(reason, message string) error {
	observability.IncrementSQLRejection(reason)
	return fmt.Errorf("%s", message)
}

func isSQLSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '(', ')', ',', ';':
		return true
	}
	return false
}
