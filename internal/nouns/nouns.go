package nouns

import (
	"fmt"
	"strings"
)

// ColumnRef names one text column whose distinct values are worth indexing,
// e.g. artist names or country names that users misspell in questions.
type ColumnRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

func (r ColumnRef) String() string {
	return r.Table + "." + r.Column
}

func ParseColumnRef(raw string) (ColumnRef, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ColumnRef{}, fmt.Errorf("invalid column reference %q, expected table.column", raw)
	}
	return ColumnRef{Table: parts[0], Column: parts[1]}, nil
}

func ParseColumnRefs(raw []string) ([]ColumnRef, error) {
	refs := make([]ColumnRef, 0, len(raw))
	for _, entry := range raw {
		ref, err := ParseColumnRef(entry)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Noun is one distinct value pulled out of a warehouse column.
type Noun struct {
	Value  string `json:"value"`
	Table  string `json:"table"`
	Column string `json:"column"`
}

// Match is one index hit for a search term.
type Match struct {
	Value  string  `json:"value"`
	Table  string  `json:"table"`
	Column string  `json:"column"`
	Score  float64 `json:"score"`
}
