package nouns

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlscout/sqlscout/internal/query"
)

// Extractor reads distinct values out of the configured columns through the
// query engine, capped per column so a huge dimension table cannot blow up
// the index.
type Extractor struct {
	Engine             query.Engine
	MaxValuesPerColumn int
}

func (e *Extractor) Extract(ctx context.Context, refs []ColumnRef) ([]Noun, error) {
	if e.Engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}

	nouns := make([]Noun, 0)
	for _, ref := range refs {
		sqlText := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL",
			quoteIdent(ref.Column), quoteIdent(ref.Table), quoteIdent(ref.Column))
		result, err := e.Engine.Execute(ctx, query.Request{SQL: sqlText, RowLimit: e.MaxValuesPerColumn})
		if err != nil {
			return nil, fmt.Errorf("extract values from %s: %w", ref, err)
		}
		for _, row := range result.Rows {
			if len(row) == 0 {
				continue
			}
			value := strings.TrimSpace(fmt.Sprintf("%v", row[0]))
			if value == "" {
				continue
			}
			nouns = append(nouns, Noun{Value: value, Table: ref.Table, Column: ref.Column})
		}
	}
	return nouns, nil
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
