package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlscout/sqlscout/internal/query"
)

// ContextBuilder assembles per-table prompt context by joining column
// metadata with a few sample rows read through the query engine.
type ContextBuilder struct {
	Inspector  *Inspector
	Engine     query.Engine
	SampleRows int
}

func (b *ContextBuilder) Build(ctx context.Context, tableNames []string) ([]Context, error) {
	tables, err := b.Inspector.Tables(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Table, len(tables))
	for _, table := range tables {
		byName[table.Name] = table
	}

	contexts := make([]Context, 0, len(tableNames))
	for _, name := range tableNames {
		table, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown table: %q", name)
		}
		tableContext := Context{
			TableName: table.Name,
			Columns:   renderColumns(table.Columns),
		}
		if b.SampleRows > 0 && b.Engine != nil {
			result, err := b.Engine.Execute(ctx, query.Request{
				SQL:      fmt.Sprintf("SELECT * FROM %s", quoteIdent(table.Name)),
				RowLimit: b.SampleRows,
			})
			if err != nil {
				return nil, fmt.Errorf("sample rows for %s: %w", table.Name, err)
			}
			tableContext.SampleRows = result.Rows
		}
		contexts = append(contexts, tableContext)
	}
	return contexts, nil
}

func renderColumns(columns []Column) []string {
	rendered := make([]string, 0, len(columns))
	for _, column := range columns {
		entry := column.Name + " " + column.DataType
		if !column.Nullable {
			entry += " NOT NULL"
		}
		rendered = append(rendered, entry)
	}
	return rendered
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
