package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

const listTablesSQL = `SELECT table_name
FROM information_schema.tables
WHERE table_type = 'BASE TABLE'
  AND table_schema NOT IN ('information_schema', 'pg_catalog')
ORDER BY table_name`

const listColumnsSQL = `SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
ORDER BY table_name, ordinal_position`

// Inspector reads table and column metadata from information_schema.
// Both supported drivers (pgx and duckdb) expose it.
type Inspector struct {
	db *sql.DB
}

func NewInspector(db *sql.DB) *Inspector {
	return &Inspector{db: db}
}

func (i *Inspector) ListTables(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, listTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

// Tables returns every base table with its columns in ordinal order.
func (i *Inspector) Tables(ctx context.Context) ([]Table, error) {
	rows, err := i.db.QueryContext(ctx, listColumnsSQL)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byTable := make(map[string][]Column)
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		byTable[tableName] = append(byTable[tableName], Column{
			Name:     columnName,
			DataType: dataType,
			Nullable: isNullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	names := make([]string, 0, len(byTable))
	for name := range byTable {
		names = append(names, name)
	}
	sort.Strings(names)

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		tables = append(tables, Table{Name: name, Columns: byTable[name]})
	}
	return tables, nil
}
