package schema

// Column describes one column of a warehouse table.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// Table describes one warehouse table.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Context carries what a language model needs to know about one table:
// its columns and a handful of sample rows.
type Context struct {
	TableName  string   `json:"table_name"`
	Columns    []string `json:"columns"`
	SampleRows [][]any  `json:"sample_rows"`
}
