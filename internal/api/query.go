package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sqlscout/sqlscout/internal/query"
	"github.com/sqlscout/sqlscout/internal/sqlgen"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

// handleQuery runs caller-supplied SQL through the same read-only guard the
// generated queries pass.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "QUERY_UNAVAILABLE", "query execution is not configured", false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if err := sqlgen.Validate(request.SQL); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", false, map[string]any{"details": err.Error()})
		return
	}

	rowLimit := request.RowLimit
	if rowLimit <= 0 || (deps.RowLimit > 0 && rowLimit > deps.RowLimit) {
		rowLimit = deps.RowLimit
	}

	result, err := deps.QueryEngine.Execute(r.Context(), query.Request{SQL: request.SQL, RowLimit: rowLimit})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", "failed to execute query", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"columns":     result.Columns,
		"rows":        result.Rows,
		"row_count":   len(result.Rows),
		"duration_ms": result.Duration.Milliseconds(),
	})
}
