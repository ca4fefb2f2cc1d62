package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

type selectTablesRequest struct {
	Question string `json:"question"`
}

func handleSelectTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil || deps.Selector == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SELECTOR_UNAVAILABLE", "table selection is not configured", false, nil)
		return
	}

	var request selectTablesRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid select request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	tables, err := deps.Schema.ListTables(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_ERROR", "failed to list warehouse tables", true, map[string]any{"details": err.Error()})
		return
	}
	selection, err := deps.Selector.Select(r.Context(), request.Question, tables)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SELECTION_FAILED", "failed to select tables", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, selection)
}
