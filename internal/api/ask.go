package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sqlscout/sqlscout/internal/ask"
)

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Ask == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "ASK_UNAVAILABLE", "question answering is not configured", false, nil)
		return
	}

	var request ask.Request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	response, err := deps.Ask.Ask(r.Context(), request)
	if errors.Is(err, ask.ErrSQLRejected) {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "SQL_REJECTED", "generated sql failed read-only validation", false, map[string]any{"details": err.Error()})
		return
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "ASK_FAILED", "failed to answer question", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, response)
}
