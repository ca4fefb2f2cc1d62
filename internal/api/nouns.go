package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sqlscout/sqlscout/internal/auth"
)

type nounSearchRequest struct {
	Term string `json:"term"`
	TopK int    `json:"top_k"`
}

func handleNounSearch(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Nouns == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "NOUNS_UNAVAILABLE", "noun retrieval is not configured", false, nil)
		return
	}

	var request nounSearchRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid search request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Term) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TERM_REQUIRED", "term is required", false, nil)
		return
	}

	matches, err := deps.Nouns.Search(r.Context(), request.Term, request.TopK)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SEARCH_FAILED", "failed to search noun index", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches": matches,
		"count":   len(matches),
	})
}

func handleNounReindex(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Nouns == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "NOUNS_UNAVAILABLE", "noun retrieval is not configured", false, nil)
		return
	}
	// Rebuilding burns embedding quota, so with auth enabled it is admin-only.
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && !identity.HasRole("admin") {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "reindex requires the admin role", false, nil)
		return
	}

	count, err := deps.Nouns.Reindex(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "REINDEX_FAILED", "failed to rebuild noun index", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indexed": count})
}
