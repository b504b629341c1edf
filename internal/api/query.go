package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hklund/signaldb/internal/query"
)

// QueryRequest carries a text query.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse returns the results along with the parsed AST and its
// canonical rendering, so clients can see what was understood.
type QueryResponse struct {
	Query      *query.Query `json:"ast"`
	Normalized string       `json:"normalized"`
	Data       any          `json:"data"`
	Total      int          `json:"total"`
}

// handleQuery parses and executes a text query against the log store.
// Parse and execution errors are caller-input problems and come back
// as 400s; store failures are 500s.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body, expected {\"query\": \"...\"}"))
		return
	}

	q, err := query.Parse(req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, total, err := query.Execute(r.Context(), q, s.store.Logs())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, query.ErrUnsupportedSource) || errors.Is(err, query.ErrTypeMismatch) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Query:      q,
		Normalized: q.String(),
		Data:       entries,
		Total:      total,
	})
}
