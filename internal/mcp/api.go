package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/bull/ask-et/internal/answer"
)

const maxRequestBody = 64 << 10

// Asker answers one question.
type Asker interface {
	Ask(ctx context.Context, q string) *answer.Answer
}

// AskRequest is the JSON body accepted by POST /api/ask.
type AskRequest struct {
	Query string `json:"query"`
}

// NewAskHandler creates the /api/ask handler. It accepts GET ?q=... or a
// POST JSON body and returns the answer as JSON, or as markdown when
// format=markdown is set. Blank questions get the empty-query answer, not
// an HTTP error.
func NewAskHandler(asker Asker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q string
		switch r.Method {
		case http.MethodGet:
			q = r.URL.Query().Get("q")
		case http.MethodPost:
			var req AskRequest
			dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
			if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
				return
			}
			q = req.Query
		default:
			w.Header().Set("Allow", "GET, POST")
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		ans := asker.Ask(r.Context(), q)

		if r.URL.Query().Get("format") == "markdown" {
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			_, _ = io.WriteString(w, answer.Render(ans))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ans)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
