package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// errorResponse is the JSON body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// capStrings truncates a detail list to at most n entries, appending a
// marker with the number left out. n <= 0 means no cap.
func capStrings(in []string, n int) []string {
	if n <= 0 || len(in) <= n {
		return in
	}
	out := make([]string, n, n+1)
	copy(out, in[:n])
	return append(out, fmt.Sprintf("(%d more omitted)", len(in)-n))
}
