package handler

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the error envelope every handler returns. The status is
// repeated in the body so webhook consumers that discard response headers
// can still branch on it.
type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the shared error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, Status: status})
}
