// Package api holds the HTTP handlers of the pose server.
package api

import (
	"encoding/json"
	"net/http"
)

const (
	contentJSON = "application/json"
	contentText = "text/plain; charset=utf-8"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentJSON)
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeText answers the legacy /save and /load routes, which speak plain text.
func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", contentText)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
