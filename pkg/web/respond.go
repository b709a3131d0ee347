package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed API call.
type ErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Detail  string   `json:"detail,omitempty"`
	Tips    []string `json:"tips,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{Status: "ok", Data: data}); err != nil {
		slog.Error("web: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, body ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{Status: "error", Error: &body}); err != nil {
		slog.Error("web: encode error response", "error", err)
	}
}
