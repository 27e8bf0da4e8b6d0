// Package httpapi holds the shared response envelope used by every endpoint.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// Envelope is the conventional {success, message, data} response body.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// WriteOK writes a success envelope with the given payload.
func WriteOK(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Success: true, Message: "ok", Data: data})
}

// WriteError writes a failure envelope with the given message.
func WriteError(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Success: false, Message: message})
}

func write(w http.ResponseWriter, status int, v Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
