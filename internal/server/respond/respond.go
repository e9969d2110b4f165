// Package respond writes the uniform JSON envelope returned by every route.
package respond

import (
	"encoding/json"
	"net/http"
)

// Envelope is the response shape shared by all routes. Failures carry
// Success=false with Error and Message populated.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Details any    `json:"details,omitempty"`
}

// RateLimitBody is the 429 response body.
type RateLimitBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// Success writes a success envelope carrying data.
func Success(w http.ResponseWriter, status int, data any, message string) error {
	return JSON(w, status, Envelope{Success: true, Data: data, Message: message})
}

// List writes a success envelope with the item count.
func List(w http.ResponseWriter, data any, count int) error {
	return JSON(w, http.StatusOK, Envelope{Success: true, Data: data, Count: &count})
}

// Failure writes a failure envelope.
func Failure(w http.ResponseWriter, status int, label, message string, details any) error {
	return JSON(w, status, Envelope{
		Success: false,
		Error:   label,
		Message: message,
		Details: details,
	})
}
