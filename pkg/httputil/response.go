package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the error body used by every endpoint. Error is a short
// title; Message is meant for the caller and Details carries the underlying
// cause.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes an ErrorResponse with the given status code
func WriteError(w http.ResponseWriter, status int, body ErrorResponse) {
	_ = WriteJSON(w, status, body)
}

// WriteErrorMessage writes {"error": message}
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteError(w, status, ErrorResponse{Error: message})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, title, message string) {
	WriteError(w, http.StatusUnauthorized, ErrorResponse{Error: title, Message: message})
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, title, message string) {
	WriteError(w, http.StatusForbidden, ErrorResponse{Error: title, Message: message})
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, title, message string) {
	WriteError(w, http.StatusTooManyRequests, ErrorResponse{Error: title, Message: message})
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, title, message string) {
	WriteError(w, http.StatusServiceUnavailable, ErrorResponse{Error: title, Message: message})
}

// WriteInternalError writes a 500 with the cause in details
func WriteInternalError(w http.ResponseWriter, title string, err error) {
	body := ErrorResponse{Error: title}
	if err != nil {
		body.Details = err.Error()
	}
	WriteError(w, http.StatusInternalServerError, body)
}
