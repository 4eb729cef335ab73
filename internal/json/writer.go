package json

import (
	"encoding/json"
	"net/http"

	"github.com/dgellow/x-connect/internal/log"
)

// DataResponse is the success envelope
type DataResponse struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse represents a standard JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteResponse writes a JSON response with the given status code
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// Write writes a JSON response with 200 OK status
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteData writes data wrapped in the success envelope
func WriteData(w http.ResponseWriter, data any, message string) error {
	return WriteResponse(w, http.StatusOK, DataResponse{Data: data, Message: message})
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, statusCode int, error string, details string) {
	response := ErrorResponse{
		Error:   error,
		Details: details,
	}

	if err := WriteResponse(w, statusCode, response); err != nil {
		// Fallback to plain text error if JSON encoding fails
		http.Error(w, error, statusCode)
	}
}

// Common error responses
func WriteUnauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, "Unauthorized", "")
}

func WriteInternalServerError(w http.ResponseWriter, error string, details string) {
	WriteError(w, http.StatusInternalServerError, error, details)
}

func WriteBadRequest(w http.ResponseWriter, error string) {
	WriteError(w, http.StatusBadRequest, error, "")
}

func WriteNotFound(w http.ResponseWriter, error string) {
	WriteError(w, http.StatusNotFound, error, "")
}

func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
}
