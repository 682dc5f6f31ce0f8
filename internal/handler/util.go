// Package handler implements the HTTP endpoints of the gateway.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/actualpc/phillip-therapy/internal/middleware"
	"github.com/actualpc/phillip-therapy/internal/model"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeErrorDetails writes a JSON error response with details.
func writeErrorDetails(w http.ResponseWriter, status int, message string, details interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"error":   message,
		"details": details,
	})
}

// writeValidationError writes a 400 for a malformed request.
func writeValidationError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		writeErrorDetails(w, http.StatusBadRequest, "invalid_request", verr.Problems)
		return
	}
	writeErrorDetails(w, http.StatusBadRequest, "invalid_request", []string{err.Error()})
}

// decodeJSON decodes a capped JSON body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, middleware.MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &model.ValidationError{Problems: []string{fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)}}
		}
		return &model.ValidationError{Problems: []string{"invalid request body: " + err.Error()}}
	}
	return nil
}
