// Package api provides HTTP response utilities for CareCheck.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/CareCheck/internal/models"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal the response to JSON first to catch encoding errors before writing headers
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeError maps err onto the error taxonomy: validation 422, not found 404,
// conflict 409 and anything else 500 without internal details.
func writeError(w http.ResponseWriter, op string, err error) {
	if ve, ok := models.AsValidationError(err); ok {
		slog.Warn(op+": validation failed", "error", err)
		writeJSONResponse(w, http.StatusUnprocessableEntity, models.ValidationFailure(ve))
		return
	}
	switch {
	case errors.Is(err, models.ErrNotFound):
		slog.Warn(op+": not found", "error", err)
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	case errors.Is(err, models.ErrConflict):
		slog.Warn(op+": conflict", "error", err)
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	default:
		slog.Error(op+": failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}

// decodeJSON reads the request body into v. A malformed body gets a 400 and false.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v interface{}) bool {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Warn(op+": failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return false
	}
	return true
}
