package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"harga-pangan/database"
	"harga-pangan/engine"
	"harga-pangan/govapi"
)

// errorResponse is the body of every non-2xx response
type errorResponse struct {
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API Error: failed to encode response: %v", err)
	}
}

// writeError sends a JSON error body. result carries partial outcomes when present.
func writeError(w http.ResponseWriter, code int, message string, result any) {
	writeJSON(w, code, errorResponse{Message: message, Result: result})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var validationErr *database.ValidationError
	var conflictErr *database.ConflictError
	var notFoundErr *database.NotFoundError
	var upstreamErr *engine.UpstreamError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotConfigured):
		return http.StatusPreconditionFailed
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError logs the error and sends the mapped JSON error response.
// Internal errors are not exposed to the caller.
func respondWithError(w http.ResponseWriter, err error, result any) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		message = "internal server error"
	}
	log.Printf("API Error [%d]: %v", code, err)
	writeError(w, code, message, result)
}

// queryValue returns the first non-empty query parameter among the given names
func queryValue(r *http.Request, names ...string) string {
	query := r.URL.Query()
	for _, name := range names {
		if v := query.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// getIntParam retrieves an integer query parameter with default value and optional range validation
func getIntParam(r *http.Request, key string, defaultVal int, minVal, maxVal *int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}

	if minVal != nil && val < *minVal {
		return defaultVal
	}
	if maxVal != nil && val > *maxVal {
		return defaultVal
	}

	return val
}

// optionalID parses an optional positive id parameter
func optionalID(r *http.Request, field string, names ...string) (*int64, error) {
	raw := queryValue(r, names...)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, database.NewValidationErrorWithValue(field, "must be a positive integer", raw)
	}
	return &id, nil
}

// requiredID parses a mandatory positive id parameter
func requiredID(r *http.Request, field string, names ...string) (int64, error) {
	id, err := optionalID(r, field, names...)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, database.NewValidationError(field, "is required")
	}
	return *id, nil
}

// optionalDate parses an optional calendar date parameter
func optionalDate(r *http.Request, field string, names ...string) (*time.Time, error) {
	raw := queryValue(r, names...)
	if raw == "" {
		return nil, nil
	}
	return parseDateField(field, raw)
}

// parseDateField parses a calendar date, reporting failures against field
func parseDateField(field, raw string) (*time.Time, error) {
	date, err := govapi.ParseDate(raw)
	if err != nil {
		return nil, database.NewValidationErrorWithValue(field, "must be a date (YYYY-MM-DD)", raw)
	}
	return &date, nil
}

// decodeBody decodes a JSON request body into dest
func decodeBody(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return database.NewValidationError("body", "invalid JSON request body")
	}
	return nil
}
