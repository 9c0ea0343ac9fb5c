package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wallet-scanner/internal/apperrors"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an ErrorBody under an "error" key.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses a JSON request body, rejecting unknown fields.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// mapServiceError converts the typed failure taxonomy into an HTTP status
// and error code. Anything unrecognized is an internal error; the original
// message is only exposed for client-attributable failures.
func mapServiceError(err error) (int, string, string) {
	var notFound *apperrors.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound, ErrCodeNotFound, notFound.Error()
	}

	var schema *apperrors.SchemaError
	if errors.As(err, &schema) {
		return http.StatusBadRequest, ErrCodeInvalidInput, schema.Error()
	}

	var unsupported *apperrors.UnsupportedReadError
	if errors.As(err, &unsupported) {
		return http.StatusBadRequest, ErrCodeInvalidInput, unsupported.Error()
	}

	var dual *apperrors.DualSourceError
	if errors.As(err, &dual) {
		return http.StatusBadGateway, ErrCodeServiceUnavailable, dual.Error()
	}

	var allFailed *apperrors.AllResolutionsFailedError
	if errors.As(err, &allFailed) {
		return http.StatusBadGateway, ErrCodeServiceUnavailable, allFailed.Error()
	}

	var provider *apperrors.ProviderError
	if errors.As(err, &provider) {
		return http.StatusBadGateway, ErrCodeServiceUnavailable, provider.Error()
	}

	return http.StatusInternalServerError, ErrCodeInternalError, "an internal error occurred"
}
