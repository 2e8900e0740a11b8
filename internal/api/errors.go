package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// Common error codes
const (
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondCategorized maps err to its HTTP status. The causes of internal
// errors are logged, not returned.
func respondCategorized(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	status := apperrors.GetHTTPStatusCode(catErr)
	logger := logging.FromContext(r.Context()).WithField("path", r.URL.Path)

	switch {
	case apperrors.IsSystemError(catErr):
		logger.WithError(err).Error("Request failed")
		if status == http.StatusInternalServerError {
			respondError(w, status, ErrCodeInternalError, "An internal error occurred", nil)
			return
		}
	case apperrors.IsUserError(catErr):
		logger.WithField("code", catErr.Code).Debug("Request rejected")
	}

	svcErr := catErr.ToServiceError()
	respondError(w, status, svcErr.Code, svcErr.Message, svcErr.Details)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
