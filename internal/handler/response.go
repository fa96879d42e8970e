package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"subfeed/internal/middleware"
	"subfeed/pkg/errors"
	"subfeed/pkg/logger"
)

// Response is the envelope of every successful reply
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

func writeSuccess(w http.ResponseWriter, log *logger.Logger, data interface{}, message string) {
	writeJSON(w, log, http.StatusOK, Response{Success: true, Data: data, Message: message})
}

// writeError writes err as an errors.ErrorResponse. Anything that is not an
// *errors.AppError is reported as unknown.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	appErr := errors.FromError(err)

	entry := log.WithFields(map[string]interface{}{
		"error_type": appErr.Type,
		"path":       r.URL.Path,
		"request_id": middleware.GetRequestID(r.Context()),
	}).WithError(appErr)
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	var response errors.ErrorResponse
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.RequestID = middleware.GetRequestID(r.Context())
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	writeJSON(w, log, appErr.StatusCode, response)
}
