package utils

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cabepi/lab-pbm-senasa/v1/models"
	"github.com/cabepi/lab-pbm-senasa/v1/services"
)

// RespondWithJSON sends a JSON response with the given status code
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// headers are already written
		slog.Error("Failed to encode JSON response", "error", err, "statusCode", statusCode)
		return
	}
}

// RespondWithError sends a JSON error response with the given status code
func RespondWithError(w http.ResponseWriter, statusCode int, message string, err error) {
	errorResp := models.ErrorResponse{
		Error: message,
	}
	if err != nil {
		errorResp.Details = err.Error()
	}

	RespondWithJSON(w, statusCode, errorResp)
}

// RespondWithWorkflowError maps a service error onto its HTTP status and code.
// Internal error details are logged, not returned.
func RespondWithWorkflowError(w http.ResponseWriter, err error) {
	var wfErr *services.WorkflowError
	if !errors.As(err, &wfErr) {
		slog.Error("Unclassified service error", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	resp := models.ErrorResponse{
		Error: wfErr.Message,
		Code:  string(wfErr.Kind),
	}

	switch {
	case wfErr.HTTPStatus >= http.StatusInternalServerError:
		slog.Error("Workflow step failed",
			"kind", wfErr.Kind,
			"transaction_id", wfErr.TransactionID,
			"error", wfErr.Err)
	case wfErr.Err != nil && wfErr.Kind != services.KindValidation:
		resp.Details = wfErr.Err.Error()
	}

	RespondWithJSON(w, wfErr.HTTPStatus, resp)
}
