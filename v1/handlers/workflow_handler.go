package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cabepi/lab-pbm-senasa/v1/middleware"
	"github.com/cabepi/lab-pbm-senasa/v1/models"
	"github.com/cabepi/lab-pbm-senasa/v1/services"
	"github.com/cabepi/lab-pbm-senasa/v1/utils"
	"github.com/go-chi/chi/v5"
)

// maxRequestBytes bounds inbound JSON bodies
const maxRequestBytes = 1 << 20

// WorkflowHandler handles the validate and authorize steps
type WorkflowHandler struct {
	orchestrator *services.Orchestrator
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(orchestrator *services.Orchestrator) *WorkflowHandler {
	return &WorkflowHandler{orchestrator: orchestrator}
}

// StartValidation handles POST /api/v1/workflows/validate
func (h *WorkflowHandler) StartValidation(w http.ResponseWriter, r *http.Request) {
	var req models.StartValidationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	op, _ := middleware.OperatorFromContext(r.Context())
	result, err := h.orchestrator.StartValidation(r.Context(), op, &req)
	if err != nil {
		utils.RespondWithWorkflowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, result)
}

// ConfirmAuthorization handles POST /api/v1/workflows/{transactionID}/authorize.
// The body is optional.
func (h *WorkflowHandler) ConfirmAuthorization(w http.ResponseWriter, r *http.Request) {
	var req models.ConfirmAuthorizationRequest
	if err := decodeJSON(r, &req, true); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	op, _ := middleware.OperatorFromContext(r.Context())
	result, err := h.orchestrator.ConfirmAuthorization(r.Context(), op, chi.URLParam(r, "transactionID"), &req)
	if err != nil {
		utils.RespondWithWorkflowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, result)
}

// GetWorkflow handles GET /api/v1/workflows/{transactionID}
func (h *WorkflowHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.orchestrator.GetWorkflow(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		utils.RespondWithWorkflowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, wf)
}

// decodeJSON reads one JSON object. With optional set, an empty body is accepted.
func decodeJSON(r *http.Request, dst interface{}, optional bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := decoder.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
