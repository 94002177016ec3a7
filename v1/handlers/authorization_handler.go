package handlers

import (
	"net/http"

	"github.com/cabepi/lab-pbm-senasa/v1/middleware"
	"github.com/cabepi/lab-pbm-senasa/v1/models"
	"github.com/cabepi/lab-pbm-senasa/v1/services"
	"github.com/cabepi/lab-pbm-senasa/v1/utils"
	"github.com/go-chi/chi/v5"
)

// AuthorizationHandler serves committed authorizations and their void
type AuthorizationHandler struct {
	orchestrator *services.Orchestrator
	queries      *services.QueryService
}

// NewAuthorizationHandler creates a new authorization handler
func NewAuthorizationHandler(orchestrator *services.Orchestrator, queries *services.QueryService) *AuthorizationHandler {
	return &AuthorizationHandler{orchestrator: orchestrator, queries: queries}
}

// ListAuthorizations handles GET /api/v1/authorizations
func (h *AuthorizationHandler) ListAuthorizations(w http.ResponseWriter, r *http.Request) {
	list, err := h.queries.ListAuthorizations(r.Context())
	if err != nil {
		utils.RespondWithWorkflowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

// GetAuthorization handles GET /api/v1/authorizations/{code}
func (h *AuthorizationHandler) GetAuthorization(w http.ResponseWriter, r *http.Request) {
	record, err := h.queries.GetAuthorization(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		utils.RespondWithWorkflowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, record)
}

// VoidAuthorization handles POST /api/v1/authorizations/{code}/void
func (h *AuthorizationHandler) VoidAuthorization(w http.ResponseWriter, r *http.Request) {
	var req models.VoidAuthorizationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	op, _ := middleware.OperatorFromContext(r.Context())
	result, err := h.orchestrator.VoidAuthorization(r.Context(), op, chi.URLParam(r, "code"), &req)
	if err != nil {
		utils.RespondWithWorkflowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, result)
}
