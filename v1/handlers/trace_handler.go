package handlers

import (
	"net/http"

	"github.com/cabepi/lab-pbm-senasa/v1/services"
	"github.com/cabepi/lab-pbm-senasa/v1/utils"
	"github.com/go-chi/chi/v5"
)

// TraceHandler serves the audit trail
type TraceHandler struct {
	queries *services.QueryService
}

// NewTraceHandler creates a new trace handler
func NewTraceHandler(queries *services.QueryService) *TraceHandler {
	return &TraceHandler{queries: queries}
}

// ListTraces handles GET /api/v1/traces
func (h *TraceHandler) ListTraces(w http.ResponseWriter, r *http.Request) {
	list, err := h.queries.ListTraces(r.Context())
	if err != nil {
		utils.RespondWithWorkflowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

// GetTimeline handles GET /api/v1/traces/{transactionID}
func (h *TraceHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := h.queries.Timeline(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		utils.RespondWithWorkflowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, timeline)
}
