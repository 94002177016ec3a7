package handlers

import (
	"github.com/cabepi/lab-pbm-senasa/v1/middleware"
	"github.com/cabepi/lab-pbm-senasa/v1/services"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the /api/v1 routes behind operator authentication
func RegisterRoutes(r chi.Router, orchestrator *services.Orchestrator, queries *services.QueryService, auth *middleware.OperatorAuth) {
	workflows := NewWorkflowHandler(orchestrator)
	authorizations := NewAuthorizationHandler(orchestrator, queries)
	traces := NewTraceHandler(queries)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Post("/workflows/validate", workflows.StartValidation)
		r.Post("/workflows/{transactionID}/authorize", workflows.ConfirmAuthorization)
		r.Get("/workflows/{transactionID}", workflows.GetWorkflow)

		r.Get("/authorizations", authorizations.ListAuthorizations)
		r.Get("/authorizations/{code}", authorizations.GetAuthorization)
		r.Post("/authorizations/{code}/void", authorizations.VoidAuthorization)

		r.Get("/traces", traces.ListTraces)
		r.Get("/traces/{transactionID}", traces.GetTimeline)
	})
}
