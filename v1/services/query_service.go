package services

import (
	"context"
	"strings"

	"github.com/cabepi/lab-pbm-senasa/v1/database"
	"github.com/cabepi/lab-pbm-senasa/v1/models"
)

// QueryService serves the read paths over authorizations and traces
type QueryService struct {
	authorizations      database.AuthorizationRepository
	traces              database.TraceRepository
	authorizationsLimit int
	tracesLimit         int
}

// NewQueryService creates the read service with listing limits
func NewQueryService(authorizations database.AuthorizationRepository, traces database.TraceRepository, authorizationsLimit, tracesLimit int) *QueryService {
	return &QueryService{
		authorizations:      authorizations,
		traces:              traces,
		authorizationsLimit: authorizationsLimit,
		tracesLimit:         tracesLimit,
	}
}

// ListAuthorizations returns the newest authorizations
func (s *QueryService) ListAuthorizations(ctx context.Context) (*models.AuthorizationListResponse, error) {
	records, err := s.authorizations.List(ctx, s.authorizationsLimit)
	if err != nil {
		return nil, classify(err)
	}
	return &models.AuthorizationListResponse{Authorizations: records, Count: len(records)}, nil
}

// GetAuthorization returns one authorization by code
func (s *QueryService) GetAuthorization(ctx context.Context, code string) (*models.AuthorizationRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, newWorkflowError(KindValidation, "authorization code is required", ErrValidation)
	}
	record, err := s.authorizations.GetByCode(ctx, code)
	if err != nil {
		return nil, classify(err)
	}
	return record, nil
}

// ListTraces returns the newest trace events with back-filled authorization codes
func (s *QueryService) ListTraces(ctx context.Context) (*models.TraceListResponse, error) {
	events, err := s.traces.List(ctx, s.tracesLimit)
	if err != nil {
		return nil, classify(err)
	}
	return &models.TraceListResponse{Traces: events, Count: len(events)}, nil
}

// Timeline returns the trace events of one transaction, oldest first
func (s *QueryService) Timeline(ctx context.Context, transactionID string) (*models.TraceListResponse, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, newWorkflowError(KindValidation, "transaction id is required", ErrValidation)
	}
	events, err := s.traces.ListByTransaction(ctx, transactionID)
	if err != nil {
		return nil, classify(err)
	}
	if len(events) == 0 {
		return nil, newWorkflowError(KindNotFound, "no trace events for transaction", ErrWorkflowNotFound).
			at(transactionID, "")
	}
	return &models.TraceListResponse{Traces: events, Count: len(events)}, nil
}
