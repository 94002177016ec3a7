package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cabepi/lab-pbm-senasa/monitoring"
	"github.com/cabepi/lab-pbm-senasa/v1/database"
	"github.com/cabepi/lab-pbm-senasa/v1/models"
)

const traceWriteTimeout = 5 * time.Second

// TraceRecorder appends trace events. Record never fails: a write error is
// logged and counted, and the workflow step carries on.
type TraceRecorder struct {
	repo database.TraceRepository
}

// NewTraceRecorder creates a recorder over the trace repository
func NewTraceRecorder(repo database.TraceRepository) *TraceRecorder {
	return &TraceRecorder{repo: repo}
}

// Record writes the event, detached from the caller's cancellation so a
// client that hung up still leaves an audit row.
func (r *TraceRecorder) Record(ctx context.Context, event *models.TraceEvent) {
	if r == nil || r.repo == nil || event == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), traceWriteTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			slog.Error("Trace recorder panicked",
				"transaction_id", event.TransactionID,
				"action_type", event.ActionType,
				"panic", p)
			monitoring.RecordTraceFailure(ctx, string(event.ActionType))
		}
	}()

	if err := r.repo.Create(writeCtx, event); err != nil {
		slog.Error("Failed to record trace event",
			"transaction_id", event.TransactionID,
			"action_type", event.ActionType,
			"response_code", event.ResponseCode,
			"error", err)
		monitoring.RecordTraceFailure(ctx, string(event.ActionType))
	}
}

// HasHistory reports whether the transaction id was already used: any
// trace event or authorization row carrying it counts.
func (r *TraceRecorder) HasHistory(ctx context.Context, transactionID string) (bool, error) {
	if r == nil || r.repo == nil {
		return false, nil
	}
	return r.repo.ExistsForTransaction(ctx, transactionID)
}

// errorPayload is the payload_output of a call that produced no upstream body
func errorPayload(err error) []byte {
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return body
}

// responseCode picks the trace response_code for validate and authorize:
// the normalized ErrorNumber, else the HTTP status, else the synthetic failure code.
func responseCode(result *models.AuthorizationResponse, status int) int {
	if result != nil {
		return result.ErrorNumber
	}
	if status > 0 {
		return status
	}
	return models.SyntheticFailureCode
}
