package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cabepi/lab-pbm-senasa/monitoring"
	"github.com/cabepi/lab-pbm-senasa/v1/database"
	"github.com/cabepi/lab-pbm-senasa/v1/models"
	"github.com/cabepi/lab-pbm-senasa/v1/unipago"
	"github.com/google/uuid"
)

// Workflow step names used in logs and metrics
const (
	stepValidate  = "validate"
	stepAuthorize = "authorize"
	stepVoid      = "void"
	stepFailed    = "FAILED"
)

// Gateway is the external authorization service as seen by the orchestrator
type Gateway interface {
	Validate(ctx context.Context, req *models.AuthorizationRequest) (*unipago.CallResult, error)
	Authorize(ctx context.Context, req *models.AuthorizationRequest) (*unipago.CallResult, error)
	Void(ctx context.Context, code, pharmacyCode, reason string) (*unipago.VoidCallResult, error)
}

// Orchestrator drives a transaction through
// STARTED -> VALIDATED|REJECTED -> AUTHORIZED|REJECTED -> VOIDED.
// Business rejections come back as results; infrastructure failures come
// back as *WorkflowError.
type Orchestrator struct {
	gateway        Gateway
	authorizations database.AuthorizationRepository
	recorder       *TraceRecorder
	store          WorkflowStore
	references     *ReferenceGenerator
	now            func() time.Time
}

// NewOrchestrator wires the workflow collaborators
func NewOrchestrator(
	gateway Gateway,
	authorizations database.AuthorizationRepository,
	recorder *TraceRecorder,
	store WorkflowStore,
	references *ReferenceGenerator,
) *Orchestrator {
	if references == nil {
		references = NewReferenceGenerator()
	}
	return &Orchestrator{
		gateway:        gateway,
		authorizations: authorizations,
		recorder:       recorder,
		store:          store,
		references:     references,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// StartValidation resolves the pharmacy, prices the basket upstream and
// moves the transaction to VALIDATED or REJECTED. Nothing is committed upstream
// and no authorization row is written.
func (o *Orchestrator) StartValidation(ctx context.Context, op models.Operator, req *models.StartValidationRequest) (*models.WorkflowResult, error) {
	if req == nil {
		return nil, newWorkflowError(KindValidation, "request body is required", ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, newWorkflowError(KindValidation, err.Error(), ErrValidation)
	}
	if strings.TrimSpace(op.Email) == "" {
		return nil, newWorkflowError(KindValidation, "operator email is required", ErrValidation)
	}

	transactionID := strings.TrimSpace(req.TransactionID)
	supplied := transactionID != ""
	if !supplied {
		transactionID = uuid.NewString()
	}

	began := o.beginStep(ctx, stepValidate)
	defer o.endStep(ctx, stepValidate)

	release, err := o.store.Acquire(ctx, transactionID)
	if err != nil {
		return nil, storeFailure(err).at(transactionID, "")
	}
	defer release()

	now := o.now()
	wf := &models.Workflow{
		TransactionID: transactionID,
		State:         models.WorkflowStarted,
		CreatedAt:     now,
	}

	existing, err := o.store.Get(ctx, transactionID)
	switch {
	case err == nil:
		if existing.State != models.WorkflowStarted {
			return nil, newWorkflowError(KindInvalidTransition,
				fmt.Sprintf("transaction is already %s", existing.State), ErrInvalidTransition).
				at(transactionID, existing.State)
		}
		wf.CreatedAt = existing.CreatedAt
	case !errors.Is(err, ErrWorkflowNotFound):
		return nil, storeFailure(err).at(transactionID, "")
	case supplied:
		// The snapshot expires; the trace and authorization tables do not
		used, err := o.recorder.HasHistory(ctx, transactionID)
		if err != nil {
			return nil, newWorkflowError(KindPersistence, "failed to check transaction history",
				fmt.Errorf("%w: %w", ErrPersistence, err)).at(transactionID, "")
		}
		if used {
			return nil, newWorkflowError(KindInvalidTransition,
				"transaction id was already used", ErrInvalidTransition).at(transactionID, "")
		}
	}

	wf.OperatorEmail = op.Email
	wf.OperatorIP = op.IP
	wf.Pharmacy = ResolvePharmacy(req.Pharmacy)
	wf.Affiliate = req.Affiliate
	wf.Medications = req.Medications
	wf.ProgramCode = req.ProgramCode
	wf.ValidationReference = o.references.Next(wf.Pharmacy.CodigoFarmacia)

	start := time.Now()
	call, callErr := o.gateway.Validate(ctx, buildRequest(wf, wf.ValidationReference))
	elapsed := time.Since(start)

	event := o.newTrace(wf, op, models.ActionValidation)
	fillCallTrace(event, call, callErr, elapsed)
	o.recorder.Record(ctx, event)

	wf.UpdatedAt = o.now()
	if callErr != nil {
		o.saveSnapshot(ctx, wf)
		monitoring.RecordWorkflowStep(ctx, stepValidate, stepFailed, time.Since(began))
		return nil, classify(callErr).at(transactionID, wf.State)
	}

	wf.LastResponse = call.Response
	if call.Response.Succeeded() {
		wf.State = models.WorkflowValidated
	} else {
		wf.State = models.WorkflowRejected
		slog.Info("Validation rejected upstream",
			"transaction_id", transactionID,
			"error_number", call.Response.ErrorNumber,
			"error_message", call.Response.ErrorMessage)
	}

	if err := o.store.Save(ctx, wf); err != nil {
		monitoring.RecordWorkflowStep(ctx, stepValidate, stepFailed, time.Since(began))
		return nil, storeFailure(err).at(transactionID, models.WorkflowStarted)
	}

	monitoring.RecordWorkflowStep(ctx, stepValidate, string(wf.State), time.Since(began))
	return &models.WorkflowResult{
		TransactionID: transactionID,
		State:         wf.State,
		Response:      call.Response,
	}, nil
}

// ConfirmAuthorization commits a VALIDATED transaction upstream with a fresh
// reference id and stores the authorization locally. A local save failure
// does not undo the upstream commit; it is reported with Persisted=false.
func (o *Orchestrator) ConfirmAuthorization(ctx context.Context, op models.Operator, transactionID string, req *models.ConfirmAuthorizationRequest) (*models.WorkflowResult, error) {
	if req == nil {
		req = &models.ConfirmAuthorizationRequest{}
	}
	if err := req.Validate(); err != nil {
		return nil, newWorkflowError(KindValidation, err.Error(), ErrValidation).at(transactionID, "")
	}
	if strings.TrimSpace(op.Email) == "" {
		return nil, newWorkflowError(KindValidation, "operator email is required", ErrValidation).at(transactionID, "")
	}

	began := o.beginStep(ctx, stepAuthorize)
	defer o.endStep(ctx, stepAuthorize)

	release, err := o.store.Acquire(ctx, transactionID)
	if err != nil {
		return nil, storeFailure(err).at(transactionID, "")
	}
	defer release()

	wf, err := o.store.Get(ctx, transactionID)
	if err != nil {
		return nil, storeFailure(err).at(transactionID, "")
	}
	if !wf.State.CanTransition(models.WorkflowAuthorized) {
		return nil, newWorkflowError(KindInvalidTransition,
			fmt.Sprintf("cannot authorize a %s transaction", wf.State), ErrInvalidTransition).
			at(transactionID, wf.State)
	}

	wf.AuthorizeReference = o.references.Next(wf.Pharmacy.CodigoFarmacia)

	start := time.Now()
	call, callErr := o.gateway.Authorize(ctx, buildRequest(wf, wf.AuthorizeReference))
	elapsed := time.Since(start)

	event := o.newTrace(wf, op, models.ActionAuthorization)
	fillCallTrace(event, call, callErr, elapsed)
	if callErr == nil && call.Response.Succeeded() {
		event.AuthorizationCode = models.StringPtr(call.Response.AuthorizationCode())
	}
	o.recorder.Record(ctx, event)

	wf.UpdatedAt = o.now()
	if callErr != nil {
		o.saveSnapshot(ctx, wf)
		monitoring.RecordWorkflowStep(ctx, stepAuthorize, stepFailed, time.Since(began))
		return nil, classify(callErr).at(transactionID, wf.State)
	}

	wf.LastResponse = call.Response
	result := &models.WorkflowResult{
		TransactionID: transactionID,
		Response:      call.Response,
	}

	if !call.Response.Succeeded() {
		wf.State = models.WorkflowRejected
		o.saveSnapshot(ctx, wf)
		slog.Info("Authorization rejected upstream",
			"transaction_id", transactionID,
			"error_number", call.Response.ErrorNumber,
			"error_message", call.Response.ErrorMessage)
		monitoring.RecordWorkflowStep(ctx, stepAuthorize, string(wf.State), time.Since(began))
		result.State = wf.State
		return result, nil
	}

	code := call.Response.AuthorizationCode()
	if code == "" {
		// Nothing to store, void or reconcile: close the transaction
		wf.State = models.WorkflowRejected
		o.saveSnapshot(ctx, wf)
		slog.Error("Authorization confirmed upstream without an authorization code",
			"transaction_id", transactionID,
			"reference", wf.AuthorizeReference)
		monitoring.RecordWorkflowStep(ctx, stepAuthorize, stepFailed, time.Since(began))
		return nil, newWorkflowError(KindUpstreamDown,
			"authorization service confirmed without an authorization code", ErrUpstreamUnavailable).
			at(transactionID, wf.State)
	}

	bundle := buildBundle(authorizationSource{
		TransactionID:   transactionID,
		Pharmacy:        wf.Pharmacy,
		Affiliate:       wf.Affiliate,
		Response:        call.Response,
		AuthorizerEmail: op.Email,
		CreatedAt:       o.now(),
	}, req)

	persisted := true
	if _, err := o.authorizations.Save(ctx, bundle); err != nil {
		persisted = false
		monitoring.RecordPersistenceFailure(ctx, "save_authorization")
		slog.Error("authorization committed upstream but not persisted locally",
			"transaction_id", transactionID,
			"authorization_code", code,
			"authorized_amount", bundle.Record.AuthorizedAmount,
			"error", err)
	}

	wf.State = models.WorkflowAuthorized
	wf.AuthorizationCode = code
	o.saveSnapshot(ctx, wf)

	monitoring.RecordWorkflowStep(ctx, stepAuthorize, string(wf.State), time.Since(began))
	result.State = wf.State
	result.AuthorizationCode = code
	result.Persisted = &persisted
	return result, nil
}

// VoidAuthorization cancels an AUTHORIZED authorization upstream and marks it
// VOIDED locally. A record in any other status is refused before any
// upstream call.
func (o *Orchestrator) VoidAuthorization(ctx context.Context, op models.Operator, code string, req *models.VoidAuthorizationRequest) (*models.WorkflowResult, error) {
	code = strings.TrimSpace(code)
	if req == nil {
		return nil, newWorkflowError(KindValidation, "request body is required", ErrValidation)
	}
	if code == "" {
		return nil, newWorkflowError(KindValidation, "authorization code is required", ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, newWorkflowError(KindValidation, err.Error(), ErrValidation)
	}
	if strings.TrimSpace(op.Email) == "" {
		return nil, newWorkflowError(KindValidation, "operator email is required", ErrValidation)
	}

	began := o.beginStep(ctx, stepVoid)
	defer o.endStep(ctx, stepVoid)

	record, err := o.authorizations.GetByCode(ctx, code)
	if err != nil {
		return nil, classify(err)
	}
	if record.IsVoided() {
		return nil, newWorkflowError(KindVoidPrecondition,
			fmt.Sprintf("authorization %s is already voided", code), ErrVoidPrecondition).
			at(record.TransactionID, models.WorkflowVoided)
	}
	if record.Status != models.AuthorizationStatusAuthorized {
		return nil, newWorkflowError(KindVoidPrecondition,
			fmt.Sprintf("authorization %s is %s", code, record.Status), ErrVoidPrecondition).
			at(record.TransactionID, models.WorkflowState(record.Status))
	}

	release, err := o.store.Acquire(ctx, record.TransactionID)
	if err != nil {
		return nil, storeFailure(err).at(record.TransactionID, models.WorkflowAuthorized)
	}
	defer release()

	// An expired snapshot does not block the void
	wf, err := o.store.Get(ctx, record.TransactionID)
	if err != nil {
		if !errors.Is(err, ErrWorkflowNotFound) {
			slog.Warn("Failed to load workflow for void", "transaction_id", record.TransactionID, "error", err)
		}
		wf = nil
	}

	start := time.Now()
	call, callErr := o.gateway.Void(ctx, code, req.PharmacyCode, req.Reason)
	elapsed := time.Since(start)

	o.recorder.Record(ctx, o.voidTrace(record, wf, op, req, call, callErr, elapsed))

	if callErr != nil {
		monitoring.RecordWorkflowStep(ctx, stepVoid, stepFailed, time.Since(began))
		return nil, classify(callErr).at(record.TransactionID, models.WorkflowAuthorized)
	}
	if !call.Succeeded {
		monitoring.RecordWorkflowStep(ctx, stepVoid, stepFailed, time.Since(began))
		wfErr := newWorkflowError(KindVoidRejected, voidFailureMessage(call), ErrVoidRejected)
		return nil, wfErr.at(record.TransactionID, models.WorkflowAuthorized)
	}

	persisted := true
	err = o.authorizations.MarkVoided(ctx, code, op.Email, req.Reason, o.now())
	switch {
	case err == nil:
	case errors.Is(err, database.ErrNotAuthorized):
		// A concurrent void committed first
		monitoring.RecordWorkflowStep(ctx, stepVoid, stepFailed, time.Since(began))
		return nil, newWorkflowError(KindVoidPrecondition,
			fmt.Sprintf("authorization %s was voided concurrently", code), ErrVoidPrecondition).
			at(record.TransactionID, models.WorkflowVoided)
	default:
		persisted = false
		monitoring.RecordPersistenceFailure(ctx, "mark_voided")
		slog.Error("void committed upstream but not persisted locally",
			"transaction_id", record.TransactionID,
			"authorization_code", code,
			"error", err)
	}

	if wf != nil && wf.State.CanTransition(models.WorkflowVoided) {
		wf.State = models.WorkflowVoided
		wf.UpdatedAt = o.now()
		o.saveSnapshot(ctx, wf)
	}

	monitoring.RecordWorkflowStep(ctx, stepVoid, string(models.WorkflowVoided), time.Since(began))
	void := call.VoidResult
	return &models.WorkflowResult{
		TransactionID:     record.TransactionID,
		State:             models.WorkflowVoided,
		AuthorizationCode: code,
		Void:              &void,
		Persisted:         &persisted,
	}, nil
}

// GetWorkflow returns the live snapshot of a transaction
func (o *Orchestrator) GetWorkflow(ctx context.Context, transactionID string) (*models.Workflow, error) {
	wf, err := o.store.Get(ctx, transactionID)
	if err != nil {
		return nil, storeFailure(err).at(transactionID, "")
	}
	return wf, nil
}

func (o *Orchestrator) beginStep(ctx context.Context, step string) time.Time {
	monitoring.WorkflowInFlightAdd(ctx, step, 1)
	return time.Now()
}

func (o *Orchestrator) endStep(ctx context.Context, step string) {
	monitoring.WorkflowInFlightAdd(ctx, step, -1)
}

// saveSnapshot persists a snapshot after the upstream call; failures are logged only
func (o *Orchestrator) saveSnapshot(ctx context.Context, wf *models.Workflow) {
	if err := o.store.Save(ctx, wf); err != nil {
		slog.Error("Failed to save workflow snapshot",
			"transaction_id", wf.TransactionID,
			"state", wf.State,
			"error", err)
	}
}

func (o *Orchestrator) newTrace(wf *models.Workflow, op models.Operator, action models.ActionType) *models.TraceEvent {
	event := &models.TraceEvent{
		TransactionID: wf.TransactionID,
		UserEmail:     op.Email,
		UserIP:        models.StringPtr(op.IP),
		ActionType:    action,
		PharmacyCode:  wf.Pharmacy.CodigoFarmacia,
		BranchCode:    wf.Pharmacy.CodigoSucursal,
	}
	return event.WithAffiliate(wf.Affiliate)
}

// fillCallTrace copies the outcome of a validate or authorize call onto the event
func fillCallTrace(event *models.TraceEvent, call *unipago.CallResult, callErr error, elapsed time.Duration) {
	event.SetElapsed(elapsed)
	if call == nil {
		call = &unipago.CallResult{}
	}

	event.PayloadInput = []byte(call.RequestBody)
	event.ResponseCode = responseCode(call.Response, call.StatusCode)

	switch {
	case len(call.ResponseBody) > 0:
		event.PayloadOutput = []byte(call.ResponseBody)
	case callErr != nil:
		event.PayloadOutput = errorPayload(callErr)
	}
}

func (o *Orchestrator) voidTrace(
	record *models.AuthorizationRecord,
	wf *models.Workflow,
	op models.Operator,
	req *models.VoidAuthorizationRequest,
	call *unipago.VoidCallResult,
	callErr error,
	elapsed time.Duration,
) *models.TraceEvent {
	event := &models.TraceEvent{
		TransactionID:     record.TransactionID,
		UserEmail:         op.Email,
		UserIP:            models.StringPtr(op.IP),
		ActionType:        models.ActionVoid,
		PharmacyCode:      strings.TrimSpace(req.PharmacyCode),
		BranchCode:        record.BranchCode,
		AuthorizationCode: models.StringPtr(record.AuthorizationCode),
		AffiliateDocument: record.AffiliateDocument,
		ResponseCode:      models.SyntheticFailureCode,
	}
	if wf != nil {
		event.WithAffiliate(wf.Affiliate)
	}
	event.SetElapsed(elapsed)

	if call == nil {
		call = &unipago.VoidCallResult{}
	}
	if len(call.RequestBody) > 0 {
		event.PayloadInput = []byte(call.RequestBody)
	} else if raw, err := json.Marshal(map[string]string{
		"CodigoAutorizacion": record.AuthorizationCode,
		"CodigoFarmacia":     req.PharmacyCode,
		"Motivo":             req.Reason,
	}); err == nil {
		event.PayloadInput = raw
	}

	if call.StatusCode > 0 {
		event.ResponseCode = call.StatusCode
	}
	switch {
	case len(call.Body) > 0:
		event.PayloadOutput = []byte(call.Body)
	case callErr != nil:
		event.PayloadOutput = errorPayload(callErr)
	}
	return event
}

func voidFailureMessage(call *unipago.VoidCallResult) string {
	if call.Message != "" {
		return fmt.Sprintf("void not confirmed upstream (status %d): %s", call.StatusCode, call.Message)
	}
	return fmt.Sprintf("void not confirmed upstream (status %d)", call.StatusCode)
}
