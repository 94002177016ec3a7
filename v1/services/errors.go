package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cabepi/lab-pbm-senasa/v1/database"
	"github.com/cabepi/lab-pbm-senasa/v1/models"
	"github.com/cabepi/lab-pbm-senasa/v1/unipago"
)

var (
	// ErrValidation represents a request validation error
	ErrValidation = errors.New("validation error")

	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrInvalidTransition = errors.New("invalid workflow transition")
	ErrWorkflowBusy      = errors.New("another step of this workflow is in progress")

	// ErrVoidPrecondition means the authorization is not AUTHORIZED; no upstream call was made
	ErrVoidPrecondition = errors.New("authorization cannot be voided")

	// ErrVoidRejected means the upstream did not confirm the void with its success message
	ErrVoidRejected = errors.New("upstream did not confirm the void")

	// ErrPersistence means a local write failed
	ErrPersistence = errors.New("persistence failure")

	ErrUpstreamAuth        = unipago.ErrUpstreamAuth
	ErrUpstreamUnavailable = unipago.ErrUpstreamUnavailable
)

// ErrorKind classifies a WorkflowError
type ErrorKind string

const (
	KindValidation        ErrorKind = "VALIDATION_ERROR"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindInvalidTransition ErrorKind = "INVALID_TRANSITION"
	KindBusy              ErrorKind = "WORKFLOW_BUSY"
	KindVoidPrecondition  ErrorKind = "VOID_PRECONDITION_FAILED"
	KindVoidRejected      ErrorKind = "VOID_REJECTED"
	KindUpstreamAuth      ErrorKind = "UPSTREAM_AUTH_ERROR"
	KindUpstreamDown      ErrorKind = "UPSTREAM_UNAVAILABLE"
	KindPersistence       ErrorKind = "PERSISTENCE_FAILURE"
	KindInternal          ErrorKind = "INTERNAL_ERROR"
)

var kindStatus = map[ErrorKind]int{
	KindValidation:        http.StatusBadRequest,
	KindNotFound:          http.StatusNotFound,
	KindInvalidTransition: http.StatusConflict,
	KindBusy:              http.StatusConflict,
	KindVoidPrecondition:  http.StatusConflict,
	KindVoidRejected:      http.StatusBadGateway,
	KindUpstreamAuth:      http.StatusBadGateway,
	KindUpstreamDown:      http.StatusBadGateway,
	KindPersistence:       http.StatusInternalServerError,
	KindInternal:          http.StatusInternalServerError,
}

// WorkflowError is the uniform failure returned at the orchestrator boundary.
// Business rejections are never WorkflowErrors.
type WorkflowError struct {
	Kind          ErrorKind
	Message       string
	HTTPStatus    int
	TransactionID string
	State         models.WorkflowState
	Err           error
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func newWorkflowError(kind ErrorKind, message string, err error) *WorkflowError {
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &WorkflowError{Kind: kind, Message: message, HTTPStatus: status, Err: err}
}

// at attaches the transaction and its current state
func (e *WorkflowError) at(transactionID string, state models.WorkflowState) *WorkflowError {
	e.TransactionID = transactionID
	e.State = state
	return e
}

// classify translates infrastructure errors into a WorkflowError
func classify(err error) *WorkflowError {
	var wfErr *WorkflowError
	switch {
	case errors.As(err, &wfErr):
		return wfErr
	case errors.Is(err, ErrValidation), errors.Is(err, unipago.ErrInvalidVoidRequest):
		return newWorkflowError(KindValidation, "invalid request", err)
	case errors.Is(err, ErrWorkflowNotFound), errors.Is(err, database.ErrAuthorizationNotFound):
		return newWorkflowError(KindNotFound, "not found", err)
	case errors.Is(err, ErrWorkflowBusy):
		return newWorkflowError(KindBusy, "workflow busy", err)
	case errors.Is(err, ErrInvalidTransition):
		return newWorkflowError(KindInvalidTransition, "transition not allowed", err)
	case errors.Is(err, ErrVoidPrecondition), errors.Is(err, database.ErrNotAuthorized):
		return newWorkflowError(KindVoidPrecondition, "authorization is not in AUTHORIZED status", err)
	case errors.Is(err, ErrUpstreamAuth):
		return newWorkflowError(KindUpstreamAuth, "could not authenticate against the authorization service", err)
	case errors.Is(err, ErrUpstreamUnavailable):
		return newWorkflowError(KindUpstreamDown, "authorization service unavailable", err)
	case errors.Is(err, ErrPersistence):
		return newWorkflowError(KindPersistence, "local persistence failed", err)
	default:
		return newWorkflowError(KindInternal, "internal error", err)
	}
}

// storeFailure classifies a workflow store error. Anything other than a
// missing snapshot or a held lock is a persistence failure.
func storeFailure(err error) *WorkflowError {
	if errors.Is(err, ErrWorkflowNotFound) || errors.Is(err, ErrWorkflowBusy) {
		return classify(err)
	}
	return newWorkflowError(KindPersistence, "workflow store unavailable", fmt.Errorf("%w: %w", ErrPersistence, err))
}
