package models

import "time"

// WorkflowState is the per-transaction position in the authorization flow
type WorkflowState string

const (
	WorkflowStarted    WorkflowState = "STARTED"
	WorkflowValidated  WorkflowState = "VALIDATED"
	WorkflowRejected   WorkflowState = "REJECTED"
	WorkflowAuthorized WorkflowState = "AUTHORIZED"
	WorkflowVoided     WorkflowState = "VOIDED"
)

// IsTerminal reports whether no further transition is allowed
func (s WorkflowState) IsTerminal() bool {
	return s == WorkflowRejected || s == WorkflowVoided
}

// CanTransition reports whether next is reachable from s
func (s WorkflowState) CanTransition(next WorkflowState) bool {
	switch s {
	case WorkflowStarted:
		return next == WorkflowValidated || next == WorkflowRejected
	case WorkflowValidated:
		return next == WorkflowAuthorized || next == WorkflowRejected
	case WorkflowAuthorized:
		return next == WorkflowVoided
	default:
		return false
	}
}

// Workflow is the snapshot kept between the validation and the confirmation
// of one transaction.
type Workflow struct {
	TransactionID       string                 `json:"transaction_id"`
	State               WorkflowState          `json:"state"`
	OperatorEmail       string                 `json:"operator_email"`
	OperatorIP          string                 `json:"operator_ip,omitempty"`
	Pharmacy            ResolvedPharmacy       `json:"pharmacy"`
	Affiliate           AffiliateSnapshot      `json:"affiliate"`
	Medications         []Medication           `json:"medications"`
	ProgramCode         int                    `json:"program_code"`
	ValidationReference string                 `json:"validation_reference,omitempty"`
	AuthorizeReference  string                 `json:"authorize_reference,omitempty"`
	AuthorizationCode   string                 `json:"authorization_code,omitempty"`
	LastResponse        *AuthorizationResponse `json:"last_response,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// WorkflowResult is returned by every orchestrator operation
type WorkflowResult struct {
	TransactionID     string                 `json:"transaction_id"`
	State             WorkflowState          `json:"state"`
	Response          *AuthorizationResponse `json:"response,omitempty"`
	AuthorizationCode string                 `json:"authorization_code,omitempty"`
	Void              *VoidResult            `json:"void,omitempty"`
	// Persisted is false when the upstream commit succeeded but the local save failed
	Persisted *bool `json:"persisted,omitempty"`
}
