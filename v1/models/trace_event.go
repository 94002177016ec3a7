package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActionType identifies the external interaction a trace event documents
type ActionType string

const (
	ActionValidation    ActionType = "VALIDATION"
	ActionAuthorization ActionType = "AUTHORIZATION"
	ActionVoid          ActionType = "VOID"
)

// SyntheticFailureCode is recorded when no upstream response was received
const SyntheticFailureCode = 500

// ErrTraceImmutable is returned when something tries to change a stored trace event
var ErrTraceImmutable = errors.New("trace events are append-only")

// TraceEvent is one audit row per external interaction, correlated by transaction_id
type TraceEvent struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID string     `gorm:"column:transaction_id;type:varchar(64);not null;index:idx_traces_transaction_id" json:"transaction_id"`
	UserEmail     string     `gorm:"column:user_email;type:varchar(255);not null" json:"user_email"`
	UserIP        *string    `gorm:"column:user_ip;type:varchar(64)" json:"user_ip,omitempty"`
	ActionType    ActionType `gorm:"column:action_type;type:varchar(20);not null;index:idx_traces_action_type" json:"action_type"`
	ResponseCode  int        `gorm:"column:response_code" json:"response_code"`
	DurationMs    int64      `gorm:"column:duration_ms" json:"duration_ms"`

	PharmacyCode      string  `gorm:"column:pharmacy_code;type:varchar(20);not null" json:"pharmacy_code"`
	BranchCode        *string `gorm:"column:branch_code;type:varchar(20)" json:"branch_code,omitempty"`
	AuthorizationCode *string `gorm:"column:authorization_code;type:varchar(64)" json:"authorization_code,omitempty"`

	AffiliateDocument  string `gorm:"column:affiliate_document;type:varchar(32)" json:"affiliate_document,omitempty"`
	AffiliateNSS       string `gorm:"column:affiliate_nss;type:varchar(32)" json:"affiliate_nss,omitempty"`
	AffiliateFirstName string `gorm:"column:affiliate_first_name;type:varchar(255)" json:"affiliate_first_name,omitempty"`
	AffiliateLastName  string `gorm:"column:affiliate_last_name;type:varchar(255)" json:"affiliate_last_name,omitempty"`
	AffiliateRegimen   string `gorm:"column:affiliate_regimen;type:varchar(64)" json:"affiliate_regimen,omitempty"`
	AffiliateStatus    string `gorm:"column:affiliate_status;type:varchar(64)" json:"affiliate_status,omitempty"`

	PayloadInput  datatypes.JSON `gorm:"column:payload_input" json:"payload_input,omitempty"`
	PayloadOutput datatypes.JSON `gorm:"column:payload_output" json:"payload_output,omitempty"`

	BaseModel
}

// TableName sets the table name for TraceEvent
func (TraceEvent) TableName() string {
	return "authorization_traces"
}

// BeforeCreate generates the ID and timestamp
func (e *TraceEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return e.BaseModel.BeforeCreate(tx)
}

// BeforeUpdate rejects updates
func (e *TraceEvent) BeforeUpdate(tx *gorm.DB) error {
	return ErrTraceImmutable
}

// BeforeDelete rejects deletes
func (e *TraceEvent) BeforeDelete(tx *gorm.DB) error {
	return ErrTraceImmutable
}

// Validate checks the fields every trace event must carry
func (e *TraceEvent) Validate() error {
	if e.TransactionID == "" {
		return fmt.Errorf("transaction_id is required")
	}
	if e.UserEmail == "" {
		return fmt.Errorf("user_email is required")
	}
	if e.PharmacyCode == "" {
		return fmt.Errorf("pharmacy_code is required")
	}
	switch e.ActionType {
	case ActionValidation, ActionAuthorization, ActionVoid:
	default:
		return fmt.Errorf("invalid action_type: %s", e.ActionType)
	}
	return nil
}

// WithAffiliate copies the affiliate snapshot onto the event
func (e *TraceEvent) WithAffiliate(a AffiliateSnapshot) *TraceEvent {
	e.AffiliateDocument = a.Document
	e.AffiliateNSS = a.NSS
	e.AffiliateFirstName = a.FirstName
	e.AffiliateLastName = a.LastName
	e.AffiliateRegimen = a.Regimen
	e.AffiliateStatus = a.Status
	return e
}

// SetElapsed stores the duration in milliseconds
func (e *TraceEvent) SetElapsed(d time.Duration) {
	e.DurationMs = d.Milliseconds()
}
