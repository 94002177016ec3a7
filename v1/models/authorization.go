package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuthorizationStatus is the lifecycle of a committed authorization.
// AUTHORIZED is the only initial state and VOIDED is terminal.
type AuthorizationStatus string

const (
	AuthorizationStatusAuthorized AuthorizationStatus = "AUTHORIZED"
	AuthorizationStatusVoided     AuthorizationStatus = "VOIDED"
)

// DefaultPrescriptionType is used when the operator does not classify the prescription
const DefaultPrescriptionType = "NORMAL"

// AuthorizationRecord is the local copy of an authorization committed upstream.
// One row per authorization_code; only the void fields ever change.
type AuthorizationRecord struct {
	AuthorizationCode string  `gorm:"column:authorization_code;primaryKey;type:varchar(64)" json:"authorization_code"`
	TransactionID     string  `gorm:"column:transaction_id;type:varchar(64);not null;index:idx_authorizations_transaction_id" json:"transaction_id"`
	PharmacyCode      string  `gorm:"column:pharmacy_code;type:varchar(20);not null" json:"pharmacy_code"`
	PharmacyName      string  `gorm:"column:pharmacy_name;type:varchar(255)" json:"pharmacy_name,omitempty"`
	BranchCode        *string `gorm:"column:branch_code;type:varchar(20)" json:"branch_code,omitempty"`

	// Affiliate snapshot frozen at authorization time
	AffiliateDocument string `gorm:"column:affiliate_document;type:varchar(32)" json:"affiliate_document"`
	AffiliateName     string `gorm:"column:affiliate_name;type:varchar(255)" json:"affiliate_name"`

	TotalAmount      float64 `gorm:"column:total_amount;type:numeric(12,2)" json:"total_amount"`
	RegulatedCopay   float64 `gorm:"column:regulated_copay;type:numeric(12,2)" json:"regulated_copay"`
	AuthorizedAmount float64 `gorm:"column:authorized_amount;type:numeric(12,2)" json:"authorized_amount"`

	DetailJSON      datatypes.JSON `gorm:"column:detail_json" json:"detail_json,omitempty"`
	AuthorizerEmail string         `gorm:"column:authorizer_email;type:varchar(255)" json:"authorizer_email"`

	Status      AuthorizationStatus `gorm:"column:status;type:varchar(20);not null;index:idx_authorizations_status" json:"status"`
	VoiderEmail *string             `gorm:"column:voider_email;type:varchar(255)" json:"voider_email,omitempty"`
	VoidedAt    *time.Time          `gorm:"column:voided_at" json:"voided_at,omitempty"`
	VoidReason  *string             `gorm:"column:void_reason;type:text" json:"void_reason,omitempty"`

	BaseModel
}

// TableName sets the table name for AuthorizationRecord
func (AuthorizationRecord) TableName() string {
	return "authorizations"
}

// BeforeCreate sets the initial status when none is given
func (a *AuthorizationRecord) BeforeCreate(tx *gorm.DB) error {
	if a.Status == "" {
		a.Status = AuthorizationStatusAuthorized
	}
	return a.BaseModel.BeforeCreate(tx)
}

// Validate checks the fields required for an insert
func (a *AuthorizationRecord) Validate() error {
	if strings.TrimSpace(a.AuthorizationCode) == "" {
		return fmt.Errorf("authorization_code is required")
	}
	if strings.TrimSpace(a.TransactionID) == "" {
		return fmt.Errorf("transaction_id is required")
	}
	if strings.TrimSpace(a.PharmacyCode) == "" {
		return fmt.Errorf("pharmacy_code is required")
	}
	if a.Status != "" && a.Status != AuthorizationStatusAuthorized {
		return fmt.Errorf("new authorizations must start as %s, got %s", AuthorizationStatusAuthorized, a.Status)
	}
	return nil
}

// IsVoided reports whether the record reached its terminal state
func (a *AuthorizationRecord) IsVoided() bool {
	return a.Status == AuthorizationStatusVoided
}

// AuthorizationCaller is the person who called in on behalf of the affiliate
type AuthorizationCaller struct {
	ID                uint   `gorm:"primaryKey" json:"-"`
	AuthorizationCode string `gorm:"column:authorization_code;type:varchar(64);not null;index" json:"authorization_code"`
	CallerName        string `gorm:"column:caller_name;type:varchar(255);not null" json:"caller_name"`
	CallerDocument    string `gorm:"column:caller_document;type:varchar(32);not null" json:"caller_document"`
	CallerPhone       string `gorm:"column:caller_phone;type:varchar(32);not null" json:"caller_phone"`
	BaseModel
}

// TableName sets the table name for AuthorizationCaller
func (AuthorizationCaller) TableName() string {
	return "authorization_callers"
}

// Prescription is the prescription metadata attached to an authorization.
// FilePath points at storage owned elsewhere.
type Prescription struct {
	ID                uint       `gorm:"primaryKey" json:"-"`
	AuthorizationCode string     `gorm:"column:authorization_code;type:varchar(64);not null;index" json:"authorization_code"`
	PrescriberName    string     `gorm:"column:prescriber_name;type:varchar(255)" json:"prescriber_name"`
	PrescriptionDate  *time.Time `gorm:"column:prescription_date;type:date" json:"prescription_date,omitempty"`
	Diagnosis         string     `gorm:"column:diagnosis;type:text" json:"diagnosis"`
	IsChronic         bool       `gorm:"column:is_chronic" json:"is_chronic"`
	FilePath          *string    `gorm:"column:file_path;type:text" json:"file_path,omitempty"`
	PrescriptionType  string     `gorm:"column:prescription_type;type:varchar(50)" json:"prescription_type"`
	BaseModel
}

// TableName sets the table name for Prescription
func (Prescription) TableName() string {
	return "prescriptions"
}

// BeforeCreate applies the default prescription type
func (p *Prescription) BeforeCreate(tx *gorm.DB) error {
	if p.PrescriptionType == "" {
		p.PrescriptionType = DefaultPrescriptionType
	}
	return p.BaseModel.BeforeCreate(tx)
}

// AuthorizationBundle is everything written by a single save.
// Caller and Prescription are optional.
type AuthorizationBundle struct {
	Record       *AuthorizationRecord
	Caller       *AuthorizationCaller
	Prescription *Prescription
}
