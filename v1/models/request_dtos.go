package models

import (
	"fmt"
	"strings"
	"time"
)

// PrescriptionDateLayout is the accepted prescription_date format
const PrescriptionDateLayout = "2006-01-02"

// Operator is the authenticated person driving a workflow
type Operator struct {
	Email string
	IP    string
}

// StartValidationRequest is the input of startValidation
type StartValidationRequest struct {
	TransactionID string            `json:"transaction_id,omitempty"`
	Pharmacy      Pharmacy          `json:"pharmacy"`
	Affiliate     AffiliateSnapshot `json:"affiliate"`
	Medications   []Medication      `json:"medications"`
	ProgramCode   int               `json:"program_code,omitempty"`
}

// Validate checks the request before any external call is made
func (r *StartValidationRequest) Validate() error {
	if strings.TrimSpace(r.Pharmacy.Code) == "" {
		return fmt.Errorf("pharmacy.code is required")
	}
	switch r.Pharmacy.Type {
	case PharmacyTypePrincipal, PharmacyTypeSucursal:
	default:
		return fmt.Errorf("pharmacy.type must be %s or %s", PharmacyTypePrincipal, PharmacyTypeSucursal)
	}
	if strings.TrimSpace(r.Affiliate.Contract) == "" {
		return fmt.Errorf("affiliate.contract is required")
	}
	if len(r.Medications) == 0 {
		return fmt.Errorf("at least one medication is required")
	}
	for i, m := range r.Medications {
		if strings.TrimSpace(m.CodigoMedicamento) == "" {
			return fmt.Errorf("medications[%d].CodigoMedicamento is required", i)
		}
		if m.Cantidad <= 0 {
			return fmt.Errorf("medications[%d].Cantidad must be positive", i)
		}
		if m.Precio < 0 {
			return fmt.Errorf("medications[%d].Precio must not be negative", i)
		}
	}
	if r.ProgramCode < 0 {
		return fmt.Errorf("program_code must not be negative")
	}
	return nil
}

// CallerInput is the person calling in for the affiliate
type CallerInput struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
}

// Complete reports whether all three caller fields are present
func (c *CallerInput) Complete() bool {
	return c != nil &&
		strings.TrimSpace(c.Name) != "" &&
		strings.TrimSpace(c.Document) != "" &&
		strings.TrimSpace(c.Phone) != ""
}

// PrescriptionInput is the prescription metadata collected during the flow
type PrescriptionInput struct {
	PrescriberName   string `json:"prescriber_name"`
	PrescriptionDate string `json:"prescription_date,omitempty"`
	Diagnosis        string `json:"diagnosis"`
	IsChronic        bool   `json:"is_chronic"`
	FilePath         string `json:"file_path,omitempty"`
	PrescriptionType string `json:"prescription_type,omitempty"`
}

// ConfirmAuthorizationRequest is the input of confirmAuthorization
type ConfirmAuthorizationRequest struct {
	Caller       *CallerInput       `json:"caller,omitempty"`
	Prescription *PrescriptionInput `json:"prescription,omitempty"`
}

// Validate checks the optional metadata
func (r *ConfirmAuthorizationRequest) Validate() error {
	if r.Prescription != nil && r.Prescription.PrescriptionDate != "" {
		if _, err := time.Parse(PrescriptionDateLayout, r.Prescription.PrescriptionDate); err != nil {
			return fmt.Errorf("prescription.prescription_date must use YYYY-MM-DD: %w", err)
		}
	}
	return nil
}

// VoidAuthorizationRequest is the input of voidAuthorization
type VoidAuthorizationRequest struct {
	Reason       string `json:"reason"`
	PharmacyCode string `json:"pharmacy_code"`
}

// Validate enforces the void preconditions that do not need the store
func (r *VoidAuthorizationRequest) Validate() error {
	if strings.TrimSpace(r.Reason) == "" {
		return fmt.Errorf("reason is required")
	}
	if strings.TrimSpace(r.PharmacyCode) == "" {
		return fmt.Errorf("pharmacy_code is required")
	}
	return nil
}
