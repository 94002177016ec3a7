package models

import "strings"

// PharmacyType distinguishes a principal pharmacy from one of its branches
type PharmacyType string

const (
	PharmacyTypePrincipal PharmacyType = "PRINCIPAL"
	PharmacyTypeSucursal  PharmacyType = "SUCURSAL"
)

// Pharmacy is the pharmacy the operator selected
type Pharmacy struct {
	Code          string       `json:"code"`
	Name          string       `json:"name,omitempty"`
	Type          PharmacyType `json:"type"`
	PrincipalCode *string      `json:"principal_code,omitempty"`
}

// ResolvedPharmacy is the (principal, branch) pair the external protocol expects
type ResolvedPharmacy struct {
	CodigoFarmacia string  `json:"codigo_farmacia"`
	CodigoSucursal *string `json:"codigo_sucursal,omitempty"`
	Name           string  `json:"name,omitempty"`
}

// AffiliateSnapshot is the plan member as seen at search time
type AffiliateSnapshot struct {
	Contract  string `json:"contract"`
	Document  string `json:"document"`
	NSS       string `json:"nss,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Regimen   string `json:"regimen,omitempty"`
	Status    string `json:"status,omitempty"`
}

// FullName joins first and last name
func (a AffiliateSnapshot) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(a.FirstName) + " " + strings.TrimSpace(a.LastName))
}
