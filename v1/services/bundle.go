package services

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cabepi/lab-pbm-senasa/v1/models"
)

// authorizationSource is everything a local authorization row is built from
type authorizationSource struct {
	TransactionID   string
	Pharmacy        models.ResolvedPharmacy
	Affiliate       models.AffiliateSnapshot
	Response        *models.AuthorizationResponse
	AuthorizerEmail string
	CreatedAt       time.Time
}

// buildBundle maps a committed authorization onto the rows written by a save.
// Caller and prescription rows are attached only when the metadata is usable.
func buildBundle(src authorizationSource, confirm *models.ConfirmAuthorizationRequest) *models.AuthorizationBundle {
	record := &models.AuthorizationRecord{
		AuthorizationCode: src.Response.AuthorizationCode(),
		TransactionID:     src.TransactionID,
		PharmacyCode:      src.Pharmacy.CodigoFarmacia,
		PharmacyName:      src.Pharmacy.Name,
		BranchCode:        src.Pharmacy.CodigoSucursal,
		AffiliateDocument: src.Affiliate.Document,
		AffiliateName:     src.Affiliate.FullName(),
		AuthorizerEmail:   src.AuthorizerEmail,
		Status:            models.AuthorizationStatusAuthorized,
	}
	record.CreatedAt = src.CreatedAt

	if detail := src.Response.Detalle; detail != nil {
		record.TotalAmount = detail.TotalFactura
		record.RegulatedCopay = detail.MontoCopago
		record.AuthorizedAmount = detail.MontoAutorizado
		if raw, err := json.Marshal(detail); err == nil {
			record.DetailJSON = raw
		}
	}

	bundle := &models.AuthorizationBundle{Record: record}
	if confirm == nil {
		return bundle
	}

	if confirm.Caller.Complete() {
		bundle.Caller = &models.AuthorizationCaller{
			CallerName:     strings.TrimSpace(confirm.Caller.Name),
			CallerDocument: strings.TrimSpace(confirm.Caller.Document),
			CallerPhone:    strings.TrimSpace(confirm.Caller.Phone),
		}
	}

	if p := confirm.Prescription; p != nil && hasPrescription(p) {
		prescription := &models.Prescription{
			PrescriberName:   strings.TrimSpace(p.PrescriberName),
			Diagnosis:        strings.TrimSpace(p.Diagnosis),
			IsChronic:        p.IsChronic,
			FilePath:         models.StringPtr(strings.TrimSpace(p.FilePath)),
			PrescriptionType: strings.TrimSpace(p.PrescriptionType),
		}
		if date, err := time.Parse(models.PrescriptionDateLayout, p.PrescriptionDate); err == nil {
			prescription.PrescriptionDate = &date
		}
		bundle.Prescription = prescription
	}
	return bundle
}

func hasPrescription(p *models.PrescriptionInput) bool {
	return strings.TrimSpace(p.PrescriberName) != "" ||
		strings.TrimSpace(p.Diagnosis) != "" ||
		strings.TrimSpace(p.FilePath) != "" ||
		p.PrescriptionDate != ""
}

// buildRequest is the upstream payload for a workflow and reference id
func buildRequest(wf *models.Workflow, reference string) *models.AuthorizationRequest {
	return &models.AuthorizationRequest{
		CodigoFarmacia:      wf.Pharmacy.CodigoFarmacia,
		CodigoSucursal:      wf.Pharmacy.CodigoSucursal,
		ContratoAfiliado:    wf.Affiliate.Contract,
		CodigoProgramaPyP:   wf.ProgramCode,
		AutorizacionExterna: reference,
		Medicamentos:        wf.Medications,
	}
}
