package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexString_AcceptsStringAndNumber(t *testing.T) {
	var resp AuthorizationResponse
	require.NoError(t, json.Unmarshal([]byte(`{"ErrorNumber":1000,"detalle":{"CodigoAutorizacion":987654}}`), &resp))
	assert.Equal(t, "987654", resp.AuthorizationCode())

	require.NoError(t, json.Unmarshal([]byte(`{"ErrorNumber":1000,"detalle":{"CodigoAutorizacion":"987654"}}`), &resp))
	assert.Equal(t, "987654", resp.AuthorizationCode())

	var f FlexString
	require.NoError(t, json.Unmarshal([]byte(`null`), &f))
	assert.Equal(t, "", f.String())
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &f))
}

func TestAuthorizationResponse_CodeFallsBackToNumeroAutorizacion(t *testing.T) {
	var resp AuthorizationResponse
	require.NoError(t, json.Unmarshal([]byte(`{"ErrorNumber":1000,"NumeroAutorizacion":"555","detalle":{"TotalFactura":10}}`), &resp))
	assert.True(t, resp.Succeeded())
	assert.Equal(t, "555", resp.AuthorizationCode())

	var empty *AuthorizationResponse
	assert.False(t, empty.Succeeded())
	assert.Equal(t, "", empty.AuthorizationCode())
}

func TestUpstreamErrorBody_Normalize(t *testing.T) {
	t.Run("respuesta with errores", func(t *testing.T) {
		var body UpstreamErrorBody
		require.NoError(t, json.Unmarshal([]byte(`{"respuesta":{"codigo":2001,"mensaje":"Cobertura insuficiente"},"errores":["Medicamento 1 excede","Medicamento 2 no existe"]}`), &body))

		resp, ok := body.Normalize()
		require.True(t, ok)
		assert.Equal(t, 2001, resp.ErrorNumber)
		assert.Equal(t, "Cobertura insuficiente\n\n• Medicamento 1 excede\n• Medicamento 2 no existe", resp.ErrorMessage)
	})

	t.Run("ErrorNumber body", func(t *testing.T) {
		var body UpstreamErrorBody
		require.NoError(t, json.Unmarshal([]byte(`{"ErrorNumber":3005,"ErrorMessage":"Afiliado inactivo"}`), &body))

		resp, ok := body.Normalize()
		require.True(t, ok)
		assert.Equal(t, 3005, resp.ErrorNumber)
		assert.Equal(t, "Afiliado inactivo", resp.ErrorMessage)
	})

	t.Run("unrecognized body", func(t *testing.T) {
		var body UpstreamErrorBody
		require.NoError(t, json.Unmarshal([]byte(`{"message":"gateway timeout"}`), &body))
		_, ok := body.Normalize()
		assert.False(t, ok)
	})
}

func TestWorkflowState_Transitions(t *testing.T) {
	assert.True(t, WorkflowStarted.CanTransition(WorkflowValidated))
	assert.True(t, WorkflowStarted.CanTransition(WorkflowRejected))
	assert.True(t, WorkflowValidated.CanTransition(WorkflowAuthorized))
	assert.True(t, WorkflowValidated.CanTransition(WorkflowRejected))
	assert.True(t, WorkflowAuthorized.CanTransition(WorkflowVoided))

	assert.False(t, WorkflowStarted.CanTransition(WorkflowAuthorized), "authorize requires a validation")
	assert.False(t, WorkflowAuthorized.CanTransition(WorkflowValidated))
	assert.False(t, WorkflowRejected.CanTransition(WorkflowValidated))
	assert.False(t, WorkflowVoided.CanTransition(WorkflowAuthorized))

	assert.True(t, WorkflowRejected.IsTerminal())
	assert.True(t, WorkflowVoided.IsTerminal())
	assert.False(t, WorkflowValidated.IsTerminal())
}

func TestStartValidationRequest_Validate(t *testing.T) {
	valid := StartValidationRequest{
		Pharmacy:    Pharmacy{Code: "105", Type: PharmacyTypePrincipal},
		Affiliate:   AffiliateSnapshot{Contract: "C-1"},
		Medications: []Medication{{CodigoMedicamento: "M1", Cantidad: 1, Precio: 10}},
	}
	assert.NoError(t, valid.Validate())

	missingPharmacy := valid
	missingPharmacy.Pharmacy = Pharmacy{Type: PharmacyTypePrincipal}
	assert.Error(t, missingPharmacy.Validate())

	badType := valid
	badType.Pharmacy = Pharmacy{Code: "1", Type: "KIOSK"}
	assert.Error(t, badType.Validate())

	noMeds := valid
	noMeds.Medications = nil
	assert.Error(t, noMeds.Validate())

	zeroQty := valid
	zeroQty.Medications = []Medication{{CodigoMedicamento: "M1", Cantidad: 0, Precio: 10}}
	assert.Error(t, zeroQty.Validate())
}

func TestVoidAndConfirmRequests_Validate(t *testing.T) {
	assert.Error(t, (&VoidAuthorizationRequest{PharmacyCode: "20414"}).Validate())
	assert.Error(t, (&VoidAuthorizationRequest{Reason: "  ", PharmacyCode: "20414"}).Validate())
	assert.Error(t, (&VoidAuthorizationRequest{Reason: "duplicado"}).Validate())
	assert.NoError(t, (&VoidAuthorizationRequest{Reason: "duplicado", PharmacyCode: "20414"}).Validate())

	assert.NoError(t, (&ConfirmAuthorizationRequest{}).Validate())
	assert.NoError(t, (&ConfirmAuthorizationRequest{Prescription: &PrescriptionInput{PrescriptionDate: "2025-01-31"}}).Validate())
	assert.Error(t, (&ConfirmAuthorizationRequest{Prescription: &PrescriptionInput{PrescriptionDate: "31/01/2025"}}).Validate())

	assert.True(t, (&CallerInput{Name: "Ana", Document: "001", Phone: "809"}).Complete())
	assert.False(t, (&CallerInput{Name: "Ana", Document: "001"}).Complete())
	var nilCaller *CallerInput
	assert.False(t, nilCaller.Complete())
}

func TestAuthorizationRecord_Validate(t *testing.T) {
	rec := AuthorizationRecord{AuthorizationCode: "1", TransactionID: "tx", PharmacyCode: "20414"}
	assert.NoError(t, rec.Validate())

	rec.Status = AuthorizationStatusVoided
	assert.Error(t, rec.Validate(), "records are inserted as AUTHORIZED only")

	assert.Error(t, (&AuthorizationRecord{TransactionID: "tx", PharmacyCode: "1"}).Validate())
}

func TestTraceEvent_Validate(t *testing.T) {
	e := &TraceEvent{TransactionID: "tx", UserEmail: "op@example.com", PharmacyCode: "1", ActionType: ActionVoid}
	assert.NoError(t, e.Validate())

	e.ActionType = "LOOKUP"
	assert.Error(t, e.Validate())

	e.WithAffiliate(AffiliateSnapshot{Document: "001", FirstName: "Ana", LastName: "Pérez"})
	assert.Equal(t, "001", e.AffiliateDocument)
	assert.Equal(t, "Pérez", e.AffiliateLastName)
}

func TestAffiliateSnapshot_FullName(t *testing.T) {
	assert.Equal(t, "Ana Pérez", AffiliateSnapshot{FirstName: " Ana ", LastName: "Pérez"}.FullName())
	assert.Equal(t, "Ana", AffiliateSnapshot{FirstName: "Ana"}.FullName())
}
