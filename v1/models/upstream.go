package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SuccessErrorNumber is the ErrorNumber the external service returns on full success
const SuccessErrorNumber = 1000

// CoveredLineCode marks a medication line the plan covers
const CoveredLineCode = 1

// FlexString decodes a JSON string or number into a string.
// The external service is inconsistent about codes.
type FlexString string

// UnmarshalJSON accepts "987654", 987654 and null
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("code must be a string or number: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the decoded value
func (f FlexString) String() string {
	return string(f)
}

// Medication is one line of the basket sent to the external service
type Medication struct {
	CodigoMedicamento string  `json:"CodigoMedicamento"`
	Cantidad          float64 `json:"Cantidad"`
	Precio            float64 `json:"Precio"`
	Nombre            string  `json:"Nombre,omitempty"`
}

// AuthorizationRequest is the payload shared by Validar and Autorizar
type AuthorizationRequest struct {
	CodigoFarmacia      string       `json:"CodigoFarmacia"`
	CodigoSucursal      *string      `json:"CodigoSucursal"`
	ContratoAfiliado    string       `json:"ContratoAfiliado"`
	CodigoProgramaPyP   int          `json:"CodigoProgramaPyP"`
	AutorizacionExterna string       `json:"AutorizacionExterna"`
	Medicamentos        []Medication `json:"Medicamentos"`
}

// MedicationDetail is the per-line outcome. CodError 1 means covered.
type MedicationDetail struct {
	CodError        int        `json:"CodError"`
	Mensaje         string     `json:"Mensaje"`
	Codigo          FlexString `json:"Codigo"`
	TotalFactura    float64    `json:"TotalFactura"`
	CoberturaBasico float64    `json:"CoberturaBasico"`
	CoberturaPlan   float64    `json:"CoberturaPlan"`
	MontoAutorizado float64    `json:"MontoAutorizado"`
	MontoCopago     float64    `json:"MontoCopago"`
}

// Covered reports whether the plan covers this line
func (m MedicationDetail) Covered() bool {
	return m.CodError == CoveredLineCode
}

// AuthorizationDetail is the financial breakdown of a validation or authorization
type AuthorizationDetail struct {
	CodigoAutorizacion FlexString         `json:"CodigoAutorizacion,omitempty"`
	CoberturaBasico    float64            `json:"CoberturaBasico"`
	CoberturaPlan      float64            `json:"CoberturaPlan"`
	MontoAutorizado    float64            `json:"MontoAutorizado"`
	MontoCopago        float64            `json:"MontoCopago"`
	TotalFactura       float64            `json:"TotalFactura"`
	Medicamentos       []MedicationDetail `json:"medicamentos"`
}

// Respuesta is the error envelope the external service uses on some failures
type Respuesta struct {
	Codigo  int    `json:"codigo"`
	Mensaje string `json:"mensaje"`
}

// AuthorizationResponse is the normalized result of validate and authorize
type AuthorizationResponse struct {
	ErrorNumber        int                  `json:"ErrorNumber"`
	ErrorMessage       string               `json:"ErrorMessage"`
	NumeroAutorizacion FlexString           `json:"NumeroAutorizacion,omitempty"`
	Respuesta          *Respuesta           `json:"respuesta,omitempty"`
	Detalle            *AuthorizationDetail `json:"detalle,omitempty"`
}

// Succeeded reports a full success (ErrorNumber 1000)
func (r *AuthorizationResponse) Succeeded() bool {
	return r != nil && r.ErrorNumber == SuccessErrorNumber
}

// AuthorizationCode returns the code issued on commit: detalle.CodigoAutorizacion
// first, then the top-level NumeroAutorizacion.
func (r *AuthorizationResponse) AuthorizationCode() string {
	if r == nil {
		return ""
	}
	if r.Detalle != nil && strings.TrimSpace(r.Detalle.CodigoAutorizacion.String()) != "" {
		return strings.TrimSpace(r.Detalle.CodigoAutorizacion.String())
	}
	return strings.TrimSpace(r.NumeroAutorizacion.String())
}

// UpstreamErrorBody is the body of a non-2xx answer carrying a business error
type UpstreamErrorBody struct {
	ErrorNumber  *int       `json:"ErrorNumber"`
	ErrorMessage string     `json:"ErrorMessage"`
	Respuesta    *Respuesta `json:"respuesta"`
	Errores      []string   `json:"errores"`
}

// Normalize turns an error body into a normalized response. ok is false
// when the body carries neither respuesta.codigo nor ErrorNumber.
func (b *UpstreamErrorBody) Normalize() (*AuthorizationResponse, bool) {
	if b.Respuesta != nil && b.Respuesta.Codigo != 0 {
		message := b.Respuesta.Mensaje
		if message == "" {
			message = "Error de autorización"
		}
		if len(b.Errores) > 0 {
			lines := make([]string, 0, len(b.Errores))
			for _, e := range b.Errores {
				lines = append(lines, "• "+e)
			}
			message += "\n\n" + strings.Join(lines, "\n")
		}
		return &AuthorizationResponse{
			ErrorNumber:  b.Respuesta.Codigo,
			ErrorMessage: message,
			Respuesta:    b.Respuesta,
		}, true
	}
	if b.ErrorNumber != nil && *b.ErrorNumber != 0 {
		return &AuthorizationResponse{
			ErrorNumber:  *b.ErrorNumber,
			ErrorMessage: b.ErrorMessage,
		}, true
	}
	return nil, false
}

// VoidRequest is the Anular payload. Codes are numeric on this endpoint.
type VoidRequest struct {
	CodigoAutorizacion int64  `json:"CodigoAutorizacion"`
	CodigoFarmacia     int64  `json:"CodigoFarmacia"`
	Motivo             string `json:"Motivo"`
}

// VoidResult is the outcome of an Anular call
type VoidResult struct {
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Succeeded  bool            `json:"succeeded"`
	Body       json.RawMessage `json:"body,omitempty"`
}
