package unipago

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/cabepi/lab-pbm-senasa/v1/models"
	"github.com/cabepi/lab-pbm-senasa/v1/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateway(stub *testutil.UnipagoStub) *Gateway {
	return NewGateway(stub.Config(), newSession(stub), stub.Server.Client())
}

func sampleRequest() *models.AuthorizationRequest {
	branch := "105"
	return &models.AuthorizationRequest{
		CodigoFarmacia:      "20414",
		CodigoSucursal:      &branch,
		ContratoAfiliado:    "CT-0001",
		CodigoProgramaPyP:   0,
		AutorizacionExterna: "NUM_REF_FARMACIA_20414_20250101120000000",
		Medicamentos:        []models.Medication{{CodigoMedicamento: "M1", Cantidad: 2, Precio: 750}},
	}
}

func TestGateway_ValidateSuccess(t *testing.T) {
	stub := testutil.NewUnipagoStub(t)
	gateway := newGateway(stub)

	result, err := gateway.Validate(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.NotNil(t, result.Response)

	assert.True(t, result.Response.Succeeded())
	assert.Equal(t, http.StatusOK, result.StatusCode)
	require.NotNil(t, result.Response.Detalle)
	assert.Equal(t, 1500.0, result.Response.Detalle.TotalFactura)
	require.Len(t, result.Response.Detalle.Medicamentos, 1)
	assert.True(t, result.Response.Detalle.Medicamentos[0].Covered())

	assert.Equal(t, "Bearer stub-token", stub.LastBearer())
	assert.Equal(t, 1, stub.Calls(testutil.AuthPath))
	assert.Equal(t, 0, stub.Calls(testutil.AuthorizePath), "validate never commits")

	var sent models.AuthorizationRequest
	require.NoError(t, json.Unmarshal(stub.LastBody(testutil.ValidatePath), &sent))
	assert.Equal(t, "20414", sent.CodigoFarmacia)
	assert.Equal(t, "105", models.StringValue(sent.CodigoSucursal))
	assert.JSONEq(t, string(stub.LastBody(testutil.ValidatePath)), string(result.RequestBody))
}

func TestGateway_BusinessRejections(t *testing.T) {
	t.Run("2xx with non-1000 ErrorNumber", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)
		stub.Reply(testutil.ValidatePath, http.StatusOK, `{"ErrorNumber":2001,"ErrorMessage":"Cobertura insuficiente"}`)

		result, err := newGateway(stub).Validate(context.Background(), sampleRequest())
		require.NoError(t, err)
		assert.False(t, result.Response.Succeeded())
		assert.Equal(t, 2001, result.Response.ErrorNumber)
	})

	t.Run("non-2xx respuesta envelope", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)
		stub.Reply(testutil.ValidatePath, http.StatusBadRequest,
			`{"respuesta":{"codigo":4010,"mensaje":"Medicamento desconocido"},"errores":["M1 no existe"]}`)

		result, err := newGateway(stub).Validate(context.Background(), sampleRequest())
		require.NoError(t, err)
		assert.Equal(t, 4010, result.Response.ErrorNumber)
		assert.Equal(t, "Medicamento desconocido\n\n• M1 no existe", result.Response.ErrorMessage)
		assert.Equal(t, http.StatusBadRequest, result.StatusCode)
	})

	t.Run("non-2xx ErrorNumber body", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)
		stub.Reply(testutil.AuthorizePath, http.StatusUnprocessableEntity, `{"ErrorNumber":3005,"ErrorMessage":"Afiliado inactivo"}`)

		result, err := newGateway(stub).Authorize(context.Background(), sampleRequest())
		require.NoError(t, err)
		assert.Equal(t, 3005, result.Response.ErrorNumber)
	})

	t.Run("2xx respuesta envelope without ErrorNumber", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)
		stub.Reply(testutil.ValidatePath, http.StatusOK, `{"respuesta":{"codigo":2002,"mensaje":"Límite excedido"}}`)

		result, err := newGateway(stub).Validate(context.Background(), sampleRequest())
		require.NoError(t, err)
		assert.Equal(t, 2002, result.Response.ErrorNumber)
		assert.Equal(t, "Límite excedido", result.Response.ErrorMessage)
	})
}

func TestGateway_InfrastructureFailures(t *testing.T) {
	t.Run("5xx html is unavailable", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)
		stub.Reply(testutil.ValidatePath, http.StatusBadGateway, `<html>bad gateway</html>`)

		result, err := newGateway(stub).Validate(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		assert.Nil(t, result.Response)
		assert.Equal(t, http.StatusBadGateway, result.StatusCode)
		assert.JSONEq(t, `{"raw":"<html>bad gateway</html>"}`, string(result.ResponseBody))
	})

	t.Run("malformed 2xx body", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)
		stub.Reply(testutil.AuthorizePath, http.StatusOK, `not json`)

		_, err := newGateway(stub).Authorize(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	})

	t.Run("token rejected", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)
		stub.Reply(testutil.ValidatePath, http.StatusUnauthorized, ``)

		_, err := newGateway(stub).Validate(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, ErrUpstreamAuth)
	})

	t.Run("auth failure stops before the call", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)
		stub.Reply(testutil.AuthPath, http.StatusOK, `{}`)

		result, err := newGateway(stub).Authorize(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, ErrUpstreamAuth)
		assert.NotEmpty(t, result.RequestBody)
		assert.Equal(t, 0, stub.Calls(testutil.AuthorizePath))
	})

	t.Run("transport failure", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)
		session := newSession(stub)
		cfg := stub.Config()
		cfg.BaseURL = "http://127.0.0.1:1"
		gateway := NewGateway(cfg, session, nil)

		result, err := gateway.Validate(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		assert.Equal(t, 0, result.StatusCode)
	})
}

func TestGateway_AuthorizeReturnsCode(t *testing.T) {
	stub := testutil.NewUnipagoStub(t)

	result, err := newGateway(stub).Authorize(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "987654", result.Response.AuthorizationCode())
	assert.Equal(t, 1, stub.Calls(testutil.AuthorizePath))
}

func TestGateway_Void(t *testing.T) {
	t.Run("success literal", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)

		result, err := newGateway(stub).Void(context.Background(), "987654", "20414", "Error de digitación")
		require.NoError(t, err)
		assert.True(t, result.Succeeded)
		assert.Equal(t, testutil.VoidSuccessMessage, result.Message)
		assert.Equal(t, 1, stub.Calls(testutil.AuthPath), "void re-authenticates")

		var sent map[string]interface{}
		require.NoError(t, json.Unmarshal(stub.LastBody(testutil.VoidPath), &sent))
		assert.Equal(t, float64(987654), sent["CodigoAutorizacion"])
		assert.Equal(t, float64(20414), sent["CodigoFarmacia"])
		assert.Equal(t, "Error de digitación", sent["Motivo"])
	})

	t.Run("HTTP 200 with another message is a failure", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)
		stub.Reply(testutil.VoidPath, http.StatusOK, `{"MSG":"otro mensaje"}`)

		result, err := newGateway(stub).Void(context.Background(), "987654", "20414", "r")
		require.NoError(t, err)
		assert.False(t, result.Succeeded)
		assert.Equal(t, "otro mensaje", result.Message)
	})

	t.Run("success literal with error status is a failure", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)
		stub.Reply(testutil.VoidPath, http.StatusInternalServerError, `{"MSG":"`+testutil.VoidSuccessMessage+`"}`)

		result, err := newGateway(stub).Void(context.Background(), "987654", "20414", "r")
		require.NoError(t, err)
		assert.False(t, result.Succeeded)
	})

	t.Run("non-JSON body", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)
		stub.Reply(testutil.VoidPath, http.StatusOK, `Anulada`)

		result, err := newGateway(stub).Void(context.Background(), "987654", "20414", "r")
		require.NoError(t, err)
		assert.False(t, result.Succeeded)
		assert.JSONEq(t, `{"raw":"Anulada"}`, string(result.Body))
	})

	t.Run("non-numeric code makes no call", func(t *testing.T) {
		stub := testutil.NewUnipagoStub(t)

		_, err := newGateway(stub).Void(context.Background(), "ABC", "20414", "r")
		assert.ErrorIs(t, err, ErrInvalidVoidRequest)
		assert.Equal(t, 0, stub.Calls(testutil.AuthPath))
		assert.Equal(t, 0, stub.Calls(testutil.VoidPath))
	})
}
