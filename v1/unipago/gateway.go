package unipago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cabepi/lab-pbm-senasa/config"
	"github.com/cabepi/lab-pbm-senasa/monitoring"
	"github.com/cabepi/lab-pbm-senasa/v1/models"
)

// maxBodyBytes bounds how much of an upstream body is read
const maxBodyBytes = 4 << 20

// Authenticator issues bearer tokens for the gateway
type Authenticator interface {
	Authenticate(ctx context.Context) (string, error)
}

// CallResult is what a validate or authorize call produced. It is returned
// even on failure so the caller can trace the attempt.
type CallResult struct {
	Response     *models.AuthorizationResponse
	StatusCode   int
	RequestBody  json.RawMessage
	ResponseBody json.RawMessage
}

// VoidCallResult is what an Anular call produced
type VoidCallResult struct {
	models.VoidResult
	RequestBody json.RawMessage
}

// Gateway calls the external authorization service. It never retries:
// a retried authorize with the same AutorizacionExterna is ambiguous upstream.
type Gateway struct {
	session            Authenticator
	baseURL            string
	validatePath       string
	authorizePath      string
	voidPath           string
	voidSuccessMessage string
	httpClient         *http.Client
}

// NewGateway builds a gateway from the upstream configuration
func NewGateway(cfg config.UnipagoConfig, session Authenticator, httpClient *http.Client) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Gateway{
		session:            session,
		baseURL:            strings.TrimRight(cfg.BaseURL, "/"),
		validatePath:       cfg.ValidatePath,
		authorizePath:      cfg.AuthorizePath,
		voidPath:           cfg.VoidPath,
		voidSuccessMessage: cfg.VoidSuccessMessage,
		httpClient:         httpClient,
	}
}

// Validate prices the basket without committing anything upstream
func (g *Gateway) Validate(ctx context.Context, req *models.AuthorizationRequest) (*CallResult, error) {
	return g.submit(ctx, "validate", g.validatePath, req)
}

// Authorize commits the basket; on success the response carries the authorization code
func (g *Gateway) Authorize(ctx context.Context, req *models.AuthorizationRequest) (*CallResult, error) {
	return g.submit(ctx, "authorize", g.authorizePath, req)
}

func (g *Gateway) submit(ctx context.Context, operation, path string, req *models.AuthorizationRequest) (*CallResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return &CallResult{}, fmt.Errorf("failed to encode %s request: %w", operation, err)
	}
	result := &CallResult{RequestBody: payload}

	token, err := g.session.Authenticate(ctx)
	if err != nil {
		return result, err
	}

	status, body, err := g.post(ctx, operation, path, token, payload)
	result.StatusCode = status
	if err != nil {
		return result, err
	}
	result.ResponseBody = asJSON(body)

	response, err := normalize(status, body)
	if err != nil {
		slog.Error("Unusable upstream response", "operation", operation, "status", status, "error", err)
		return result, err
	}
	result.Response = response
	return result, nil
}

// normalize maps an upstream answer onto AuthorizationResponse. Business
// errors carried by non-2xx bodies become responses, not errors.
func normalize(status int, body []byte) (*models.AuthorizationResponse, error) {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, fmt.Errorf("%w: token rejected with status %d", ErrUpstreamAuth, status)
	}

	if status >= 200 && status < 300 {
		var response models.AuthorizationResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("%w: malformed response: %v", ErrUpstreamUnavailable, err)
		}
		if response.ErrorNumber == 0 && response.Respuesta != nil && response.Respuesta.Codigo != 0 {
			response.ErrorNumber = response.Respuesta.Codigo
			if response.ErrorMessage == "" {
				response.ErrorMessage = response.Respuesta.Mensaje
			}
		}
		return &response, nil
	}

	var errBody models.UpstreamErrorBody
	if err := json.Unmarshal(body, &errBody); err == nil {
		if response, ok := errBody.Normalize(); ok {
			return response, nil
		}
	}
	return nil, fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, status, snippet(body))
}

// Void cancels a committed authorization. Success requires a 2xx answer whose
// MSG equals the configured success literal; an HTTP 200 with any other
// message is a failure.
func (g *Gateway) Void(ctx context.Context, code, pharmacyCode, reason string) (*VoidCallResult, error) {
	authorizationNumber, err := strconv.ParseInt(strings.TrimSpace(code), 10, 64)
	if err != nil {
		return &VoidCallResult{}, fmt.Errorf("%w: authorization code %q is not numeric", ErrInvalidVoidRequest, code)
	}
	pharmacyNumber, err := strconv.ParseInt(strings.TrimSpace(pharmacyCode), 10, 64)
	if err != nil {
		return &VoidCallResult{}, fmt.Errorf("%w: pharmacy code %q is not numeric", ErrInvalidVoidRequest, pharmacyCode)
	}

	payload, err := json.Marshal(models.VoidRequest{
		CodigoAutorizacion: authorizationNumber,
		CodigoFarmacia:     pharmacyNumber,
		Motivo:             reason,
	})
	if err != nil {
		return &VoidCallResult{}, fmt.Errorf("failed to encode void request: %w", err)
	}
	result := &VoidCallResult{RequestBody: payload}

	token, err := g.session.Authenticate(ctx)
	if err != nil {
		return result, err
	}

	status, body, err := g.post(ctx, "void", g.voidPath, token, payload)
	result.StatusCode = status
	if err != nil {
		return result, err
	}

	result.Body = asJSON(body)
	var parsed struct {
		MSG string `json:"MSG"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		result.Message = parsed.MSG
	}
	result.Succeeded = status >= 200 && status < 300 && result.Message == g.voidSuccessMessage

	if !result.Succeeded {
		slog.Warn("Upstream void not confirmed",
			"authorization_code", code,
			"status", status,
			"message", result.Message)
	}
	return result, nil
}

func (g *Gateway) post(ctx context.Context, operation, path, token string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		monitoring.RecordExternalCall(ctx, upstreamTarget, operation, time.Since(start), err)
		slog.Error("Upstream call failed", "operation", operation, "error", err)
		return 0, nil, fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	var callErr error
	if err != nil {
		callErr = err
	} else if resp.StatusCode >= 500 {
		callErr = fmt.Errorf("status %d", resp.StatusCode)
	}
	monitoring.RecordExternalCall(ctx, upstreamTarget, operation, time.Since(start), callErr)

	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: failed to read %s response: %v", ErrUpstreamUnavailable, operation, err)
	}
	return resp.StatusCode, body, nil
}

// asJSON keeps a body verbatim when it is JSON and wraps it as {"raw": ...} otherwise
func asJSON(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(body)})
	return wrapped
}

func snippet(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
