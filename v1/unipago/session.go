package unipago

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cabepi/lab-pbm-senasa/monitoring"
	"golang.org/x/oauth2"
)

const upstreamTarget = "unipago"

// SessionClient exchanges the service credentials for a bearer token.
// Tokens are not cached: every call performs a new exchange.
type SessionClient struct {
	oauth      oauth2.Config
	username   string
	password   string
	httpClient *http.Client
}

// NewSessionClient builds a client for the form-encoded password grant at baseURL+authPath
func NewSessionClient(baseURL, authPath, username, password string, httpClient *http.Client) *SessionClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SessionClient{
		oauth: oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  strings.TrimRight(baseURL, "/") + authPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		username:   username,
		password:   password,
		httpClient: httpClient,
	}
}

// Authenticate returns a fresh access token. A response without access_token
// is an ErrUpstreamAuth; there is no retry.
func (c *SessionClient) Authenticate(ctx context.Context) (string, error) {
	start := time.Now()
	token, err := c.oauth.PasswordCredentialsToken(
		context.WithValue(ctx, oauth2.HTTPClient, c.httpClient),
		c.username,
		c.password,
	)
	monitoring.RecordExternalCall(ctx, upstreamTarget, "authenticate", time.Since(start), err)

	if err != nil {
		slog.Error("Upstream credential exchange failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: response carried no access_token", ErrUpstreamAuth)
	}
	return token.AccessToken, nil
}
