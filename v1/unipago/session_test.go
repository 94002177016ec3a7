package unipago

import (
	"context"
	"net/http"
	"testing"

	"github.com/cabepi/lab-pbm-senasa/v1/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(stub *testutil.UnipagoStub) *SessionClient {
	cfg := stub.Config()
	return NewSessionClient(cfg.BaseURL, cfg.AuthPath, cfg.Username, cfg.Password, stub.Server.Client())
}

func TestSessionClient_Authenticate(t *testing.T) {
	stub := testutil.NewUnipagoStub(t)
	session := newSession(stub)

	token, err := session.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stub-token", token)

	form := stub.LastAuthForm()
	assert.Equal(t, "password", form.Get("grant_type"))
	assert.Equal(t, "svc-user", form.Get("username"))
	assert.Equal(t, "svc-pass", form.Get("password"))
}

func TestSessionClient_NoTokenCache(t *testing.T) {
	stub := testutil.NewUnipagoStub(t)
	session := newSession(stub)

	for i := 0; i < 3; i++ {
		_, err := session.Authenticate(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, stub.Calls(testutil.AuthPath))
}

func TestSessionClient_MissingTokenIsUpstreamAuthError(t *testing.T) {
	stub := testutil.NewUnipagoStub(t)
	stub.Reply(testutil.AuthPath, http.StatusOK, `{"token_type":"bearer"}`)

	_, err := newSession(stub).Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamAuth)
}

func TestSessionClient_RejectedCredentials(t *testing.T) {
	stub := testutil.NewUnipagoStub(t)
	stub.Reply(testutil.AuthPath, http.StatusBadRequest, `{"error":"invalid_grant"}`)

	_, err := newSession(stub).Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamAuth)
	assert.Equal(t, 1, stub.Calls(testutil.AuthPath), "no retry")
}
