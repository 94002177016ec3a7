package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/cabepi/lab-pbm-senasa/config"
)

// Upstream paths served by UnipagoStub
const (
	AuthPath      = "/Autenticar"
	ValidatePath  = "/api/Autorizacion/Validar"
	AuthorizePath = "/api/Autorizacion/Autorizar"
	VoidPath      = "/api/Autorizacion/Anular"

	VoidSuccessMessage = "La Autorización fue anulada exitosamente"
)

type stubReply struct {
	status int
	body   string
}

// UnipagoStub is an httptest server that imitates the external authorization service.
// Replies are configurable per endpoint and every call is counted.
type UnipagoStub struct {
	Server *httptest.Server
	Token  string

	mu       sync.Mutex
	replies  map[string]stubReply
	calls    map[string]int
	bodies   map[string][]byte
	authForm url.Values
	bearer   string
}

// NewUnipagoStub starts a stub that authenticates and approves everything by default
func NewUnipagoStub(t *testing.T) *UnipagoStub {
	t.Helper()

	s := &UnipagoStub{
		Token: "stub-token",
		replies: map[string]stubReply{
			ValidatePath:  {http.StatusOK, `{"ErrorNumber":1000,"ErrorMessage":"OK","detalle":{"TotalFactura":1500,"CoberturaBasico":800,"CoberturaPlan":400,"MontoAutorizado":1200,"MontoCopago":300,"medicamentos":[{"CodError":1,"Mensaje":"Cubierto","Codigo":"M1","TotalFactura":1500,"MontoAutorizado":1200,"MontoCopago":300}]}}`},
			AuthorizePath: {http.StatusOK, `{"ErrorNumber":1000,"ErrorMessage":"OK","detalle":{"CodigoAutorizacion":"987654","TotalFactura":1500,"CoberturaBasico":800,"CoberturaPlan":400,"MontoAutorizado":1200,"MontoCopago":300,"medicamentos":[{"CodError":1,"Mensaje":"Cubierto","Codigo":"M1","TotalFactura":1500,"MontoAutorizado":1200,"MontoCopago":300}]}}`},
			VoidPath:      {http.StatusOK, `{"MSG":"` + VoidSuccessMessage + `"}`},
		},
		calls:  make(map[string]int),
		bodies: make(map[string][]byte),
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *UnipagoStub) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls[r.URL.Path]++
	s.mu.Unlock()

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path == AuthPath {
		_ = r.ParseForm()
		s.mu.Lock()
		s.authForm = r.PostForm
		reply, custom := s.replies[AuthPath]
		s.mu.Unlock()

		if custom {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(reply.status)
			_, _ = io.WriteString(w, reply.body)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": s.Token,
			"token_type":   "bearer",
			"expires_in":   3600,
		})
		return
	}

	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.bodies[r.URL.Path] = body
	s.bearer = r.Header.Get("Authorization")
	reply, ok := s.replies[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.WriteHeader(reply.status)
	_, _ = io.WriteString(w, reply.body)
}

// Reply sets the status and body returned for path
func (s *UnipagoStub) Reply(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[path] = stubReply{status: status, body: body}
}

// Calls returns how many requests reached path
func (s *UnipagoStub) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// LastBody returns the last request body posted to path
func (s *UnipagoStub) LastBody(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[path]
}

// LastAuthForm returns the form of the last credential exchange
func (s *UnipagoStub) LastAuthForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authForm
}

// LastBearer returns the Authorization header of the last API call
func (s *UnipagoStub) LastBearer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bearer
}

// Config points an upstream configuration at the stub
func (s *UnipagoStub) Config() config.UnipagoConfig {
	return config.UnipagoConfig{
		BaseURL:            s.Server.URL,
		Username:           "svc-user",
		Password:           "svc-pass",
		Timeout:            5 * time.Second,
		AuthPath:           AuthPath,
		ValidatePath:       ValidatePath,
		AuthorizePath:      AuthorizePath,
		VoidPath:           VoidPath,
		VoidSuccessMessage: VoidSuccessMessage,
	}
}
