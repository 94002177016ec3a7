package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/cabepi/lab-pbm-senasa/v1/models"
	"github.com/cabepi/lab-pbm-senasa/v1/utils"
	"github.com/golang-jwt/jwt/v5"
)

// OperatorEmailHeader identifies the operator when no JWT secret is configured
const OperatorEmailHeader = "X-Operator-Email"

type operatorKey struct{}

var errMissingIdentity = errors.New("missing operator identity")

// OperatorAuth resolves the acting operator from an HS256 bearer token's
// email claim. With an empty secret the X-Operator-Email header is trusted,
// which is only meant for local development.
type OperatorAuth struct {
	secret []byte
}

// NewOperatorAuth creates the middleware
func NewOperatorAuth(secret string) *OperatorAuth {
	if secret == "" {
		slog.Warn("JWT_SECRET is empty, trusting the X-Operator-Email header")
	}
	return &OperatorAuth{secret: []byte(secret)}
}

// Middleware rejects requests without an operator with 401
func (a *OperatorAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, err := a.resolveEmail(r)
		if err != nil {
			slog.Debug("Rejected request without operator identity", "path", r.URL.Path, "error", err)
			utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized", err)
			return
		}

		op := models.Operator{Email: email, IP: ClientIP(r)}
		next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
	})
}

func (a *OperatorAuth) resolveEmail(r *http.Request) (string, error) {
	if len(a.secret) == 0 {
		if email := strings.TrimSpace(r.Header.Get(OperatorEmailHeader)); email != "" {
			return email, nil
		}
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingIdentity
	}
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(tokenString) == "" {
		return "", fmt.Errorf("authorization header must be a bearer token")
	}
	if len(a.secret) == 0 {
		return "", errMissingIdentity
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	email, _ := claims["email"].(string)
	if strings.TrimSpace(email) == "" {
		return "", fmt.Errorf("email not found in token claims")
	}
	return email, nil
}

// WithOperator stores the operator in the context
func WithOperator(ctx context.Context, op models.Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

// OperatorFromContext returns the operator set by the middleware
func OperatorFromContext(ctx context.Context) (models.Operator, bool) {
	op, ok := ctx.Value(operatorKey{}).(models.Operator)
	return op, ok
}

// ClientIP returns the host of RemoteAddr. Forwarded headers are resolved
// once by the RealIP middleware in front of the router.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
