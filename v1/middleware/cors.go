package middleware

import (
	"net/http"
	"os"
	"strconv"
)

// CORSMiddleware sets the CORS headers used by the operator console
func CORSMiddleware() func(http.Handler) http.Handler {
	allowOrigin := os.Getenv("CORS_ALLOWED_ORIGIN")
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	maxAge := getCORSMaxAge()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Operator-Email, Accept, Origin")
			w.Header().Set("Access-Control-Max-Age", maxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getCORSMaxAge reads CORS_MAX_AGE or returns 24 hours
func getCORSMaxAge() string {
	if value := os.Getenv("CORS_MAX_AGE"); value != "" {
		if _, err := strconv.Atoi(value); err == nil {
			return value
		}
	}
	return "86400"
}
