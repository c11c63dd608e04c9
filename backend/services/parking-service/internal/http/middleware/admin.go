package middleware

import (
	"net/http"

	"parkpay/backend/services/parking-service/internal/password"
)

// AdminKeyHeader carries the shared administration key.
const AdminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware admits requests whose X-Admin-Key matches the bcrypt hash.
func AdminKeyMiddleware(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(AdminKeyHeader)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing admin key")
				return
			}
			if !password.Matches(keyHash, key) {
				writeError(w, http.StatusForbidden, "invalid admin key")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOperatorID(r.Context(), "admin")))
		})
	}
}
