package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"podforge/internal/api"
)

// authMiddleware validates bearer tokens. If token is empty, no
// authentication is required and all requests pass through.
func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: api.ErrorBody{
					Code:    api.CodeUnauthorized,
					Message: "missing or invalid bearer token",
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
