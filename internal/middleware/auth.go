package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenMiddleware requires the shared status token on every request, either
// as "Authorization: Bearer <token>" or as a "token" query parameter (browsers
// cannot set headers on WebSocket upgrades). An empty token disables the check.
func TokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validToken(r, token) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="enroll"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validToken(r *http.Request, token string) bool {
	presented := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		presented = strings.TrimPrefix(auth, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}
