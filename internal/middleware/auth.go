package middleware

import (
	"net/http"
	"strings"

	"dealdesk/internal/auth"
	"dealdesk/internal/httputil"
)

// publicPrefixes are routes served without a JWT: health checks and the
// whole anonymous-session surface (those carry their own session token
// in the path instead).
var publicPrefixes = []string{
	"/health",
	"/api/anon/",
}

// AuthMiddleware verifies the Bearer token on protected routes and puts
// the authenticated user ID into the request context.
func AuthMiddleware(verifier auth.JWTVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, httputil.WithUserID(r, claims.GetUserID()))
		})
	}
}

func isPublicPath(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
