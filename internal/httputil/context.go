package httputil

import (
	"context"
	"net/http"
)

// ctxKey is unexported so no other package can collide with our
// context values.
type ctxKey int

const userIDCtxKey ctxKey = iota

// WithUserID returns a shallow copy of r whose context carries the
// authenticated user's ID. The auth middleware attaches it once the
// bearer token verifies.
func WithUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDCtxKey, userID))
}

// UserID returns the authenticated user's ID from the request context,
// or "" on an unauthenticated request.
func UserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDCtxKey).(string)
	return id
}
