package middleware

import (
	"context"
	"net/http"

	"github.com/coinsaga/coinsaga/pkg/api/response"
)

const userIDKey contextKey = "user_id"

// UserIDHeader carries the authenticated caller's id. Authentication itself
// happens upstream at the gateway; the service trusts the header.
const UserIDHeader = "X-User-ID"

// RequireUser returns a middleware that rejects requests without a user id.
func RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(UserIDHeader)
			if userID == "" {
				response.Error(w,
					http.StatusUnauthorized,
					response.ErrCodeUnauthorized,
					"missing "+UserIDHeader+" header",
					GetRequestID(r.Context()),
				)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts the caller's user id from context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}
