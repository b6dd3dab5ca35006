package middleware

import (
	"context"
	"net/http"

	"github.com/pliu/easyrent/internal/apperr"
	"github.com/pliu/easyrent/internal/auth"
	"github.com/pliu/easyrent/internal/models"
)

type contextKey string

const UserKey contextKey = "user"

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Verify(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores the
// resolved user in the request context.
func AuthMiddleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := a.Verify(r.Context(), auth.TokenFromRequest(r))
			if err != nil {
				apperr.WriteHTTP(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the user stored by AuthMiddleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserKey).(*models.User)
	return user, ok && user != nil
}

// WithUser is used by tests and internal callers to attach a user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}
