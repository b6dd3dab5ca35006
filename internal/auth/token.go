// Package auth verifies bearer tokens and resolves them to users. Token
// issuance belongs to another service; IssueToken exists for tooling and
// tests that need a token signed with the shared secret.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pliu/easyrent/internal/apperr"
	"github.com/pliu/easyrent/internal/models"
	"github.com/pliu/easyrent/internal/store"
)

// Claims carries the user id under "userId". Older tokens only set "sub".
type Claims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) subject() models.ID {
	if c.UserID != "" {
		return models.ID(c.UserID)
	}
	return models.ID(c.Subject)
}

type Verifier struct {
	secret []byte
	issuer string
	users  store.UserStore
}

func NewVerifier(secret, issuer string, users store.UserStore) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, users: users}
}

// Verify checks token and loads the user it names.
func (v *Verifier) Verify(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.Auth(apperr.ReasonMissing, "authentication token is required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Auth(apperr.ReasonExpired, "authentication token has expired")
		}
		return nil, &apperr.Error{Code: apperr.CodeAuth, Reason: apperr.ReasonInvalid, Message: "invalid authentication token", Cause: err}
	}

	userID := claims.subject()
	if userID.Empty() {
		return nil, apperr.Auth(apperr.ReasonInvalid, "token does not name a user")
	}

	user, err := v.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Auth(apperr.ReasonUnknownUser, "user no longer exists")
	}
	if err != nil {
		return nil, apperr.Persistence(err, "failed to load user")
	}
	return user, nil
}

// TokenFromRequest reads an "Authorization: Bearer" header, falling back to
// the token query parameter used by socket clients.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return r.URL.Query().Get("token")
}

// IssueToken signs an HS256 token for userID valid for ttl.
func IssueToken(secret, issuer string, userID models.ID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
