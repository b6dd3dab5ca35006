package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pliu/easyrent/internal/apperr"
	"github.com/pliu/easyrent/internal/models"
	"github.com/pliu/easyrent/internal/store/sqlstore"
)

const secret = "test-secret"

func newVerifier(t *testing.T, issuer string) *Verifier {
	t.Helper()
	s, err := sqlstore.New("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateUser(context.Background(), &models.User{ID: "u1", Name: "Uma"}))
	return NewVerifier(secret, issuer, s)
}

func TestVerify(t *testing.T) {
	v := newVerifier(t, "")
	ctx := context.Background()

	valid, err := IssueToken(secret, "", "u1", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(secret, "", "u1", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := IssueToken("other-secret", "", "u1", time.Hour)
	require.NoError(t, err)
	ghost, err := IssueToken(secret, "", "ghost", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		reason apperr.Reason
	}{
		{"missing", "", apperr.ReasonMissing},
		{"garbage", "not.a.jwt", apperr.ReasonInvalid},
		{"wrong key", wrongKey, apperr.ReasonInvalid},
		{"expired", expired, apperr.ReasonExpired},
		{"unknown user", ghost, apperr.ReasonUnknownUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(ctx, tt.token)
			assert.True(t, apperr.HasCode(err, apperr.CodeAuth, tt.reason), "got %v", err)
		})
	}

	user, err := v.Verify(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, models.ID("u1"), user.ID)
}

func TestVerifySubjectFallback(t *testing.T) {
	v := newVerifier(t, "")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	user, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.ID("u1"), user.ID)
}

func TestVerifyIssuer(t *testing.T) {
	v := newVerifier(t, "easyrent")
	good, _ := IssueToken(secret, "easyrent", "u1", time.Hour)
	bad, _ := IssueToken(secret, "someone-else", "u1", time.Hour)

	_, err := v.Verify(context.Background(), good)
	assert.NoError(t, err)
	_, err = v.Verify(context.Background(), bad)
	assert.True(t, apperr.HasCode(err, apperr.CodeAuth, apperr.ReasonInvalid))
}

func TestVerifyRejectsNoneAlg(t *testing.T) {
	v := newVerifier(t, "")
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	assert.True(t, apperr.HasCode(err, apperr.CodeAuth, apperr.ReasonInvalid))
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=abc", nil)
	assert.Equal(t, "abc", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/deals", nil)
	r.Header.Set("Authorization", "Basic Zm9v")
	assert.Equal(t, "", TokenFromRequest(r))
}
