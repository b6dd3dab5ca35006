package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesCodeAndReason(t *testing.T) {
	err := Conflict(ReasonAlreadySigned, "you have already signed this deal")

	assert.True(t, errors.Is(err, &Error{Code: CodeConflict}))
	assert.True(t, errors.Is(err, &Error{Code: CodeConflict, Reason: ReasonAlreadySigned}))
	assert.False(t, errors.Is(err, &Error{Code: CodeConflict, Reason: ReasonCompetingDeal}))
	assert.False(t, errors.Is(err, &Error{Code: CodeForbidden}))
}

func TestHasCodeThroughWrapping(t *testing.T) {
	inner := NotFound(ReasonKey, "public key not registered")
	wrapped := fmt.Errorf("create deal: %w", inner)

	assert.True(t, HasCode(wrapped, CodeNotFound, ReasonKey))
	assert.True(t, HasCode(wrapped, CodeNotFound, ""))
	assert.False(t, HasCode(wrapped, CodeNotFound, ReasonDeal))
}

func TestAsDefaultsToInternal(t *testing.T) {
	e := As(errors.New("boom"))
	require.NotNil(t, e)
	assert.Equal(t, CodeInternal, e.Code)
	assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus())
	assert.Nil(t, As(nil))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodePersistence, "", "save"))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{Auth(ReasonExpired, "token expired"), http.StatusUnauthorized},
		{BadSignature("bad signature"), http.StatusUnauthorized},
		{NotFound(ReasonDeal, "no deal"), http.StatusNotFound},
		{Forbidden("not a party"), http.StatusForbidden},
		{Conflict(ReasonCompetingDeal, "competing"), http.StatusConflict},
		{Validation("missing field"), http.StatusBadRequest},
		{Persistence(errors.New("db down"), "save"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestWriteHTTP(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteHTTP(rr, Conflict(ReasonPropertyUnavailable, "property is not available for deals (status: rented)"))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "CONFLICT", body.Error.Code)
	assert.Equal(t, "PROPERTY_UNAVAILABLE", body.Error.Reason)
}

func TestWriteHTTPHidesInternalDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteHTTP(rr, errors.New("pq: connection refused at 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "10.0.0.3")
}
