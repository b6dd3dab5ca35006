// Package handlers exposes the chat history, key registry and deal engine
// over HTTP. Every route except the health check expects
// middleware.AuthMiddleware in front of it.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pliu/easyrent/internal/apperr"
	"github.com/pliu/easyrent/internal/middleware"
	"github.com/pliu/easyrent/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(err, apperr.CodeValidation, "", "invalid request body")
	}
	return nil
}

// currentUser writes a 401 and returns false when the request carries no
// authenticated user.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, apperr.Auth(apperr.ReasonMissing, "authentication required"))
		return nil, false
	}
	return user, true
}

// Date accepts RFC 3339 timestamps and bare YYYY-MM-DD dates.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return &time.ParseError{Layout: "2006-01-02", Value: s, Message: ": expected an ISO 8601 date"}
}
