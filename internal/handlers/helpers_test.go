package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/pliu/easyrent/internal/auth"
	"github.com/pliu/easyrent/internal/middleware"
	"github.com/pliu/easyrent/internal/models"
	"github.com/pliu/easyrent/internal/store/sqlstore"
)

const testSecret = "handler-test-secret"

func newTestStore(t *testing.T, users ...models.ID) *sqlstore.SQLStore {
	t.Helper()
	store, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	for _, id := range users {
		if err := store.CreateUser(context.Background(), &models.User{ID: id, Name: id.String()}); err != nil {
			t.Fatalf("Failed to create user %s: %v", id, err)
		}
	}
	return store
}

// serve runs handler behind AuthMiddleware as userID. vars are the mux route
// variables the handler expects.
func serve(t *testing.T, store *sqlstore.SQLStore, handler http.HandlerFunc, userID models.ID, method, path string, body any, vars map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	if userID != "" {
		token, err := auth.IssueToken(testSecret, "", userID, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	verifier := auth.NewVerifier(testSecret, "", store)
	middleware.AuthMiddleware(verifier)(handler).ServeHTTP(rr, req)
	return rr
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body
}
