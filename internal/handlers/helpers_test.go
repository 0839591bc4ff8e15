package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tasktracker/apiserver/internal/logging"
	"github.com/tasktracker/apiserver/internal/services"
	"github.com/tasktracker/apiserver/internal/testutil"
	"github.com/tasktracker/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Str0ngPass!"

type fixture struct {
	router      *chi.Mux
	db          *testutil.MemoryDB
	objects     *testutil.MemoryObjects
	credentials *services.CredentialService
}

func newFixture(t *testing.T, withAttachments bool) *fixture {
	t.Helper()

	logger := logging.Discard()
	db := testutil.NewMemoryDB()
	objects := testutil.NewMemoryObjects("attachments")

	tokens := services.NewTokenIssuer("handler-secret", 5*time.Minute, time.Hour)
	credentials := services.NewCredentialService(db.Accounts(), tokens, nil)
	credentials.HashCost = bcrypt.MinCost

	var attachments *services.AttachmentService
	if withAttachments {
		attachments = services.NewAttachmentService(db.Tasks(), db.Attachments(), objects, nil, logger)
	}

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	Mount(router, API{
		Credentials: credentials,
		Accounts:    services.NewAccountService(db.Accounts(), credentials, attachments, nil, logger),
		Tasks:       services.NewTaskService(db.Tasks(), attachments, nil),
		Attachments: attachments,
		PageSize:    10,
		Logger:      logger,
	})

	return &fixture{router: router, db: db, objects: objects, credentials: credentials}
}

// do sends body as JSON unless it is already a string.
func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) register(t *testing.T, username, firstName string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"username":   username,
		"first_name": firstName,
		"password":   testPassword,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", username, rec.Code, rec.Body)
	}
}

func (f *fixture) login(t *testing.T, username, password string) services.TokenPair {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/token", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, rec.Code, rec.Body)
	}
	return decode[services.TokenPair](t, rec)
}

// user registers an ordinary account and returns its access token.
func (f *fixture) user(t *testing.T, username string) string {
	t.Helper()
	f.register(t, username, username)
	return f.login(t, username, testPassword).Access
}

func (f *fixture) admin(t *testing.T) string {
	t.Helper()
	_, err := f.credentials.CreateAccount(context.Background(), services.RegisterInput{
		Username:  "root",
		FirstName: "Root",
		Password:  testPassword,
	}, types.RoleAdmin)
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return f.login(t, "root", testPassword).Access
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %T from %q: %v", out, rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, want, rec.Body)
	}
}
