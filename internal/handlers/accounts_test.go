package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/tasktracker/apiserver/types"
)

func TestAccountEndpoints(t *testing.T) {
	f := newFixture(t, false)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	admin := f.admin(t)

	rec := f.do(t, http.MethodGet, "/api/users", alice, nil)
	expectStatus(t, rec, http.StatusOK)
	own := decode[PageResponse[map[string]any]](t, rec)
	if own.Total != 1 || len(own.Items) != 1 || own.Items[0]["username"] != "alice" {
		t.Fatalf("alice's listing = %+v", own)
	}

	rec = f.do(t, http.MethodGet, "/api/users", admin, nil)
	expectStatus(t, rec, http.StatusOK)
	if all := decode[PageResponse[map[string]any]](t, rec); all.Total != 3 {
		t.Fatalf("admin's listing total = %d", all.Total)
	}

	expectStatus(t, f.do(t, http.MethodGet, "/api/users/2", alice, nil), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodGet, "/api/users/999", alice, nil), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodGet, "/api/users/999", admin, nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodGet, "/api/users/2", admin, nil), http.StatusOK)
	expectStatus(t, f.do(t, http.MethodGet, "/api/users/1", alice, nil), http.StatusOK)

	rec = f.do(t, http.MethodPatch, "/api/users/1", alice, map[string]any{"last_name": "Liddell"})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec); got["last_name"] != "Liddell" || got["is_admin"] != false {
		t.Fatalf("patched account = %v", got)
	}

	expectStatus(t, f.do(t, http.MethodPatch, "/api/users/1", alice, map[string]any{"is_admin": true}), http.StatusForbidden)

	rec = f.do(t, http.MethodPatch, "/api/users/1", alice, map[string]any{"username": "bob"})
	expectStatus(t, rec, http.StatusBadRequest)
	if fields := decode[ErrorResponse](t, rec).Fields; len(fields["username"]) != 1 {
		t.Fatalf("fields = %v", fields)
	}

	expectStatus(t, f.do(t, http.MethodDelete, "/api/users/1", bob, nil), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodDelete, "/api/users/2", admin, nil), http.StatusNoContent)
	expectStatus(t, f.do(t, http.MethodGet, "/api/me", bob, nil), http.StatusUnauthorized)
}

func TestAdminCreatesAccount(t *testing.T) {
	f := newFixture(t, false)
	alice := f.user(t, "alice")
	admin := f.admin(t)

	body := map[string]any{
		"username":   "carol",
		"first_name": "Carol",
		"password":   testPassword,
		"is_admin":   true,
	}
	expectStatus(t, f.do(t, http.MethodPost, "/api/users", alice, body), http.StatusForbidden)

	rec := f.do(t, http.MethodPost, "/api/users", admin, body)
	expectStatus(t, rec, http.StatusCreated)
	if got := decode[map[string]any](t, rec); got["is_admin"] != true {
		t.Fatalf("created = %v", got)
	}
}

func TestAdminCreateChecksRoleFlag(t *testing.T) {
	f := newFixture(t, false)
	admin := f.admin(t)

	rec := f.do(t, http.MethodPost, "/api/users", admin, map[string]any{
		"username":   "carol",
		"first_name": "Carol",
		"password":   testPassword,
		"is_admin":   "yes",
	})
	expectStatus(t, rec, http.StatusBadRequest)
	if fields := decode[ErrorResponse](t, rec).Fields; len(fields["is_admin"]) == 0 {
		t.Fatalf("fields = %v, want is_admin", fields)
	}
}

func TestListAccountsPageOutOfRange(t *testing.T) {
	f := newFixture(t, false)
	alice := f.user(t, "alice")

	expectStatus(t, f.do(t, http.MethodGet, "/api/users?page=1", alice, nil), http.StatusOK)
	rec := f.do(t, http.MethodGet, "/api/users?page=2", alice, nil)
	expectStatus(t, rec, http.StatusNotFound)
	if got := decode[ErrorResponse](t, rec).Error; got != "Invalid page." {
		t.Fatalf("error = %q", got)
	}
}

func TestDeleteAccountRemovesTasks(t *testing.T) {
	f := newFixture(t, false)
	alice := f.user(t, "alice")

	for i := 0; i < 3; i++ {
		rec := f.do(t, http.MethodPost, "/api/tasks", alice, map[string]string{"title": fmt.Sprintf("t%d", i)})
		expectStatus(t, rec, http.StatusCreated)
		_ = decode[types.Task](t, rec)
	}
	expectStatus(t, f.do(t, http.MethodDelete, "/api/users/1", alice, nil), http.StatusNoContent)
	if f.db.TaskCount() != 0 || f.db.AccountCount() != 0 {
		t.Fatalf("left %d tasks and %d accounts", f.db.TaskCount(), f.db.AccountCount())
	}
}
