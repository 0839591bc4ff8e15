package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/tasktracker/apiserver/types"
)

func TestTaskTrackingScenario(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"username":   "alice",
		"password":   "Str0ngPass!",
		"first_name": "Alice",
	})
	expectStatus(t, rec, http.StatusCreated)
	registered := decode[map[string]any](t, rec)
	if id, ok := registered["id"].(float64); !ok || id < 1 {
		t.Fatalf("registration response lacks id: %v", registered)
	}
	if strings.Contains(strings.ToLower(rec.Body.String()), "password") {
		t.Fatalf("registration response exposes the password: %s", rec.Body)
	}

	pair := f.login(t, "alice", "Str0ngPass!")
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatalf("token pair incomplete: %+v", pair)
	}

	rec = f.do(t, http.MethodPost, "/api/tasks", pair.Access, map[string]string{
		"title":  "Buy milk",
		"status": "Pending",
	})
	expectStatus(t, rec, http.StatusCreated)
	task := decode[types.Task](t, rec)
	if task.Owner != "alice" || task.Status != types.TaskStatusPending {
		t.Fatalf("created task = %+v", task)
	}

	bob := f.user(t, "bob")
	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/tasks/%d", task.ID), bob, map[string]string{"title": "Buy beer"})
	expectStatus(t, rec, http.StatusForbidden)
	if msg := decode[ErrorResponse](t, rec).Error; msg != "You can update only your own tasks." {
		t.Fatalf("forbidden message = %q", msg)
	}

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/tasks/%d/mark_completed", task.ID), bob, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/tasks/%d/mark_completed", task.ID), pair.Access, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[types.Task](t, rec); got.Status != types.TaskStatusCompleted || got.Title != "Buy milk" {
		t.Fatalf("after mark_completed = %+v", got)
	}
}

func TestTaskValidationResponses(t *testing.T) {
	f := newFixture(t, false)
	token := f.user(t, "alice")

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"blank title", map[string]string{"title": "   "}, "title"},
		{"missing title", map[string]string{"description": "x"}, "title"},
		{"unknown status", map[string]string{"title": "x", "status": "Done"}, "status"},
		{"title of the wrong type", map[string]any{"title": 5}, "title"},
		{"not an object", `["title"]`, "non_field_errors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/tasks", token, tt.body)
			expectStatus(t, rec, http.StatusBadRequest)
			if fields := decode[ErrorResponse](t, rec).Fields; len(fields[tt.field]) == 0 {
				t.Fatalf("fields = %v, want %s", fields, tt.field)
			}
		})
	}

	rec := f.do(t, http.MethodPost, "/api/tasks", token, `{"title": `)
	expectStatus(t, rec, http.StatusBadRequest)
	if f.db.TaskCount() != 0 {
		t.Fatal("invalid requests created tasks")
	}
}

func TestTaskOwnerFromPayloadIsIgnored(t *testing.T) {
	f := newFixture(t, false)
	alice := f.user(t, "alice")
	f.user(t, "bob")

	rec := f.do(t, http.MethodPost, "/api/tasks", alice, map[string]any{
		"title":    "Buy milk",
		"owner":    "bob",
		"owner_id": 2,
	})
	expectStatus(t, rec, http.StatusCreated)
	task := decode[types.Task](t, rec)
	if task.Owner != "alice" || task.OwnerID != 1 {
		t.Fatalf("owner = %q/%d, want alice/1", task.Owner, task.OwnerID)
	}

	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/api/tasks/%d", task.ID), alice, map[string]any{
		"owner_id":   2,
		"created_at": "2000-01-01T00:00:00Z",
		"status":     "In Progress",
	})
	expectStatus(t, rec, http.StatusOK)
	patched := decode[types.Task](t, rec)
	if patched.OwnerID != 1 || !patched.CreatedAt.Equal(task.CreatedAt) || patched.Status != types.TaskStatusInProgress {
		t.Fatalf("patched = %+v", patched)
	}
}

func TestListTasks(t *testing.T) {
	f := newFixture(t, false)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	for i := 0; i < 12; i++ {
		status := "New"
		if i%3 == 0 {
			status = "Completed"
		}
		rec := f.do(t, http.MethodPost, "/api/tasks", alice, map[string]string{
			"title":  fmt.Sprintf("task %d", i),
			"status": status,
		})
		expectStatus(t, rec, http.StatusCreated)
	}
	expectStatus(t, f.do(t, http.MethodPost, "/api/tasks", bob, map[string]string{"title": "bob's"}), http.StatusCreated)

	tests := []struct {
		query     string
		wantItems int
		wantTotal int
	}{
		{"", 10, 12},
		{"?page=2", 2, 12},
		{"?status=Completed", 4, 4},
		{"?status=New&page=1", 8, 8},
		{"?status=In%20Progress", 0, 0},
		{"?status=Comp", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/tasks"+tt.query, alice, nil)
			expectStatus(t, rec, http.StatusOK)
			page := decode[PageResponse[types.Task]](t, rec)
			if len(page.Items) != tt.wantItems || page.Total != tt.wantTotal || page.Limit != 10 {
				t.Fatalf("got %d items, total %d, limit %d", len(page.Items), page.Total, page.Limit)
			}
			for _, task := range page.Items {
				if task.Owner != "alice" {
					t.Fatalf("listing leaked %+v", task)
				}
			}
		})
	}

	for _, query := range []string{"?page=zero", "?page=0", "?page=3", "?status=Completed&page=2"} {
		rec := f.do(t, http.MethodGet, "/api/tasks"+query, alice, nil)
		expectStatus(t, rec, http.StatusNotFound)
		if got := decode[ErrorResponse](t, rec).Error; got != "Invalid page." {
			t.Fatalf("%s: error = %q", query, got)
		}
	}

	// an empty first page is still a page
	rec := f.do(t, http.MethodGet, "/api/tasks?page=1", f.user(t, "carol"), nil)
	expectStatus(t, rec, http.StatusOK)
	if page := decode[PageResponse[types.Task]](t, rec); page.Total != 0 || len(page.Items) != 0 {
		t.Fatalf("empty listing = %+v", page)
	}
}

func TestTaskForbiddenAndNotFound(t *testing.T) {
	f := newFixture(t, false)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	rec := f.do(t, http.MethodPost, "/api/tasks", alice, map[string]string{"title": "Buy milk"})
	expectStatus(t, rec, http.StatusCreated)
	task := decode[types.Task](t, rec)
	path := fmt.Sprintf("/api/tasks/%d", task.ID)

	expectStatus(t, f.do(t, http.MethodGet, path, bob, nil), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodDelete, path, bob, nil), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodGet, "/api/tasks/9999", bob, nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodGet, "/api/tasks/abc", bob, nil), http.StatusNotFound)

	expectStatus(t, f.do(t, http.MethodDelete, path, alice, nil), http.StatusNoContent)
	expectStatus(t, f.do(t, http.MethodGet, path, alice, nil), http.StatusNotFound)
}

func TestPutRequiresTitle(t *testing.T) {
	f := newFixture(t, false)
	alice := f.user(t, "alice")

	rec := f.do(t, http.MethodPost, "/api/tasks", alice, map[string]string{"title": "Buy milk"})
	task := decode[types.Task](t, rec)
	path := fmt.Sprintf("/api/tasks/%d", task.ID)

	rec = f.do(t, http.MethodPut, path, alice, map[string]string{"status": "Pending"})
	expectStatus(t, rec, http.StatusBadRequest)
	if fields := decode[ErrorResponse](t, rec).Fields; fields["title"][0] != "This field is required." {
		t.Fatalf("fields = %v", fields)
	}

	rec = f.do(t, http.MethodPut, path, alice, map[string]string{"title": "Buy bread", "status": "Pending"})
	expectStatus(t, rec, http.StatusOK)
}
