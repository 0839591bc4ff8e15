package handlers

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tasktracker/apiserver/types"
)

func (f *fixture) upload(t *testing.T, path, token, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(formFieldFile, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestAttachmentEndpoints(t *testing.T) {
	f := newFixture(t, true)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	rec := f.do(t, http.MethodPost, "/api/tasks", alice, map[string]string{"title": "Buy milk"})
	task := decode[types.Task](t, rec)
	base := fmt.Sprintf("/api/tasks/%d/attachments", task.ID)

	rec = f.upload(t, base, alice, "list.txt", "milk\neggs\n")
	expectStatus(t, rec, http.StatusCreated)
	added := decode[types.Attachment](t, rec)
	if added.Filename != "list.txt" || added.Size != 10 {
		t.Fatalf("added = %+v", added)
	}

	expectStatus(t, f.upload(t, base, bob, "x.txt", "x"), http.StatusForbidden)

	rec = f.do(t, http.MethodGet, base, alice, nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[AttachmentListResponse](t, rec); len(list.Items) != 1 {
		t.Fatalf("list = %+v", list)
	}

	item := fmt.Sprintf("%s/%d", base, added.ID)
	rec = f.do(t, http.MethodGet, item, alice, nil)
	expectStatus(t, rec, http.StatusOK)
	if rec.Body.String() != "milk\neggs\n" {
		t.Fatalf("downloaded %q", rec.Body)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename=list.txt` {
		t.Fatalf("Content-Disposition = %q", got)
	}

	expectStatus(t, f.do(t, http.MethodGet, item, bob, nil), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodDelete, item, alice, nil), http.StatusNoContent)
	expectStatus(t, f.do(t, http.MethodGet, item, alice, nil), http.StatusNotFound)
	if keys := f.objects.Keys(); len(keys) != 0 {
		t.Fatalf("objects left behind: %v", keys)
	}
}

func TestAttachmentUploadErrors(t *testing.T) {
	f := newFixture(t, true)
	alice := f.user(t, "alice")
	rec := f.do(t, http.MethodPost, "/api/tasks", alice, map[string]string{"title": "Buy milk"})
	task := decode[types.Task](t, rec)
	base := fmt.Sprintf("/api/tasks/%d/attachments", task.ID)

	expectStatus(t, f.upload(t, base, alice, "empty.txt", ""), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodPost, base, alice, map[string]string{"file": "x"}), http.StatusBadRequest)
}

func TestAttachmentsDisabled(t *testing.T) {
	f := newFixture(t, false)
	alice := f.user(t, "alice")
	rec := f.do(t, http.MethodPost, "/api/tasks", alice, map[string]string{"title": "Buy milk"})
	task := decode[types.Task](t, rec)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/tasks/%d/attachments", task.ID), alice, nil)
	expectStatus(t, rec, http.StatusNotImplemented)
}
