package services

import (
	"context"
	"testing"
	"time"

	"github.com/tasktracker/apiserver/internal/events"
	"github.com/tasktracker/apiserver/internal/logging"
	"github.com/tasktracker/apiserver/internal/testutil"
	"github.com/tasktracker/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.Event) {
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []events.Type {
	out := make([]events.Type, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Type)
	}
	return out
}

type testEnv struct {
	db          *testutil.MemoryDB
	objects     *testutil.MemoryObjects
	published   *recordingPublisher
	tokens      *TokenIssuer
	credentials *CredentialService
	accounts    *AccountService
	tasks       *TaskService
	attachments *AttachmentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewMemoryDB()
	objects := testutil.NewMemoryObjects("attachments")
	published := &recordingPublisher{}
	logger := logging.Discard()

	tokens := NewTokenIssuer(testSecret, 5*time.Minute, 24*time.Hour)
	credentials := NewCredentialService(db.Accounts(), tokens, published)
	credentials.HashCost = bcrypt.MinCost

	attachments := NewAttachmentService(db.Tasks(), db.Attachments(), objects, published, logger)
	return &testEnv{
		db:          db,
		objects:     objects,
		published:   published,
		tokens:      tokens,
		credentials: credentials,
		accounts:    NewAccountService(db.Accounts(), credentials, attachments, published, logger),
		tasks:       NewTaskService(db.Tasks(), attachments, published),
		attachments: attachments,
	}
}

func (e *testEnv) register(t *testing.T, username, firstName string) types.Account {
	t.Helper()
	account, err := e.credentials.Register(context.Background(), RegisterInput{
		Username:  username,
		FirstName: firstName,
		Password:  "Str0ngPass!",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return account
}

func (e *testEnv) admin(t *testing.T) types.Account {
	t.Helper()
	account, err := e.credentials.CreateAccount(context.Background(), RegisterInput{
		Username:  "root",
		FirstName: "Root",
		Password:  "Adm1nistrat0r!",
	}, types.RoleAdmin)
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return account
}

func (e *testEnv) createTask(t *testing.T, owner types.Account, title string) types.Task {
	t.Helper()
	task, err := e.tasks.Create(context.Background(), owner, TaskInput{Title: ptr(title)})
	if err != nil {
		t.Fatalf("create task %q: %v", title, err)
	}
	return task
}

func ptr[T any](v T) *T {
	return &v
}

// fieldMessages returns the messages for field, failing the test when err
// is not a *ValidationError.
func fieldMessages(t *testing.T, err error, field string) []string {
	t.Helper()
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	return verr.Fields[field]
}
