package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tasktracker/apiserver/internal/events"
	"github.com/tasktracker/apiserver/types"
)

func TestRegisterHidesPassword(t *testing.T) {
	env := newTestEnv(t)

	account := env.register(t, "alice", "Alice")
	if account.ID < 1 {
		t.Fatalf("expected an id, got %d", account.ID)
	}
	if account.PasswordHash == "" || account.PasswordHash == "Str0ngPass!" {
		t.Fatalf("password was not hashed: %q", account.PasswordHash)
	}
	if account.Role != types.RoleUser {
		t.Fatalf("Role = %q, want user", account.Role)
	}

	payload, err := json.Marshal(account)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(payload)
	if strings.Contains(body, "password") || strings.Contains(body, account.PasswordHash) {
		t.Fatalf("serialized account exposes the credential: %s", body)
	}
	if !strings.Contains(body, `"is_admin":false`) {
		t.Fatalf("serialized account lacks is_admin: %s", body)
	}
	if got := env.published.types(); len(got) != 1 || got[0] != events.AccountRegistered {
		t.Fatalf("events = %v", got)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "Alice")

	_, err := env.credentials.Register(context.Background(), RegisterInput{
		Username:  "alice",
		FirstName: "Other",
		Password:  "An0therPass!",
	})
	msgs := fieldMessages(t, err, FieldUsername)
	if len(msgs) != 1 || msgs[0] != msgDuplicate {
		t.Fatalf("username messages = %q", msgs)
	}
	if got := env.db.AccountCount(); got != 1 {
		t.Fatalf("AccountCount = %d, want 1", got)
	}
}

func TestRegisterValidationOrder(t *testing.T) {
	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"blank username wins", RegisterInput{Username: " ", FirstName: "", Password: "1"}, FieldUsername},
		{"malformed username", RegisterInput{Username: "a b", FirstName: "A", Password: "Str0ngPass!"}, FieldUsername},
		{"blank first name before password", RegisterInput{Username: "carol", FirstName: "  ", Password: "1"}, FieldFirstName},
		{"short password", RegisterInput{Username: "carol", FirstName: "Carol", Password: "Ab1!"}, FieldPassword},
		{"numeric password", RegisterInput{Username: "carol", FirstName: "Carol", Password: "90817263"}, FieldPassword},
		{"password equals username", RegisterInput{Username: "carolina", FirstName: "Carol", Password: "carolina"}, FieldPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.credentials.Register(context.Background(), tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if len(verr.Fields) != 1 || len(verr.Fields[tt.field]) == 0 {
				t.Fatalf("Fields = %v, want only %s", verr.Fields, tt.field)
			}
			if env.db.AccountCount() != 0 {
				t.Fatal("account was stored despite validation failure")
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice")
	ctx := context.Background()

	pair, err := env.credentials.Authenticate(ctx, "alice", "Str0ngPass!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" || pair.Access == pair.Refresh {
		t.Fatalf("unexpected pair %+v", pair)
	}

	got, err := env.credentials.Identify(ctx, pair.Access)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if got.ID != alice.ID {
		t.Fatalf("Identify returned account %d, want %d", got.ID, alice.ID)
	}

	_, wrongPassword := env.credentials.Authenticate(ctx, "alice", "wrong-password")
	_, unknownUser := env.credentials.Authenticate(ctx, "mallory", "Str0ngPass!")
	if !errors.Is(wrongPassword, ErrInvalidCredentials) || !errors.Is(unknownUser, ErrInvalidCredentials) {
		t.Fatalf("got %v and %v, want ErrInvalidCredentials for both", wrongPassword, unknownUser)
	}
	if wrongPassword.Error() != unknownUser.Error() {
		t.Fatal("unknown username is distinguishable from a wrong password")
	}
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "Alice")
	ctx := context.Background()

	pair, err := env.credentials.Authenticate(ctx, "alice", "Str0ngPass!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	access, err := env.credentials.Refresh(ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := env.credentials.Identify(ctx, access); err != nil {
		t.Fatalf("refreshed access token rejected: %v", err)
	}

	if _, err := env.credentials.Refresh(ctx, pair.Access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Refresh(access token) err = %v, want ErrInvalidToken", err)
	}
	if _, err := env.credentials.Refresh(ctx, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Refresh(garbage) err = %v, want ErrInvalidToken", err)
	}

	env.tokens.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if _, err := env.credentials.Refresh(ctx, pair.Refresh); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Refresh(expired) err = %v, want ErrExpiredToken", err)
	}
}

func TestIdentifyRejectsRefreshAndForeignTokens(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice")
	ctx := context.Background()

	pair, err := env.tokens.IssuePair(alice.ID)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	foreign, err := NewTokenIssuer("other-secret", time.Minute, time.Hour).Issue(alice.ID, TokenTypeAccess)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name  string
		token string
		cause error
	}{
		{"refresh token", pair.Refresh, ErrInvalidToken},
		{"wrong signature", foreign, ErrInvalidToken},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.credentials.Identify(ctx, tt.token)
			if !errors.Is(err, ErrUnauthenticated) {
				t.Fatalf("err = %v, want ErrUnauthenticated", err)
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Fatalf("err = %v, want cause %v", err, tt.cause)
			}
		})
	}

	env.tokens.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := env.credentials.Identify(ctx, pair.Access); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expired access token err = %v, want ErrExpiredToken", err)
	}
}

func TestIdentifyDeletedAccount(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice")
	ctx := context.Background()

	pair, err := env.tokens.IssuePair(alice.ID)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if err := env.accounts.Delete(ctx, alice, alice.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := env.credentials.Identify(ctx, pair.Access); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if _, err := env.credentials.Refresh(ctx, pair.Refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestApplyAccountChangesReportsAllFields(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice")

	_, err := env.credentials.ApplyAccountChanges(context.Background(), alice, AccountPatch{
		FirstName: ptr(" "),
		Password:  ptr("123"),
	}, true)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Fields[FieldFirstName]) == 0 || len(verr.Fields[FieldPassword]) != 2 {
		t.Fatalf("Fields = %v", verr.Fields)
	}

	_, err = env.credentials.ApplyAccountChanges(context.Background(), alice, AccountPatch{}, false)
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Fields[FieldUsername][0] != msgRequired || verr.Fields[FieldFirstName][0] != msgRequired {
		t.Fatalf("Fields = %v", verr.Fields)
	}
}
