package authz

import (
	"errors"
	"testing"

	"github.com/tasktracker/apiserver/types"
)

var (
	alice  = types.Account{ID: 1, Username: "alice", Role: types.RoleUser}
	bob    = types.Account{ID: 2, Username: "bob", Role: types.RoleUser}
	admin  = types.Account{ID: 3, Username: "admin", Role: types.RoleAdmin}
	nobody = types.Account{}
)

func TestAuthorizeTasks(t *testing.T) {
	alicesTask := TaskTarget(types.Task{ID: 10, OwnerID: alice.ID})
	ownerOnly := []Action{ActionReadTask, ActionUpdateTask, ActionDeleteTask, ActionSetTaskStatus, ActionManageAttachments}

	for _, action := range ownerOnly {
		t.Run(string(action), func(t *testing.T) {
			if got := Authorize(alice, action, alicesTask); got != Allow {
				t.Errorf("owner: got %s, want allow", got)
			}
			if got := Authorize(bob, action, alicesTask); got != Deny {
				t.Errorf("other account: got %s, want deny", got)
			}
			if got := Authorize(admin, action, alicesTask); got != Deny {
				t.Errorf("admin: got %s, want deny (no task override)", got)
			}
			if got := Authorize(nobody, action, alicesTask); got != Deny {
				t.Errorf("anonymous: got %s, want deny", got)
			}
		})
	}

	for _, action := range []Action{ActionListTasks, ActionCreateTask} {
		if got := Authorize(bob, action, Target{}); got != Allow {
			t.Errorf("%s: got %s, want allow", action, got)
		}
		if got := Authorize(nobody, action, Target{}); got != Deny {
			t.Errorf("%s anonymous: got %s, want deny", action, got)
		}
	}
}

func TestAuthorizeAccounts(t *testing.T) {
	tests := []struct {
		name   string
		actor  types.Account
		action Action
		target Target
		want   Decision
	}{
		{"self read", alice, ActionReadAccount, AccountTarget(alice.ID), Allow},
		{"self update", alice, ActionUpdateAccount, AccountTarget(alice.ID), Allow},
		{"self delete", alice, ActionDeleteAccount, AccountTarget(alice.ID), Allow},
		{"other read", alice, ActionReadAccount, AccountTarget(bob.ID), Deny},
		{"other update", alice, ActionUpdateAccount, AccountTarget(admin.ID), Deny},
		{"other delete", alice, ActionDeleteAccount, AccountTarget(bob.ID), Deny},
		{"admin read", admin, ActionReadAccount, AccountTarget(bob.ID), Allow},
		{"admin update", admin, ActionUpdateAccount, AccountTarget(bob.ID), Allow},
		{"admin delete", admin, ActionDeleteAccount, AccountTarget(bob.ID), Allow},
		{"admin unknown id", admin, ActionReadAccount, AccountTarget(999), Allow},
		{"user creates account", alice, ActionCreateAccount, Target{}, Deny},
		{"admin creates account", admin, ActionCreateAccount, Target{}, Allow},
		{"user changes own role", alice, ActionChangeRole, AccountTarget(alice.ID), Deny},
		{"admin changes role", admin, ActionChangeRole, AccountTarget(bob.ID), Allow},
		{"list", bob, ActionListAccounts, Target{}, Allow},
		{"anonymous list", nobody, ActionListAccounts, Target{}, Deny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authorize(tt.actor, tt.action, tt.target); got != tt.want {
				t.Fatalf("Authorize() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheckReturnsForbiddenError(t *testing.T) {
	err := Check(bob, ActionUpdateTask, TaskTarget(types.Task{OwnerID: alice.ID}))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("errors.Is(err, ErrForbidden) = false for %v", err)
	}
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected *ForbiddenError, got %T", err)
	}
	if forbidden.Message != "You can update only your own tasks." {
		t.Errorf("Message = %q", forbidden.Message)
	}

	if err := Check(alice, ActionUpdateTask, TaskTarget(types.Task{OwnerID: alice.ID})); err != nil {
		t.Fatalf("owner check: %v", err)
	}
}

func TestAccountScope(t *testing.T) {
	if AccountScope(admin) != ScopeAll {
		t.Error("admin should see all accounts")
	}
	if AccountScope(alice) != ScopeSelf {
		t.Error("ordinary account should see only itself")
	}
}
