// Package authz decides whether an account may perform an action on a
// resource. It holds no state; callers load the resource first and pass the
// acting account explicitly.
package authz

import (
	"errors"

	"github.com/tasktracker/apiserver/types"
)

// Action names an operation subject to authorization.
type Action string

const (
	ActionListTasks         Action = "task:list"
	ActionCreateTask        Action = "task:create"
	ActionReadTask          Action = "task:read"
	ActionUpdateTask        Action = "task:update"
	ActionDeleteTask        Action = "task:delete"
	ActionSetTaskStatus     Action = "task:set-status"
	ActionManageAttachments Action = "task:attachments"

	ActionListAccounts  Action = "account:list"
	ActionCreateAccount Action = "account:create"
	ActionReadAccount   Action = "account:read"
	ActionUpdateAccount Action = "account:update"
	ActionDeleteAccount Action = "account:delete"
	ActionChangeRole    Action = "account:change-role"
)

// Decision is the outcome of Authorize.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Target identifies the resource an action applies to. Task actions read
// OwnerID, account actions read AccountID.
type Target struct {
	OwnerID   int
	AccountID int
}

// TaskTarget describes an already-loaded task.
func TaskTarget(task types.Task) Target {
	return Target{OwnerID: task.OwnerID}
}

// AccountTarget describes an account by id. Account decisions never depend
// on anything but the id, so the account does not need to be loaded.
func AccountTarget(id int) Target {
	return Target{AccountID: id}
}

// ErrForbidden matches every ForbiddenError via errors.Is.
var ErrForbidden = errors.New("forbidden")

// ForbiddenError is returned by Check with a message suitable for the caller.
type ForbiddenError struct {
	Action  Action
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

var messages = map[Action]string{
	ActionListTasks:         "authentication required",
	ActionCreateTask:        "authentication required",
	ActionReadTask:          "You can view only your own tasks.",
	ActionUpdateTask:        "You can update only your own tasks.",
	ActionDeleteTask:        "You can delete only your own tasks.",
	ActionSetTaskStatus:     "You can mark only your own tasks.",
	ActionManageAttachments: "You can manage attachments only on your own tasks.",
	ActionListAccounts:      "authentication required",
	ActionCreateAccount:     "Only administrators can create accounts.",
	ActionReadAccount:       "You can view only your own account.",
	ActionUpdateAccount:     "You can update only your own account.",
	ActionDeleteAccount:     "You can delete only your own account.",
	ActionChangeRole:        "Only administrators can change roles.",
}

// Authorize applies the ownership policy. Administrators may act on any
// account but get no override for tasks.
func Authorize(actor types.Account, action Action, target Target) Decision {
	if actor.ID < 1 {
		return Deny
	}

	switch action {
	case ActionListTasks, ActionCreateTask, ActionListAccounts:
		return Allow
	case ActionReadTask, ActionUpdateTask, ActionDeleteTask, ActionSetTaskStatus, ActionManageAttachments:
		if target.OwnerID == actor.ID {
			return Allow
		}
	case ActionReadAccount, ActionUpdateAccount, ActionDeleteAccount:
		if target.AccountID == actor.ID || actor.IsAdmin() {
			return Allow
		}
	case ActionCreateAccount, ActionChangeRole:
		if actor.IsAdmin() {
			return Allow
		}
	}
	return Deny
}

// Check is Authorize returning a *ForbiddenError on Deny.
func Check(actor types.Account, action Action, target Target) error {
	if Authorize(actor, action, target) == Allow {
		return nil
	}
	message, ok := messages[action]
	if !ok {
		message = "forbidden"
	}
	return &ForbiddenError{Action: action, Message: message}
}

// Scope is the set of accounts visible in an account listing.
type Scope int

const (
	ScopeSelf Scope = iota
	ScopeAll
)

// AccountScope returns ScopeAll for administrators and ScopeSelf otherwise.
func AccountScope(actor types.Account) Scope {
	if actor.IsAdmin() {
		return ScopeAll
	}
	return ScopeSelf
}
