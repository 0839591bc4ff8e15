package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/tasktracker/apiserver/internal/authz"
	"github.com/tasktracker/apiserver/internal/events"
	"github.com/tasktracker/apiserver/internal/store"
	"github.com/tasktracker/apiserver/types"
)

// ObjectCleaner removes stored attachment content once the rows that
// referenced it are gone. A nil *AttachmentService is a valid no-op
// cleaner.
type ObjectCleaner interface {
	KeysForOwner(ctx context.Context, ownerID int) ([]string, error)
	KeysForTask(ctx context.Context, taskID int) ([]string, error)
	RemoveObjects(ctx context.Context, keys []string)
}

// AccountService encapsulates account management use-cases. Every method
// takes the acting account explicitly.
type AccountService struct {
	accounts    AccountRepository
	credentials *CredentialService
	cleaner     ObjectCleaner
	events      EventPublisher
	logger      *log.Logger
}

func NewAccountService(
	accounts AccountRepository,
	credentials *CredentialService,
	cleaner ObjectCleaner,
	publisher EventPublisher,
	logger *log.Logger,
) *AccountService {
	if logger == nil {
		logger = log.Default()
	}
	return &AccountService{
		accounts:    accounts,
		credentials: credentials,
		cleaner:     cleaner,
		events:      publisherOrNoop(publisher),
		logger:      logger,
	}
}

// List returns every account for administrators and only the actor for
// everyone else.
func (s *AccountService) List(ctx context.Context, actor types.Account, offset, limit int) ([]types.Account, int, error) {
	if err := authz.Check(actor, authz.ActionListAccounts, authz.Target{}); err != nil {
		return nil, 0, err
	}
	if authz.AccountScope(actor) == authz.ScopeAll {
		return s.accounts.List(ctx, offset, limit)
	}

	self, err := s.accounts.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, 0, err
	}
	if offset > 0 {
		return []types.Account{}, 1, nil
	}
	return []types.Account{self}, 1, nil
}

// Get checks access before loading, so a refused caller cannot tell
// whether the id exists.
func (s *AccountService) Get(ctx context.Context, actor types.Account, id int) (types.Account, error) {
	if err := authz.Check(actor, authz.ActionReadAccount, authz.AccountTarget(id)); err != nil {
		return types.Account{}, err
	}
	return s.accounts.GetByID(ctx, id)
}

// Create adds an account on behalf of an administrator.
func (s *AccountService) Create(ctx context.Context, actor types.Account, in RegisterInput, isAdmin bool) (types.Account, error) {
	if err := authz.Check(actor, authz.ActionCreateAccount, authz.Target{}); err != nil {
		return types.Account{}, err
	}
	role := types.RoleUser
	if isAdmin {
		role = types.RoleAdmin
	}
	account, err := s.credentials.CreateAccount(ctx, in, role)
	if err != nil {
		return types.Account{}, err
	}
	s.events.Publish(ctx, events.Event{Type: events.AccountCreated, AccountID: account.ID})
	return account, nil
}

// Update applies patch to the account. Changing the role additionally
// requires the administrator role; resubmitting the current role is not a
// change.
func (s *AccountService) Update(ctx context.Context, actor types.Account, id int, patch AccountPatch, partial bool) (types.Account, error) {
	if err := authz.Check(actor, authz.ActionUpdateAccount, authz.AccountTarget(id)); err != nil {
		return types.Account{}, err
	}
	current, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return types.Account{}, err
	}

	role := current.Role
	if patch.IsAdmin != nil && *patch.IsAdmin != current.IsAdmin() {
		if err := authz.Check(actor, authz.ActionChangeRole, authz.AccountTarget(id)); err != nil {
			return types.Account{}, err
		}
		role = types.RoleUser
		if *patch.IsAdmin {
			role = types.RoleAdmin
		}
	}

	next, err := s.credentials.ApplyAccountChanges(ctx, current, patch, partial)
	if err != nil {
		return types.Account{}, err
	}
	next.Role = role

	updated, err := s.accounts.Update(ctx, next)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			return types.Account{}, FieldError(FieldUsername, msgDuplicate)
		}
		return types.Account{}, err
	}
	s.events.Publish(ctx, events.Event{Type: events.AccountUpdated, AccountID: updated.ID})
	return updated, nil
}

// Delete removes the account together with its tasks and attachments.
func (s *AccountService) Delete(ctx context.Context, actor types.Account, id int) error {
	if err := authz.Check(actor, authz.ActionDeleteAccount, authz.AccountTarget(id)); err != nil {
		return err
	}
	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		return err
	}

	var keys []string
	if s.cleaner != nil {
		found, err := s.cleaner.KeysForOwner(ctx, id)
		if err != nil {
			return fmt.Errorf("collect attachments: %w", err)
		}
		keys = found
	}

	if err := s.accounts.Delete(ctx, id); err != nil {
		return err
	}

	if s.cleaner != nil {
		s.cleaner.RemoveObjects(ctx, keys)
	}
	s.logger.Info("account deleted", "account_id", id, "by", actor.ID, "objects", len(keys))
	s.events.Publish(ctx, events.Event{Type: events.AccountDeleted, AccountID: id})
	return nil
}
