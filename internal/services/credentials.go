package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tasktracker/apiserver/internal/events"
	"github.com/tasktracker/apiserver/internal/store"
	"github.com/tasktracker/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id int) (types.Account, error)
	GetByUsername(ctx context.Context, username string) (types.Account, error)
	List(ctx context.Context, offset, limit int) ([]types.Account, int, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	Update(ctx context.Context, account types.Account) (types.Account, error)
	Delete(ctx context.Context, id int) error
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username  string
	FirstName string
	LastName  string
	Password  string
}

// AccountPatch carries requested account changes. Nil fields are left
// untouched.
type AccountPatch struct {
	Username  *string
	FirstName *string
	LastName  *string
	Password  *string
	IsAdmin   *bool
}

// CredentialService owns account validation, password hashing and tokens.
type CredentialService struct {
	accounts AccountRepository
	tokens   *TokenIssuer
	events   EventPublisher

	// HashCost is the bcrypt cost for new password hashes.
	HashCost int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewCredentialService(accounts AccountRepository, tokens *TokenIssuer, publisher EventPublisher) *CredentialService {
	return &CredentialService{
		accounts: accounts,
		tokens:   tokens,
		events:   publisherOrNoop(publisher),
		HashCost: bcrypt.DefaultCost,
	}
}

// Register creates an ordinary account. Validation stops at the first
// failing step: username, then first name, then password.
func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (types.Account, error) {
	account, err := s.CreateAccount(ctx, in, types.RoleUser)
	if err != nil {
		return types.Account{}, err
	}
	s.events.Publish(ctx, events.Event{Type: events.AccountRegistered, AccountID: account.ID})
	return account, nil
}

// CreateAccount validates and stores a new account with the given role.
// Authorization is the caller's concern.
func (s *CredentialService) CreateAccount(ctx context.Context, in RegisterInput, role types.Role) (types.Account, error) {
	username := strings.TrimSpace(in.Username)
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)

	if problems := ValidateUsername(username); problems != nil {
		return types.Account{}, FieldError(FieldUsername, problems...)
	}
	if err := s.ensureUsernameFree(ctx, username, 0); err != nil {
		return types.Account{}, err
	}
	if problems := ValidateFirstName(firstName); problems != nil {
		return types.Account{}, FieldError(FieldFirstName, problems...)
	}
	if problems := ValidateLastName(lastName); problems != nil {
		return types.Account{}, FieldError(FieldLastName, problems...)
	}
	attrs := PasswordAttributes{Username: username, FirstName: firstName, LastName: lastName}
	if problems := ValidatePassword(in.Password, attrs); problems != nil {
		return types.Account{}, FieldError(FieldPassword, problems...)
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return types.Account{}, err
	}

	account, err := s.accounts.Create(ctx, types.Account{
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			return types.Account{}, FieldError(FieldUsername, msgDuplicate)
		}
		return types.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// Authenticate verifies a username and password and issues a token pair.
// An unknown username and a wrong password both yield
// ErrInvalidCredentials, after a bcrypt comparison either way.
func (s *CredentialService) Authenticate(ctx context.Context, username, password string) (TokenPair, error) {
	account, err := s.accounts.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("load account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.tokens.IssuePair(account.ID)
}

// Refresh exchanges a refresh token for a new access token. The account
// the token was issued for must still exist.
func (s *CredentialService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	id, err := s.tokens.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("load account: %w", err)
	}
	return s.tokens.Issue(id, TokenTypeAccess)
}

// Identify resolves an access token to its account. Every failure wraps
// ErrUnauthenticated.
func (s *CredentialService) Identify(ctx context.Context, accessToken string) (types.Account, error) {
	if strings.TrimSpace(accessToken) == "" {
		return types.Account{}, ErrUnauthenticated
	}
	id, err := s.tokens.Parse(accessToken, TokenTypeAccess)
	if err != nil {
		return types.Account{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrInvalidToken)
		}
		return types.Account{}, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

// ApplyAccountChanges validates patch against current and returns the
// account as it should be stored. All failing fields are reported
// together. When partial is false, username and first name are required.
// Role changes are not applied here.
func (s *CredentialService) ApplyAccountChanges(ctx context.Context, current types.Account, patch AccountPatch, partial bool) (types.Account, error) {
	v := &ValidationError{}
	next := current

	switch {
	case patch.Username != nil:
		username := strings.TrimSpace(*patch.Username)
		if problems := ValidateUsername(username); problems != nil {
			v.Add(FieldUsername, problems...)
		} else if username != current.Username {
			if err := s.ensureUsernameFree(ctx, username, current.ID); err != nil {
				var fieldErr *ValidationError
				if !errors.As(err, &fieldErr) {
					return types.Account{}, err
				}
				v.Add(FieldUsername, msgDuplicate)
			}
		}
		next.Username = username
	case !partial:
		v.Add(FieldUsername, msgRequired)
	}

	switch {
	case patch.FirstName != nil:
		firstName := strings.TrimSpace(*patch.FirstName)
		if problems := ValidateFirstName(firstName); problems != nil {
			v.Add(FieldFirstName, problems...)
		}
		next.FirstName = firstName
	case !partial:
		v.Add(FieldFirstName, msgRequired)
	}

	if patch.LastName != nil {
		lastName := strings.TrimSpace(*patch.LastName)
		if problems := ValidateLastName(lastName); problems != nil {
			v.Add(FieldLastName, problems...)
		}
		next.LastName = lastName
	}

	if patch.Password != nil {
		attrs := PasswordAttributes{Username: next.Username, FirstName: next.FirstName, LastName: next.LastName}
		if problems := ValidatePassword(*patch.Password, attrs); problems != nil {
			v.Add(FieldPassword, problems...)
		}
	}

	if err := v.OrNil(); err != nil {
		return types.Account{}, err
	}

	if patch.Password != nil {
		hash, err := s.hash(*patch.Password)
		if err != nil {
			return types.Account{}, err
		}
		next.PasswordHash = hash
	}
	return next, nil
}

// ensureUsernameFree reports a username field error when another account
// already holds username. The unique constraint still decides races.
func (s *CredentialService) ensureUsernameFree(ctx context.Context, username string, selfID int) error {
	existing, err := s.accounts.GetByUsername(ctx, username)
	switch {
	case err == nil && existing.ID != selfID:
		return FieldError(FieldUsername, msgDuplicate)
	case err == nil, errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("check username: %w", err)
	}
}

func (s *CredentialService) hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.HashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

func (s *CredentialService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("tasktracker-dummy-password"), s.HashCost)
	})
	return s.dummyHash
}
