package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tasktracker/apiserver/types"
)

const accountColumns = `id, username, first_name, last_name, role, password_hash, created_at, updated_at`

// AccountRepository handles persistence for accounts.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id int) (types.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM users WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (types.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM users WHERE username = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, username))
}

func (r *AccountRepository) List(ctx context.Context, offset, limit int) ([]types.Account, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	const countQuery = `SELECT COUNT(1) FROM users`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `SELECT ` + accountColumns + ` FROM users ORDER BY id OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	accounts := make([]types.Account, 0, limit)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return accounts, total, nil
}

func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.Role == "" {
		account.Role = types.RoleUser
	}

	const query = `
		INSERT INTO users (username, first_name, last_name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		account.Username,
		account.FirstName,
		account.LastName,
		account.Role,
		account.PasswordHash,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID); err != nil {
		if isUniqueViolation(err, usernameConstraint) {
			return types.Account{}, ErrDuplicateUsername
		}
		return types.Account{}, err
	}
	return account, nil
}

// Update writes every mutable column. CreatedAt is never written.
func (r *AccountRepository) Update(ctx context.Context, account types.Account) (types.Account, error) {
	account.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE users
		SET username = $1,
			first_name = $2,
			last_name = $3,
			role = $4,
			password_hash = $5,
			updated_at = $6
		WHERE id = $7
		RETURNING created_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		account.Username,
		account.FirstName,
		account.LastName,
		account.Role,
		account.PasswordHash,
		account.UpdatedAt,
		account.ID,
	).Scan(&account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		if isUniqueViolation(err, usernameConstraint) {
			return types.Account{}, ErrDuplicateUsername
		}
		return types.Account{}, err
	}
	return account, nil
}

// Delete removes the account. Owned tasks and their attachments are
// removed by the ON DELETE CASCADE foreign keys.
func (r *AccountRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (types.Account, error) {
	var account types.Account
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.FirstName,
		&account.LastName,
		&account.Role,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}
