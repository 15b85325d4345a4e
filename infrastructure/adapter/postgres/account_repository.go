package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/pawhaven/pawhaven/application/port/outbound"
	"github.com/pawhaven/pawhaven/domain/entity"
)

const uniqueViolation = "23505"

// DBTX is the subset of database/sql the repositories need; *sql.DB and
// *sql.Tx both satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type accountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) outbound.AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, email, password_hash, role, last_login_at,
	password_reset_token, password_reset_expires_at, created_at, updated_at`

func (r *accountRepository) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1 AND deleted_at IS NULL`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, outbound.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE lower(email) = lower($1) AND deleted_at IS NULL`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, outbound.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

func (r *accountRepository) Create(ctx context.Context, account *entity.Account) error {
	query := `
		INSERT INTO accounts (id, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		string(account.Role),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return outbound.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *accountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE accounts
		SET last_login_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.execOne(ctx, "update last login", query, id, at)
}

func (r *accountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE accounts
		SET password_hash = $2, password_reset_token = NULL,
			password_reset_expires_at = NULL, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.execOne(ctx, "update password", query, id, passwordHash, time.Now())
}

func (r *accountRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return outbound.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row *sql.Row) (*entity.Account, error) {
	var (
		account       entity.Account
		role          string
		lastLogin     sql.NullTime
		resetToken    sql.NullString
		resetExpireAt sql.NullTime
	)

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&role,
		&lastLogin,
		&resetToken,
		&resetExpireAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Role = entity.Role(role)
	if lastLogin.Valid {
		account.LastLoginAt = &lastLogin.Time
	}
	if resetToken.Valid {
		account.PasswordResetToken = &resetToken.String
	}
	if resetExpireAt.Valid {
		account.PasswordResetExpiresAt = &resetExpireAt.Time
	}
	return &account, nil
}
