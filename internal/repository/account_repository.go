package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lorelink/internal/models"
)

type accountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `account_id, email, password_hash, verified, verification_token,
	refresh_token, refresh_token_expiry_time, created_at, deleted_at`

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.AccountID == "" {
		account.AccountID = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO accounts (account_id, email, password_hash, verified, created_at) VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		account.AccountID, account.Email, account.PasswordHash, account.Verified, account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "email") {
			return fmt.Errorf("%w: email %s is already registered", models.ErrConflict, account.Email)
		}
		return storageErr("create account", err)
	}

	return nil
}

func (r *accountRepository) get(ctx context.Context, op, where string, arg any) (*models.Account, error) {
	var account models.Account

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where + ` AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, &account, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, storageErr(op, err)
	}

	return &account, nil
}

func (r *accountRepository) GetByID(ctx context.Context, accountID string) (*models.Account, error) {
	return r.get(ctx, "get account", "account_id = $1", accountID)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.get(ctx, "get account by email", "email = $1", email)
}

func (r *accountRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*models.Account, error) {
	account, err := r.get(ctx, "get account by refresh token", "refresh_token = $1", refreshToken)
	if err != nil {
		return nil, err
	}

	if account.RefreshTokenExpiryTime == nil || account.RefreshTokenExpiryTime.Before(time.Now()) {
		return nil, fmt.Errorf("refresh token expired: %w", models.ErrAuthRequired)
	}

	return account, nil
}

func (r *accountRepository) SetVerificationToken(ctx context.Context, accountID, token string) error {
	query := `UPDATE accounts SET verification_token = $1 WHERE account_id = $2 AND deleted_at IS NULL`

	return r.execOne(ctx, "set verification token", query, token, accountID)
}

func (r *accountRepository) VerifyByToken(ctx context.Context, token string) (*models.Account, error) {
	var account models.Account

	query := `UPDATE accounts SET verified = TRUE, verification_token = NULL
		WHERE verification_token = $1 AND deleted_at IS NULL
		RETURNING ` + accountColumns

	err := r.db.GetContext(ctx, &account, query, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verify email: %w", models.ErrNotFound)
		}
		return nil, storageErr("verify email", err)
	}

	return &account, nil
}

func (r *accountRepository) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $1 WHERE account_id = $2 AND deleted_at IS NULL`

	return r.execOne(ctx, "update password", query, passwordHash, accountID)
}

func (r *accountRepository) UpdateRefreshToken(ctx context.Context, accountID string, refreshToken *string, expiryTime *time.Time) error {
	query := `UPDATE accounts SET refresh_token = $1, refresh_token_expiry_time = $2 WHERE account_id = $3 AND deleted_at IS NULL`

	return r.execOne(ctx, "update refresh token", query, refreshToken, expiryTime, accountID)
}

func (r *accountRepository) SoftDelete(ctx context.Context, accountID string) error {
	query := `UPDATE accounts SET deleted_at = NOW(), refresh_token = NULL, refresh_token_expiry_time = NULL,
		verification_token = NULL
		WHERE account_id = $1 AND deleted_at IS NULL`

	return r.execOne(ctx, "delete account", query, accountID)
}

func (r *accountRepository) Purge(ctx context.Context, accountID string) error {
	return r.execOne(ctx, "purge account", `DELETE FROM accounts WHERE account_id = $1`, accountID)
}

func (r *accountRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr(op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}

	return nil
}
