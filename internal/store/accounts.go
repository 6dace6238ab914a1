package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateAccount inserts a new account. Zero-valued plan, credits, and
// project limit fields are filled with the signup defaults.
func (d *DB) CreateAccount(ctx context.Context, account Account) (Account, error) {
	if account.Plan == "" {
		account.Plan = PlanFree
	}
	if account.RPCCredits == 0 {
		account.RPCCredits = DefaultRPCCredits
	}
	if account.ProjectLimit == 0 {
		account.ProjectLimit = DefaultProjectLimit
	}
	if account.AuthProviders == "" {
		account.AuthProviders = "password"
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	query := `
	INSERT INTO accounts (id, email, name, auth_providers, password_hash, plan, rpc_credits, project_limit, verified, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.ExecContext(
		ctx,
		d.rebind(query),
		account.ID,
		account.Email,
		account.Name,
		account.AuthProviders,
		account.PasswordHash,
		account.Plan,
		account.RPCCredits,
		account.ProjectLimit,
		account.Verified,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrEmailTaken
		}
		return Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	return account, nil
}

// GetAccountByID retrieves an account by id.
func (d *DB) GetAccountByID(ctx context.Context, id string) (Account, error) {
	return d.getAccount(ctx, "id", id)
}

// GetAccountByEmail retrieves an account by email.
func (d *DB) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return d.getAccount(ctx, "email", email)
}

func (d *DB) getAccount(ctx context.Context, column, value string) (Account, error) {
	query := fmt.Sprintf(`
	SELECT id, email, name, auth_providers, password_hash, plan, rpc_credits, project_limit, verified, created_at, updated_at
	FROM accounts
	WHERE %s = ?
	`, column)

	var account Account
	err := d.db.QueryRowContext(ctx, d.rebind(query), value).Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.AuthProviders,
		&account.PasswordHash,
		&account.Plan,
		&account.RPCCredits,
		&account.ProjectLimit,
		&account.Verified,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetAccountWithProjects retrieves an account together with its projects.
// The identity resolver uses this for its per-request lookup.
func (d *DB) GetAccountWithProjects(ctx context.Context, id string) (Account, []Project, error) {
	account, err := d.GetAccountByID(ctx, id)
	if err != nil {
		return Account{}, nil, err
	}
	projects, err := d.ListProjectsByAccount(ctx, id)
	if err != nil {
		return Account{}, nil, err
	}
	return account, projects, nil
}

// UpdateAccount persists mutable account fields (name, providers, plan,
// verified flag, password hash). Credits change only through AddCredits
// and DebitCredits.
func (d *DB) UpdateAccount(ctx context.Context, account Account) error {
	query := `
	UPDATE accounts
	SET name = ?, auth_providers = ?, password_hash = ?, plan = ?, verified = ?, updated_at = ?
	WHERE id = ?
	`

	result, err := d.db.ExecContext(
		ctx,
		d.rebind(query),
		account.Name,
		account.AuthProviders,
		account.PasswordHash,
		account.Plan,
		account.Verified,
		time.Now().UTC(),
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireRowAffected(result, ErrAccountNotFound)
}

// GetCredits returns the account's current rpc credit balance.
func (d *DB) GetCredits(ctx context.Context, accountID string) (int64, error) {
	var credits int64
	err := d.db.QueryRowContext(ctx, d.rebind(`SELECT rpc_credits FROM accounts WHERE id = ?`), accountID).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to get credits: %w", err)
	}
	return credits, nil
}

// DebitCredits atomically subtracts amount from the account's balance.
// The decrement is conditional on the balance covering the amount, so
// concurrent debits cannot drive the balance negative.
func (d *DB) DebitCredits(ctx context.Context, accountID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}

	query := `UPDATE accounts SET rpc_credits = rpc_credits - ?, updated_at = ? WHERE id = ? AND rpc_credits >= ?`

	result, err := d.db.ExecContext(ctx, d.rebind(query), amount, time.Now().UTC(), accountID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit credits: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// The update matched nothing: either the account is gone or the
	// balance could not cover the amount.
	if _, err := d.GetAccountByID(ctx, accountID); err != nil {
		return err
	}
	return ErrInsufficientCredits
}

// AddCredits adds amount to the account's balance and returns the new balance.
func (d *DB) AddCredits(ctx context.Context, accountID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(
		ctx,
		d.rebind(`UPDATE accounts SET rpc_credits = rpc_credits + ?, updated_at = ? WHERE id = ?`),
		amount, time.Now().UTC(), accountID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add credits: %w", err)
	}
	if err := requireRowAffected(result, ErrAccountNotFound); err != nil {
		return 0, err
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, d.rebind(`SELECT rpc_credits FROM accounts WHERE id = ?`), accountID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return balance, nil
}

// requireRowAffected maps a zero-row update to notFound.
func requireRowAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isUniqueViolation reports whether err comes from a unique constraint,
// covering both the SQLite and PostgreSQL driver error texts.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
