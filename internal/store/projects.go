package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateProject inserts a project for the account, enforcing the account's
// project limit. The count and insert run in one transaction so two
// concurrent creates cannot both slip under the limit. A zero Epoch is
// replaced with a fresh random one.
func (d *DB) CreateProject(ctx context.Context, project Project) (Project, error) {
	if project.Epoch == 0 {
		project.Epoch = NewEpoch()
	}
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Project{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var limit int
	err = tx.QueryRowContext(ctx, d.rebind(`SELECT project_limit FROM accounts WHERE id = ?`), project.AccountID).Scan(&limit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, ErrAccountNotFound
		}
		return Project{}, fmt.Errorf("failed to get project limit: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx, d.rebind(`SELECT COUNT(*) FROM projects WHERE account_id = ?`), project.AccountID).Scan(&count)
	if err != nil {
		return Project{}, fmt.Errorf("failed to count projects: %w", err)
	}
	if count >= limit {
		return Project{}, ErrProjectLimitReached
	}

	_, err = tx.ExecContext(
		ctx,
		d.rebind(`INSERT INTO projects (id, account_id, name, whitelisted_domain, dev_mode, epoch, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		project.ID,
		project.AccountID,
		project.Name,
		project.WhitelistedDomain,
		project.DevMode,
		project.Epoch,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return Project{}, fmt.Errorf("failed to create project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Project{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return project, nil
}

// GetProjectByID retrieves a project by id.
func (d *DB) GetProjectByID(ctx context.Context, projectID string) (Project, error) {
	query := `
	SELECT id, account_id, name, whitelisted_domain, dev_mode, epoch, created_at, updated_at
	FROM projects
	WHERE id = ?
	`

	var project Project
	err := d.db.QueryRowContext(ctx, d.rebind(query), projectID).Scan(
		&project.ID,
		&project.AccountID,
		&project.Name,
		&project.WhitelistedDomain,
		&project.DevMode,
		&project.Epoch,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, ErrProjectNotFound
		}
		return Project{}, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

// ListProjectsByAccount lists the account's projects, newest first.
func (d *DB) ListProjectsByAccount(ctx context.Context, accountID string) ([]Project, error) {
	query := `
	SELECT id, account_id, name, whitelisted_domain, dev_mode, epoch, created_at, updated_at
	FROM projects
	WHERE account_id = ?
	ORDER BY created_at DESC, id DESC
	`

	rows, err := d.db.QueryContext(ctx, d.rebind(query), accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var projects []Project
	for rows.Next() {
		var project Project
		if err := rows.Scan(
			&project.ID,
			&project.AccountID,
			&project.Name,
			&project.WhitelistedDomain,
			&project.DevMode,
			&project.Epoch,
			&project.CreatedAt,
			&project.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// UpdateProject persists the project's mutable fields (name, whitelisted
// domain, dev mode). The epoch is fixed at creation and never changes.
func (d *DB) UpdateProject(ctx context.Context, project Project) error {
	query := `
	UPDATE projects
	SET name = ?, whitelisted_domain = ?, dev_mode = ?, updated_at = ?
	WHERE id = ? AND account_id = ?
	`

	result, err := d.db.ExecContext(
		ctx,
		d.rebind(query),
		project.Name,
		project.WhitelistedDomain,
		project.DevMode,
		time.Now().UTC(),
		project.ID,
		project.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return requireRowAffected(result, ErrProjectNotFound)
}

// DeleteProject removes a project owned by the account. The account check
// keeps one account from deleting another account's project by id.
func (d *DB) DeleteProject(ctx context.Context, accountID, projectID string) error {
	query := `DELETE FROM projects WHERE id = ? AND account_id = ?`

	result, err := d.db.ExecContext(ctx, d.rebind(query), projectID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireRowAffected(result, ErrProjectNotFound)
}
