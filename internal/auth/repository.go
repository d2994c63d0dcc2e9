package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository implements AccountStore and TenantStore over Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const accountColumns = `id, username, email, full_name, role, organization_id, is_active,
	failed_login_attempts, locked_until, last_login_at, created_at, updated_at`

func scanAccount(row *sql.Row, withPassword bool) (*Account, error) {
	var account Account
	var lockedUntil, lastLoginAt sql.NullTime

	dest := []any{
		&account.ID, &account.Username, &account.Email, &account.FullName,
		&account.Role, &account.OrganizationID, &account.IsActive,
		&account.FailedLoginAttempts, &lockedUntil, &lastLoginAt,
		&account.CreatedAt, &account.UpdatedAt,
	}
	if withPassword {
		dest = append(dest, &account.PasswordHash)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		account.LockedUntil = &value
	}
	if lastLoginAt.Valid {
		value := lastLoginAt.Time.UTC()
		account.LastLoginAt = &value
	}

	return &account, nil
}

func (r *Repository) findBy(ctx context.Context, column, value string, withPassword bool) (*Account, error) {
	columns := accountColumns
	if withPassword {
		columns += ", password_hash"
	}

	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM lab_users
		WHERE %s = $1
	`, columns, column), value)

	return scanAccount(row, withPassword)
}

func (r *Repository) FindByEmail(ctx context.Context, email string, withPassword bool) (*Account, error) {
	return r.findBy(ctx, "email", email, withPassword)
}

func (r *Repository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return r.findBy(ctx, "username", username, false)
}

func (r *Repository) FindByID(ctx context.Context, id string, withPassword bool) (*Account, error) {
	return r.findBy(ctx, "id", id, withPassword)
}

func (r *Repository) Create(ctx context.Context, account *Account) error {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lab_users (
			id, username, email, password_hash, full_name, role, organization_id,
			is_active, failed_login_attempts, locked_until, last_login_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`, account.ID, account.Username, account.Email, account.PasswordHash,
		account.FullName, account.Role, account.OrganizationID, account.IsActive,
		account.FailedLoginAttempts, nullableTime(account.LockedUntil),
		nullableTime(account.LastLoginAt), now)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// Save round-trips the account's mutable state in a single UPDATE. The
// password hash is written only when the caller loaded it; an empty hash
// means the password projection was excluded and must stay untouched.
func (r *Repository) Save(ctx context.Context, account *Account) error {
	now := time.Now().UTC()
	account.UpdatedAt = now

	query := `
		UPDATE lab_users
		SET full_name = $2, role = $3, is_active = $4,
			failed_login_attempts = $5, locked_until = $6, last_login_at = $7,
			updated_at = $8
		WHERE id = $1
	`
	args := []any{
		account.ID, account.FullName, account.Role, account.IsActive,
		account.FailedLoginAttempts, nullableTime(account.LockedUntil),
		nullableTime(account.LastLoginAt), now,
	}
	if account.PasswordHash != "" {
		query = `
			UPDATE lab_users
			SET full_name = $2, role = $3, is_active = $4,
				failed_login_attempts = $5, locked_until = $6, last_login_at = $7,
				updated_at = $8, password_hash = $9
			WHERE id = $1
		`
		args = append(args, account.PasswordHash)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update account: %w", err)
	}

	return nil
}

// ListByOrganization returns the accounts of one tenant, password projection
// always excluded.
func (r *Repository) ListByOrganization(ctx context.Context, orgID string) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM lab_users
		WHERE organization_id = $1
		ORDER BY created_at ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var account Account
		var lockedUntil, lastLoginAt sql.NullTime
		err := rows.Scan(
			&account.ID, &account.Username, &account.Email, &account.FullName,
			&account.Role, &account.OrganizationID, &account.IsActive,
			&account.FailedLoginAttempts, &lockedUntil, &lastLoginAt,
			&account.CreatedAt, &account.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		if lockedUntil.Valid {
			value := lockedUntil.Time.UTC()
			account.LockedUntil = &value
		}
		if lastLoginAt.Valid {
			value := lastLoginAt.Time.UTC()
			account.LastLoginAt = &value
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

func (r *Repository) FindOrganizationByID(ctx context.Context, id string) (*Organization, error) {
	var org Organization
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, code, is_active, created_at
		FROM lab_organizations
		WHERE id = $1
	`, id).Scan(&org.ID, &org.Name, &org.Code, &org.IsActive, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query organization: %w", err)
	}

	return &org, nil
}

// ClearExpiredLocks bulk-resets counters whose lock deadline has passed.
// The login path reclaims these lazily; this keeps long-idle rows tidy.
func (r *Repository) ClearExpiredLocks(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH lapsed AS (
			SELECT id
			FROM lab_users
			WHERE locked_until IS NOT NULL AND locked_until < NOW()
			ORDER BY locked_until ASC
			LIMIT $1
		)
		UPDATE lab_users u
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		FROM lapsed
		WHERE u.id = lapsed.id
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired locks: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired locks rows affected: %w", err)
	}

	return affected, nil
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC()
}
