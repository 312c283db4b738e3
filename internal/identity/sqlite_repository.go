package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id             TEXT PRIMARY KEY,
    login_id       TEXT NOT NULL UNIQUE,
    full_name      TEXT NOT NULL,
    email          TEXT NOT NULL UNIQUE,
    phone_number   TEXT NOT NULL,
    role           TEXT NOT NULL,
    aadhaar_number TEXT NOT NULL DEFAULT '',
    address        TEXT NOT NULL DEFAULT '',
    password_hash  BLOB,
    status         TEXT NOT NULL,
    created_at     TEXT NOT NULL
)`

// SQLiteRepository implements Repository on a local SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open SQLite handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// EnsureSchema creates the accounts table when missing.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, sqliteSchema)
	return err
}

// Create inserts a new account.
func (r *SQLiteRepository) Create(ctx context.Context, account Account) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO accounts
        (id, login_id, full_name, email, phone_number, role, aadhaar_number, address, password_hash, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.LoginID, account.FullName, account.Email, account.PhoneNumber, string(account.Role),
		account.AadhaarNumber, account.Address, account.PasswordHash, account.Status,
		account.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrExists
		}
		return err
	}
	return nil
}

// FindByID fetches an account by its internal identifier.
func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (Account, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectAccount+` WHERE id = ?`, id))
}

// FindByLoginID fetches an account by its login ID.
func (r *SQLiteRepository) FindByLoginID(ctx context.Context, loginID string) (Account, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectAccount+` WHERE login_id = ?`, loginID))
}

// FindByEmail fetches an account by its email address.
func (r *SQLiteRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectAccount+` WHERE email = ?`, email))
}

// DeletePending removes a pending account.
func (r *SQLiteRepository) DeletePending(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ? AND status = ?`, id, StatusPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Activate stores the password hash and marks the account active.
func (r *SQLiteRepository) Activate(ctx context.Context, id string, passwordHash []byte) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET password_hash = ?, status = ? WHERE id = ?`,
		passwordHash, StatusActive, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) scanOne(row *sql.Row) (Account, error) {
	var (
		role      string
		createdAt string
		account   Account
	)
	err := row.Scan(&account.ID, &account.LoginID, &account.FullName, &account.Email, &account.PhoneNumber, &role,
		&account.AadhaarNumber, &account.Address, &account.PasswordHash, &account.Status, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	account.Role = Role(role)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		account.CreatedAt = t
	}
	return account, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
