package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrExists is returned when the login ID or email is already taken.
	ErrExists = errors.New("account exists")
)

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, account Account) error
	FindByID(ctx context.Context, id string) (Account, error)
	FindByLoginID(ctx context.Context, loginID string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	Activate(ctx context.Context, id string, passwordHash []byte) error
	// DeletePending removes an account that never completed activation.
	// Active accounts are left alone and reported as ErrNotFound.
	DeletePending(ctx context.Context, id string) error
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id             UUID PRIMARY KEY,
    login_id       TEXT NOT NULL UNIQUE,
    full_name      TEXT NOT NULL,
    email          TEXT NOT NULL UNIQUE,
    phone_number   TEXT NOT NULL,
    role           TEXT NOT NULL,
    aadhaar_number TEXT NOT NULL DEFAULT '',
    address        TEXT NOT NULL DEFAULT '',
    password_hash  BYTEA,
    status         TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL
)`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the accounts table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, postgresSchema)
	return err
}

// Create inserts a new account.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	id, err := uuid.Parse(account.ID)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `INSERT INTO accounts
        (id, login_id, full_name, email, phone_number, role, aadhaar_number, address, password_hash, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT DO NOTHING`,
		id, account.LoginID, account.FullName, account.Email, account.PhoneNumber, string(account.Role),
		account.AadhaarNumber, account.Address, account.PasswordHash, account.Status, account.CreatedAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}

// FindByID fetches an account by its internal identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Account, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return r.scanOne(r.db.QueryRow(ctx, selectAccount+` WHERE id = $1`, parsed))
}

// FindByLoginID fetches an account by the login ID handed out at registration.
func (r *PostgresRepository) FindByLoginID(ctx context.Context, loginID string) (Account, error) {
	return r.scanOne(r.db.QueryRow(ctx, selectAccount+` WHERE login_id = $1`, loginID))
}

// FindByEmail fetches an account by its email address.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	return r.scanOne(r.db.QueryRow(ctx, selectAccount+` WHERE email = $1`, email))
}

// DeletePending removes a pending account.
func (r *PostgresRepository) DeletePending(ctx context.Context, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND status = $2`, parsed, StatusPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Activate stores the password hash and marks the account active.
func (r *PostgresRepository) Activate(ctx context.Context, id string, passwordHash []byte) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET password_hash = $1, status = $2 WHERE id = $3`,
		passwordHash, StatusActive, parsed)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const selectAccount = `SELECT id, login_id, full_name, email, phone_number, role, aadhaar_number, address,
    password_hash, status, created_at FROM accounts`

func (r *PostgresRepository) scanOne(row pgx.Row) (Account, error) {
	var (
		id        uuid.UUID
		role      string
		createdAt time.Time
		account   Account
	)
	err := row.Scan(&id, &account.LoginID, &account.FullName, &account.Email, &account.PhoneNumber, &role,
		&account.AadhaarNumber, &account.Address, &account.PasswordHash, &account.Status, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	account.ID = id.String()
	account.Role = Role(role)
	account.CreatedAt = createdAt.UTC()
	return account, nil
}
