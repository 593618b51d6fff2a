package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/tsubasa-k/Single-Login/internal/apperror"
)

// mysqlDuplicateEntry is the MariaDB error number for a unique-key violation.
const mysqlDuplicateEntry = 1062

// Credential is the stored record for one (username, password) pair.
// PasswordHash is a self-contained argon2id PHC string.
type Credential struct {
	Username      string
	Email         string
	PasswordHash  string
	EmailVerified bool
}

// CredentialRepository is the persistence contract for credentials.
// The local provider calls these methods -- it never writes SQL itself.
type CredentialRepository interface {
	// Create inserts a credential. Returns apperror.UsernameTaken or
	// apperror.EmailConflict depending on which unique key collided.
	Create(ctx context.Context, cred *Credential) error

	// Find returns the credential for a username, or apperror.NotFound.
	Find(ctx context.Context, username string) (*Credential, error)

	// SetEmailVerified flips the email_verified flag.
	SetEmailVerified(ctx context.Context, username string, verified bool) error

	// Delete removes the credential for a username. Deleting a missing
	// credential is a no-op.
	Delete(ctx context.Context, username string) error
}

// credentialRepository implements CredentialRepository over MariaDB.
type credentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a credential store backed by the given pool.
func NewCredentialRepository(db *sql.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Create(ctx context.Context, cred *Credential) error {
	query := `INSERT INTO credentials (username, email, password_hash, email_verified)
	          VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		cred.Username, cred.Email, cred.PasswordHash, cred.EmailVerified)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			// The error message names the violated key, which tells us
			// whether the username or the email collided.
			if strings.Contains(myErr.Message, "uq_credentials_email") {
				return apperror.NewEmailConflict()
			}
			return apperror.NewUsernameTaken(cred.Username)
		}
		return fmt.Errorf("inserting credential: %w", err)
	}
	return nil
}

func (r *credentialRepository) Find(ctx context.Context, username string) (*Credential, error) {
	query := `SELECT username, email, password_hash, email_verified
	          FROM credentials WHERE username = ?`

	cred := &Credential{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&cred.Username, &cred.Email, &cred.PasswordHash, &cred.EmailVerified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("credential not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return cred, nil
}

func (r *credentialRepository) Delete(ctx context.Context, username string) error {
	query := `DELETE FROM credentials WHERE username = ?`

	if _, err := r.db.ExecContext(ctx, query, username); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}

func (r *credentialRepository) SetEmailVerified(ctx context.Context, username string, verified bool) error {
	query := `UPDATE credentials SET email_verified = ? WHERE username = ?`

	result, err := r.db.ExecContext(ctx, query, verified, username)
	if err != nil {
		return fmt.Errorf("updating email verification: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		// Setting the flag to its current value also affects zero rows, so
		// only a genuinely missing row is an error.
		if _, err := r.Find(ctx, username); err != nil {
			return err
		}
	}
	return nil
}
