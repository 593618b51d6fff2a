package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/tsubasa-k/Single-Login/internal/apperror"
)

// mysqlDuplicateEntry is the MariaDB error number for a unique-key violation.
const mysqlDuplicateEntry = 1062

// repository implements Store with hand-written MariaDB queries.
// All SQL lives here -- no SQL leaks out.
type repository struct {
	db *sql.DB
}

// NewRepository creates a new account store backed by the given DB pool.
func NewRepository(db *sql.DB) Store {
	return &repository{db: db}
}

// Get retrieves an account and its trusted address set.
// Returns apperror.NotFound if no account exists with this username.
func (r *repository) Get(ctx context.Context, username string) (*Account, error) {
	query := `SELECT username, email, email_verified, registration_address,
	                 step_up_secret, step_up_enabled,
	                 device_id, session_id, logged_in_address, created_at
	          FROM accounts WHERE username = ?`

	acct := &Account{}
	var deviceID, sessionID, loggedInAddr sql.NullString
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&acct.Username,
		&acct.Email,
		&acct.EmailVerified,
		&acct.RegistrationAddress,
		&acct.StepUpSecret,
		&acct.StepUpEnabled,
		&deviceID,
		&sessionID,
		&loggedInAddr,
		&acct.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}

	// The CHECK constraint guarantees the triple is all-or-none; a valid
	// session ID implies the other two fields are present.
	if sessionID.Valid {
		acct.Session = &ActiveSession{
			DeviceID:  deviceID.String,
			SessionID: sessionID.String,
			Address:   loggedInAddr.String,
		}
	}

	trusted, err := r.listTrusted(ctx, username)
	if err != nil {
		return nil, err
	}
	acct.TrustedAddresses = trusted

	return acct, nil
}

// Exists returns true if an account row exists for the username.
func (r *repository) Exists(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE username = ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking account existence: %w", err)
	}
	return exists, nil
}

// Create inserts a new account row and seeds the trusted address set with
// the registration address when one was observed.
func (r *repository) Create(ctx context.Context, acct *Account) error {
	query := `INSERT INTO accounts
	          (username, email, email_verified, registration_address,
	           step_up_secret, step_up_enabled, created_at)
	          VALUES (?, ?, ?, ?, NULL, FALSE, ?)`

	_, err := r.db.ExecContext(ctx, query,
		acct.Username,
		acct.Email,
		acct.EmailVerified,
		acct.RegistrationAddress,
		acct.CreatedAt,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return apperror.NewUsernameTaken(acct.Username)
		}
		return fmt.Errorf("inserting account: %w", err)
	}

	if acct.RegistrationAddress != nil && *acct.RegistrationAddress != "" {
		if err := r.AddTrustedAddress(ctx, acct.Username, *acct.RegistrationAddress); err != nil {
			return err
		}
	}

	return nil
}

// BindSession sets the session triple if and only if no session is held.
// The WHERE clause is the compare-and-swap: two concurrent binds cannot
// both see session_id IS NULL, so exactly one wins.
func (r *repository) BindSession(ctx context.Context, username string, sess ActiveSession) error {
	query := `UPDATE accounts
	          SET device_id = ?, session_id = ?, logged_in_address = ?
	          WHERE username = ? AND session_id IS NULL`

	result, err := r.db.ExecContext(ctx, query,
		sess.DeviceID, sess.SessionID, sess.Address, username)
	if err != nil {
		return fmt.Errorf("binding session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("binding session: %w", err)
	}
	if n == 0 {
		// Either the account does not exist or a session is already held.
		exists, err := r.Exists(ctx, username)
		if err != nil {
			return err
		}
		if !exists {
			return apperror.NewNotFound("account not found")
		}
		return ErrSessionHeld
	}

	return nil
}

// ClearSessionIf clears the session triple only when the held session ID
// matches. Zero rows affected means the session already changed hands; the
// caller treats that as already done.
func (r *repository) ClearSessionIf(ctx context.Context, username, sessionID string) error {
	query := `UPDATE accounts
	          SET device_id = NULL, session_id = NULL, logged_in_address = NULL
	          WHERE username = ? AND session_id = ?`

	if _, err := r.db.ExecContext(ctx, query, username, sessionID); err != nil {
		return fmt.Errorf("clearing session conditionally: %w", err)
	}
	return nil
}

// AddTrustedAddress appends an address to the trusted set. INSERT IGNORE
// gives set-union semantics under concurrent appends.
func (r *repository) AddTrustedAddress(ctx context.Context, username, address string) error {
	query := `INSERT IGNORE INTO trusted_addresses (username, address, added_at)
	          VALUES (?, ?, ?)`

	if _, err := r.db.ExecContext(ctx, query, username, address, time.Now().UTC()); err != nil {
		return fmt.Errorf("adding trusted address: %w", err)
	}
	return nil
}

// SetStepUpSecret stores a freshly provisioned secret, disabled. It also
// resets step_up_enabled so re-provisioning always demands a new proof of
// possession before codes are accepted.
func (r *repository) SetStepUpSecret(ctx context.Context, username, secret string) error {
	query := `UPDATE accounts
	          SET step_up_secret = ?, step_up_enabled = FALSE
	          WHERE username = ?`

	result, err := r.db.ExecContext(ctx, query, secret, username)
	if err != nil {
		return fmt.Errorf("storing step-up secret: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("account not found")
	}
	return nil
}

// EnableStepUp flips step_up_enabled for an account whose stored secret
// still matches. The WHERE clause is a compare-and-swap: a secret rotated
// between the possession proof and this update affects zero rows, so a
// never-proven secret cannot become enabled.
func (r *repository) EnableStepUp(ctx context.Context, username, secret string) error {
	query := `UPDATE accounts
	          SET step_up_enabled = TRUE
	          WHERE username = ? AND step_up_secret = ?`

	result, err := r.db.ExecContext(ctx, query, username, secret)
	if err != nil {
		return fmt.Errorf("enabling step-up: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("no provisioned step-up secret to enable")
	}
	return nil
}

// SetEmailVerified syncs the identity provider's email assertion onto the
// account row.
func (r *repository) SetEmailVerified(ctx context.Context, username string, verified bool) error {
	query := `UPDATE accounts SET email_verified = ? WHERE username = ?`

	if _, err := r.db.ExecContext(ctx, query, verified, username); err != nil {
		return fmt.Errorf("updating email verification: %w", err)
	}
	return nil
}

// listTrusted loads the trusted address set for an account.
func (r *repository) listTrusted(ctx context.Context, username string) ([]string, error) {
	query := `SELECT address FROM trusted_addresses WHERE username = ? ORDER BY added_at`

	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("listing trusted addresses: %w", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scanning trusted address: %w", err)
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}
