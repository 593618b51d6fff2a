package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the data access contract for the audit log.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type Repository interface {
	// Log inserts a new entry.
	Log(ctx context.Context, entry *Entry) error

	// ListByUsername returns paginated entries for an account, most recent
	// first. Returns the entries, total count (for pagination), and any error.
	ListByUsername(ctx context.Context, username string, limit, offset int) ([]Entry, int, error)
}

// repository implements Repository with MariaDB queries.
type repository struct {
	db *sql.DB
}

// NewRepository creates a new repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// Log inserts a new audit entry and backfills its generated ID.
func (r *repository) Log(ctx context.Context, entry *Entry) error {
	query := `INSERT INTO audit_log (username, action, address, device_id, detail, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		entry.Username, entry.Action, entry.Address,
		entry.DeviceID, entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting audit entry id: %w", err)
	}
	entry.ID = id

	return nil
}

// ListByUsername returns entries for an account ordered by most recent first.
func (r *repository) ListByUsername(ctx context.Context, username string, limit, offset int) ([]Entry, int, error) {
	countQuery := `SELECT COUNT(*) FROM audit_log WHERE username = ?`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, username).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	query := `SELECT id, username, action, address, device_id, detail, created_at
	          FROM audit_log
	          WHERE username = ?
	          ORDER BY created_at DESC, id DESC
	          LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, username, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.Username, &e.Action, &e.Address,
			&e.DeviceID, &e.Detail, &e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit rows: %w", err)
	}

	return entries, total, nil
}
