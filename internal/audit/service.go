package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tsubasa-k/Single-Login/internal/apperror"
)

// perPage is the number of entries shown per page in the activity feed.
const perPage = 50

// Service handles business logic for the audit trail. It validates inputs
// and delegates persistence to the repository.
type Service interface {
	// Log records an event. Designed to be fire-and-forget friendly:
	// errors are logged but callers may choose to ignore them since audit
	// failures should not block the primary operation.
	Log(ctx context.Context, entry *Entry) error

	// Record is the fire-and-forget form of Log: it builds the entry,
	// writes it, and swallows any failure after logging it.
	Record(ctx context.Context, username, action, address, deviceID, detail string)

	// GetActivity returns a paginated activity feed for an account.
	// Returns entries, total count, and any error.
	GetActivity(ctx context.Context, username string, page int) ([]Entry, int, error)
}

// service implements Service.
type service struct {
	repo Repository
}

// NewService creates a new audit service with the given repository.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Log validates and persists an entry.
func (s *service) Log(ctx context.Context, entry *Entry) error {
	if entry.Username == "" {
		return apperror.NewBadRequest("username is required for audit entry")
	}
	if entry.Action == "" {
		return apperror.NewBadRequest("action is required for audit entry")
	}

	if err := s.repo.Log(ctx, entry); err != nil {
		slog.Error("failed to write audit log entry",
			slog.String("username", entry.Username),
			slog.String("action", entry.Action),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("writing audit entry: %w", err))
	}

	return nil
}

// Record logs an event without surfacing failures to the caller.
func (s *service) Record(ctx context.Context, username, action, address, deviceID, detail string) {
	_ = s.Log(ctx, &Entry{
		Username: username,
		Action:   action,
		Address:  address,
		DeviceID: deviceID,
		Detail:   detail,
	})
}

// GetActivity returns the paginated activity feed for an account.
// Pages are 1-indexed. Invalid page numbers are clamped to 1.
func (s *service) GetActivity(ctx context.Context, username string, page int) ([]Entry, int, error) {
	if username == "" {
		return nil, 0, apperror.NewBadRequest("username is required")
	}
	if page < 1 {
		page = 1
	}

	offset := (page - 1) * perPage
	entries, total, err := s.repo.ListByUsername(ctx, username, perPage, offset)
	if err != nil {
		return nil, 0, apperror.NewInternal(fmt.Errorf("listing account activity: %w", err))
	}

	return entries, total, nil
}
