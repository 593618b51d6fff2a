package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/tsubasa-k/Single-Login/internal/apperror"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	logFn            func(ctx context.Context, entry *Entry) error
	listByUsernameFn func(ctx context.Context, username string, limit, offset int) ([]Entry, int, error)
}

func (m *mockRepository) Log(ctx context.Context, entry *Entry) error {
	if m.logFn != nil {
		return m.logFn(ctx, entry)
	}
	return nil
}

func (m *mockRepository) ListByUsername(ctx context.Context, username string, limit, offset int) ([]Entry, int, error) {
	if m.listByUsernameFn != nil {
		return m.listByUsernameFn(ctx, username, limit, offset)
	}
	return nil, 0, nil
}

func TestLog_Success(t *testing.T) {
	var logged *Entry
	repo := &mockRepository{
		logFn: func(ctx context.Context, entry *Entry) error {
			logged = entry
			return nil
		},
	}
	svc := NewService(repo)

	err := svc.Log(context.Background(), &Entry{
		Username: "alice",
		Action:   ActionLoginGranted,
		Address:  "203.0.113.9",
		DeviceID: "device-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logged == nil || logged.Action != ActionLoginGranted {
		t.Errorf("expected entry to reach the repository, got %+v", logged)
	}
}

func TestLog_RequiredFields(t *testing.T) {
	svc := NewService(&mockRepository{})

	if err := svc.Log(context.Background(), &Entry{Action: ActionLogout}); err == nil {
		t.Error("expected error for missing username")
	}
	if err := svc.Log(context.Background(), &Entry{Username: "alice"}); err == nil {
		t.Error("expected error for missing action")
	}
}

func TestRecord_SwallowsRepositoryFailure(t *testing.T) {
	repo := &mockRepository{
		logFn: func(ctx context.Context, entry *Entry) error {
			return errors.New("db write error")
		},
	}
	svc := NewService(repo)

	// Must not panic and has no error to return.
	svc.Record(context.Background(), "alice", ActionLoginDenied, "", "", "invalid_credential")
}

func TestGetActivity_Pagination(t *testing.T) {
	var gotLimit, gotOffset int
	repo := &mockRepository{
		listByUsernameFn: func(ctx context.Context, username string, limit, offset int) ([]Entry, int, error) {
			gotLimit, gotOffset = limit, offset
			return []Entry{{Username: username, Action: ActionLoginGranted}}, 120, nil
		},
	}
	svc := NewService(repo)

	entries, total, err := svc.GetActivity(context.Background(), "alice", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 120 || len(entries) != 1 {
		t.Errorf("unexpected feed: %d entries, total %d", len(entries), total)
	}
	if gotLimit != perPage || gotOffset != 2*perPage {
		t.Errorf("expected limit %d offset %d, got %d %d", perPage, 2*perPage, gotLimit, gotOffset)
	}
}

func TestGetActivity_ClampsPage(t *testing.T) {
	var gotOffset int
	repo := &mockRepository{
		listByUsernameFn: func(ctx context.Context, username string, limit, offset int) ([]Entry, int, error) {
			gotOffset = offset
			return nil, 0, nil
		},
	}
	svc := NewService(repo)

	if _, _, err := svc.GetActivity(context.Background(), "alice", -5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotOffset != 0 {
		t.Errorf("expected page clamped to 1 (offset 0), got offset %d", gotOffset)
	}
}

func TestGetActivity_RequiresUsername(t *testing.T) {
	svc := NewService(&mockRepository{})

	_, _, err := svc.GetActivity(context.Background(), "", 1)
	if !apperror.IsType(err, apperror.TypeBadRequest) {
		t.Errorf("expected bad request, got %v", err)
	}
}
