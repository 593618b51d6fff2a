package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tsubasa-k/Single-Login/internal/apperror"
)

// --- Mock Credential Repository ---

// mockCredentialRepo implements CredentialRepository for testing.
type mockCredentialRepo struct {
	createFn           func(ctx context.Context, cred *Credential) error
	findFn             func(ctx context.Context, username string) (*Credential, error)
	setEmailVerifiedFn func(ctx context.Context, username string, verified bool) error
	deleteFn           func(ctx context.Context, username string) error
}

func (m *mockCredentialRepo) Create(ctx context.Context, cred *Credential) error {
	if m.createFn != nil {
		return m.createFn(ctx, cred)
	}
	return nil
}

func (m *mockCredentialRepo) Find(ctx context.Context, username string) (*Credential, error) {
	if m.findFn != nil {
		return m.findFn(ctx, username)
	}
	return nil, apperror.NewNotFound("credential not found")
}

func (m *mockCredentialRepo) SetEmailVerified(ctx context.Context, username string, verified bool) error {
	if m.setEmailVerifiedFn != nil {
		return m.setEmailVerifiedFn(ctx, username, verified)
	}
	return nil
}

func (m *mockCredentialRepo) Delete(ctx context.Context, username string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, username)
	}
	return nil
}

// --- Mock Mail Sender ---

// mockSender implements mail.Sender for testing.
type mockSender struct {
	sendFn func(ctx context.Context, to, subject, body string) error
	// Capture fields for assertions.
	lastTo      string
	lastSubject string
	lastBody    string
	sendCount   int
}

func (m *mockSender) Send(ctx context.Context, to, subject, body string) error {
	m.lastTo = to
	m.lastSubject = subject
	m.lastBody = body
	m.sendCount++
	if m.sendFn != nil {
		return m.sendFn(ctx, to, subject, body)
	}
	return nil
}

func (m *mockSender) IsConfigured() bool { return true }

// --- Test Helpers ---

// newTestProvider creates a LocalProvider over a mock repo, a miniredis
// instance, and a capturing mail sender.
func newTestProvider(t *testing.T, repo *mockCredentialRepo) (*LocalProvider, *miniredis.Miniredis, *mockSender) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sender := &mockSender{}
	p := NewLocalProvider(repo, rdb, sender, "https://login.example.com", 24*time.Hour)
	return p, mr, sender
}

// assertErrType checks that err is an AppError with the expected Type.
func assertErrType(t *testing.T, err error, wantType string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", wantType)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Type != wantType {
		t.Errorf("expected error type %s, got %s (message: %s)", wantType, appErr.Type, appErr.Message)
	}
}

// --- DeleteCredential Tests ---

func TestDeleteCredential_PassesThrough(t *testing.T) {
	var deleted string
	repo := &mockCredentialRepo{
		deleteFn: func(ctx context.Context, username string) error {
			deleted = username
			return nil
		},
	}
	p, _, _ := newTestProvider(t, repo)

	if err := p.DeleteCredential(context.Background(), "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "alice" {
		t.Errorf("expected alice's credential to be deleted, got %q", deleted)
	}
}

// --- CreateCredential Tests ---

func TestCreateCredential_HashesAndNormalizes(t *testing.T) {
	var captured *Credential
	repo := &mockCredentialRepo{
		createFn: func(ctx context.Context, cred *Credential) error {
			captured = cred
			return nil
		},
	}
	p, _, _ := newTestProvider(t, repo)

	err := p.CreateCredential(context.Background(), "alice", "  Alice@EXAMPLE.com  ", "correct-horse-battery")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured == nil {
		t.Fatal("expected credential to be stored")
	}
	if captured.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %s", captured.Email)
	}
	if captured.EmailVerified {
		t.Error("expected new credential to start unverified")
	}
	if !strings.HasPrefix(captured.PasswordHash, "$argon2id$") {
		t.Errorf("expected argon2id PHC hash, got %s", captured.PasswordHash)
	}
	if !verifyPassword("correct-horse-battery", captured.PasswordHash) {
		t.Error("expected stored hash to verify the original password")
	}
}

func TestCreateCredential_PasswordPolicy(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"too short", "alice", "short"},
		{"too long", "alice", strings.Repeat("x", maxPasswordLength+1)},
		{"equals username", "alice-wonder", "ALICE-WONDER"},
	}

	repo := &mockCredentialRepo{
		createFn: func(ctx context.Context, cred *Credential) error {
			t.Error("weak password must never reach the repository")
			return nil
		},
	}
	p, _, _ := newTestProvider(t, repo)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.CreateCredential(context.Background(), tt.username, "a@b.com", tt.password)
			assertErrType(t, err, apperror.TypeWeakCredential)
		})
	}
}

func TestCreateCredential_EmailConflictPropagates(t *testing.T) {
	repo := &mockCredentialRepo{
		createFn: func(ctx context.Context, cred *Credential) error {
			return apperror.NewEmailConflict()
		},
	}
	p, _, _ := newTestProvider(t, repo)

	err := p.CreateCredential(context.Background(), "bob", "taken@example.com", "good-enough-password")
	assertErrType(t, err, apperror.TypeEmailConflict)
}

// --- VerifyCredential Tests ---

func TestVerifyCredential_Success(t *testing.T) {
	hash, err := hashPassword("open-sesame-123")
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	repo := &mockCredentialRepo{
		findFn: func(ctx context.Context, username string) (*Credential, error) {
			return &Credential{
				Username:      "alice",
				Email:         "alice@example.com",
				PasswordHash:  hash,
				EmailVerified: true,
			}, nil
		},
	}
	p, _, _ := newTestProvider(t, repo)

	principal, err := p.VerifyCredential(context.Background(), "alice", "open-sesame-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if principal.Username != "alice" || !principal.EmailVerified {
		t.Errorf("unexpected principal: %+v", principal)
	}
}

func TestVerifyCredential_IndistinguishableFailures(t *testing.T) {
	hash, err := hashPassword("the-real-password")
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}

	// Unknown username.
	unknownRepo := &mockCredentialRepo{}
	p1, _, _ := newTestProvider(t, unknownRepo)
	_, errUnknown := p1.VerifyCredential(context.Background(), "ghost", "whatever-pass")

	// Known username, wrong password.
	knownRepo := &mockCredentialRepo{
		findFn: func(ctx context.Context, username string) (*Credential, error) {
			return &Credential{Username: "alice", PasswordHash: hash}, nil
		},
	}
	p2, _, _ := newTestProvider(t, knownRepo)
	_, errWrong := p2.VerifyCredential(context.Background(), "alice", "wrong-password")

	assertErrType(t, errUnknown, apperror.TypeInvalidCredential)
	assertErrType(t, errWrong, apperror.TypeInvalidCredential)
	if apperror.SafeMessage(errUnknown) != apperror.SafeMessage(errWrong) {
		t.Error("unknown-user and wrong-password failures must carry identical messages")
	}
}

func TestVerifyCredential_RepoErrorPropagates(t *testing.T) {
	repo := &mockCredentialRepo{
		findFn: func(ctx context.Context, username string) (*Credential, error) {
			return nil, errors.New("db connection lost")
		},
	}
	p, _, _ := newTestProvider(t, repo)

	_, err := p.VerifyCredential(context.Background(), "alice", "whatever-pass")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperror.IsType(err, apperror.TypeInvalidCredential) {
		t.Error("infrastructure failures must not masquerade as credential failures")
	}
}

// --- Email Verification Tests ---

func TestEmailVerification_RoundTrip(t *testing.T) {
	var verified bool
	repo := &mockCredentialRepo{
		setEmailVerifiedFn: func(ctx context.Context, username string, v bool) error {
			if username != "alice" {
				t.Errorf("expected alice, got %s", username)
			}
			verified = v
			return nil
		},
	}
	p, _, sender := newTestProvider(t, repo)
	ctx := context.Background()

	if err := p.SendEmailVerification(ctx, "alice", "alice@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.sendCount != 1 || sender.lastTo != "alice@example.com" {
		t.Fatalf("expected one mail to alice@example.com, got %d to %s", sender.sendCount, sender.lastTo)
	}

	token := extractToken(t, sender.lastBody)
	username, err := p.ConfirmEmail(ctx, token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if username != "alice" {
		t.Errorf("expected alice, got %s", username)
	}
	if !verified {
		t.Error("expected email_verified to be flipped")
	}
}

func TestConfirmEmail_TokenIsSingleUse(t *testing.T) {
	p, _, sender := newTestProvider(t, &mockCredentialRepo{})
	ctx := context.Background()

	if err := p.SendEmailVerification(ctx, "alice", "alice@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token := extractToken(t, sender.lastBody)

	if _, err := p.ConfirmEmail(ctx, token); err != nil {
		t.Fatalf("first redemption failed: %v", err)
	}
	_, err := p.ConfirmEmail(ctx, token)
	assertErrType(t, err, apperror.TypeBadRequest)
}

func TestConfirmEmail_ExpiredToken(t *testing.T) {
	p, mr, sender := newTestProvider(t, &mockCredentialRepo{})
	ctx := context.Background()

	if err := p.SendEmailVerification(ctx, "alice", "alice@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token := extractToken(t, sender.lastBody)

	mr.FastForward(25 * time.Hour)

	_, err := p.ConfirmEmail(ctx, token)
	assertErrType(t, err, apperror.TypeBadRequest)
}

func TestConfirmEmail_GarbageToken(t *testing.T) {
	p, _, _ := newTestProvider(t, &mockCredentialRepo{})

	_, err := p.ConfirmEmail(context.Background(), "not-a-real-token")
	assertErrType(t, err, apperror.TypeBadRequest)
}

func TestSendEmailVerification_RedisDown(t *testing.T) {
	p, mr, sender := newTestProvider(t, &mockCredentialRepo{})
	mr.Close()

	err := p.SendEmailVerification(context.Background(), "alice", "alice@example.com")
	assertErrType(t, err, apperror.TypeStoreUnavailable)
	if sender.sendCount != 0 {
		t.Error("no mail must be sent when the token could not be stored")
	}
}

// --- Invalidate ---

func TestInvalidate_Idempotent(t *testing.T) {
	p, _, _ := newTestProvider(t, &mockCredentialRepo{})
	ctx := context.Background()

	if err := p.Invalidate(ctx, "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Invalidate(ctx, "alice"); err != nil {
		t.Fatalf("second invalidate failed: %v", err)
	}
}

// extractToken pulls the token query parameter out of the emailed link.
func extractToken(t *testing.T, body string) string {
	t.Helper()
	const marker = "token="
	i := strings.Index(body, marker)
	if i < 0 {
		t.Fatalf("no token in mail body: %q", body)
	}
	rest := body[i+len(marker):]
	if j := strings.IndexAny(rest, " \r\n"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}
