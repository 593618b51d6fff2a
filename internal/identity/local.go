package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tsubasa-k/Single-Login/internal/apperror"
	"github.com/tsubasa-k/Single-Login/internal/mail"
)

// emailTokenKeyPrefix is the Redis key prefix for pending email-verification
// tokens. The key holds the SHA-256 digest of the token, never the token
// itself, so a Redis dump cannot be replayed as a verification link.
const emailTokenKeyPrefix = "emailverify:"

// emailTokenBytes is the entropy of a verification token. 32 bytes is
// hex-encoded to 64 characters in the emailed link.
const emailTokenBytes = 32

// Password policy bounds. The upper bound guards the argon2id hasher
// against pathological inputs.
const (
	minPasswordLength = 8
	maxPasswordLength = 512
)

// LocalProvider implements Provider with argon2id-hashed credentials in
// MariaDB and email-verification tokens in Redis.
type LocalProvider struct {
	repo     CredentialRepository
	redis    *redis.Client
	sender   mail.Sender
	baseURL  string
	tokenTTL time.Duration
}

// NewLocalProvider creates the local identity provider. baseURL is the
// externally reachable prefix for verification links; tokenTTL bounds how
// long an emailed token stays redeemable.
func NewLocalProvider(repo CredentialRepository, rdb *redis.Client, sender mail.Sender, baseURL string, tokenTTL time.Duration) *LocalProvider {
	return &LocalProvider{
		repo:     repo,
		redis:    rdb,
		sender:   sender,
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokenTTL: tokenTTL,
	}
}

// CreateCredential validates the password against policy, hashes it, and
// persists the credential. The email starts unverified.
func (p *LocalProvider) CreateCredential(ctx context.Context, username, email, password string) error {
	if err := checkPasswordPolicy(username, password); err != nil {
		return err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	cred := &Credential{
		Username:      username,
		Email:         strings.ToLower(strings.TrimSpace(email)),
		PasswordHash:  hash,
		EmailVerified: false,
	}
	return p.repo.Create(ctx, cred)
}

// DeleteCredential removes the credential so the username can register
// again after a failed registration.
func (p *LocalProvider) DeleteCredential(ctx context.Context, username string) error {
	return p.repo.Delete(ctx, username)
}

// VerifyCredential checks the pair against the stored hash. Unknown
// usernames and wrong passwords produce the identical error so callers
// cannot tell which it was.
func (p *LocalProvider) VerifyCredential(ctx context.Context, username, password string) (*Principal, error) {
	cred, err := p.repo.Find(ctx, username)
	if err != nil {
		if apperror.IsType(err, apperror.TypeNotFound) {
			return nil, apperror.NewInvalidCredential()
		}
		return nil, err
	}

	if !verifyPassword(password, cred.PasswordHash) {
		return nil, apperror.NewInvalidCredential()
	}

	return &Principal{
		Username:      cred.Username,
		Email:         cred.Email,
		EmailVerified: cred.EmailVerified,
	}, nil
}

// CheckPrincipal re-reads the credential record without touching the
// password. Used by periodic re-validation of live sessions.
func (p *LocalProvider) CheckPrincipal(ctx context.Context, username string) (*Principal, error) {
	cred, err := p.repo.Find(ctx, username)
	if err != nil {
		return nil, err
	}
	return &Principal{
		Username:      cred.Username,
		Email:         cred.Email,
		EmailVerified: cred.EmailVerified,
	}, nil
}

// SendEmailVerification mints a fresh token, stores its digest in Redis
// under the configured TTL, and emails the confirmation link. Re-sending
// issues a new token; older ones stay valid until they expire.
func (p *LocalProvider) SendEmailVerification(ctx context.Context, username, email string) error {
	raw := make([]byte, emailTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return apperror.NewInternal(fmt.Errorf("generating verification token: %w", err))
	}
	token := hex.EncodeToString(raw)

	key := emailTokenKeyPrefix + digest(token)
	if err := p.redis.Set(ctx, key, username, p.tokenTTL).Err(); err != nil {
		return apperror.NewStoreUnavailable(fmt.Errorf("storing verification token: %w", err))
	}

	link := fmt.Sprintf("%s/api/email/confirm?token=%s", p.baseURL, token)
	body := fmt.Sprintf(
		"Hello %s,\r\n\r\nConfirm your email address by opening the link below:\r\n\r\n%s\r\n\r\nThe link expires in %s. If you did not register, ignore this message.\r\n",
		username, link, p.tokenTTL)

	if err := p.sender.Send(ctx, email, "Confirm your email address", body); err != nil {
		return apperror.NewInternal(fmt.Errorf("sending verification mail: %w", err))
	}

	slog.Info("email verification issued",
		slog.String("username", username),
	)
	return nil
}

// ConfirmEmail redeems a token. Redemption is single-use: the Redis GETDEL
// consumes the digest atomically, so a replayed link fails.
func (p *LocalProvider) ConfirmEmail(ctx context.Context, token string) (string, error) {
	key := emailTokenKeyPrefix + digest(token)

	username, err := p.redis.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", apperror.NewBadRequest("verification token is invalid or expired")
	}
	if err != nil {
		return "", apperror.NewStoreUnavailable(fmt.Errorf("redeeming verification token: %w", err))
	}

	if err := p.repo.SetEmailVerified(ctx, username, true); err != nil {
		return "", err
	}

	slog.Info("email verified",
		slog.String("username", username),
	)
	return username, nil
}

// Invalidate ends the provider-side credential session. The local provider
// keeps no such session, so this is a logged no-op kept for contract
// symmetry with external providers.
func (p *LocalProvider) Invalidate(ctx context.Context, username string) error {
	slog.Debug("identity session invalidated",
		slog.String("username", username),
	)
	return nil
}

// checkPasswordPolicy enforces the credential-strength rules.
func checkPasswordPolicy(username, password string) error {
	switch {
	case len(password) < minPasswordLength:
		return apperror.NewWeakCredential(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	case len(password) > maxPasswordLength:
		return apperror.NewWeakCredential(fmt.Sprintf("password must be at most %d characters", maxPasswordLength))
	case strings.EqualFold(password, username):
		return apperror.NewWeakCredential("password must not equal the username")
	}
	return nil
}

// digest returns the hex SHA-256 of a token for use as a storage key.
func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
