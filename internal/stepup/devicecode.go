package stepup

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tsubasa-k/Single-Login/internal/apperror"
	"github.com/tsubasa-k/Single-Login/internal/mail"
)

// deviceCodeKeyPrefix is the Redis key prefix for pending challenges,
// keyed by username. One pending challenge per account: requesting a new
// code invalidates the previous one.
const deviceCodeKeyPrefix = "stepup:devicecode:"

// deviceCodeDigits is the length of an emailed code.
const deviceCodeDigits = 6

// deviceChallenge is the stored challenge state. The device ID pins the
// code to the login attempt that triggered it; a code pasted into a login
// from a different device fails.
type deviceChallenge struct {
	Code     string    `json:"code"`
	DeviceID string    `json:"device_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// DeviceCodeStrategy verifies logins with single-use numeric codes sent to
// the account's verified email. Possession of the inbox is the factor, so
// there is nothing to enroll: the factor is available as soon as the email
// is verified, which the login flow guarantees before step-up is reached.
type DeviceCodeStrategy struct {
	redis  *redis.Client
	sender mail.Sender
	ttl    time.Duration
	now    func() time.Time
}

// NewDeviceCodeStrategy creates the emailed-code strategy. ttl bounds how
// long a delivered code stays redeemable.
func NewDeviceCodeStrategy(rdb *redis.Client, sender mail.Sender, ttl time.Duration) *DeviceCodeStrategy {
	return &DeviceCodeStrategy{
		redis:  rdb,
		sender: sender,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Provision is not applicable: there is no authenticator to enroll.
func (s *DeviceCodeStrategy) Provision(ctx context.Context, username, email string) (*Provisioning, error) {
	return nil, apperror.NewBadRequest("this deployment sends sign-in codes by email - no enrollment is needed")
}

// Confirm is not applicable for the same reason as Provision.
func (s *DeviceCodeStrategy) Confirm(ctx context.Context, username, code string) error {
	return apperror.NewBadRequest("this deployment sends sign-in codes by email - no enrollment is needed")
}

// Enabled always reports true: email possession is the factor and the login
// flow only reaches step-up after the email is verified.
func (s *DeviceCodeStrategy) Enabled(ctx context.Context, username string) (bool, error) {
	return true, nil
}

// Challenge mints a fresh code, stores it against the username with the
// configured TTL, and emails it. Any previously pending code for the
// account is replaced.
func (s *DeviceCodeStrategy) Challenge(ctx context.Context, username, email, deviceID string) error {
	code, err := generateNumericCode(deviceCodeDigits)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("generating device code: %w", err))
	}

	challenge := deviceChallenge{
		Code:     code,
		DeviceID: deviceID,
		IssuedAt: s.now().UTC(),
	}
	data, err := json.Marshal(challenge)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("marshaling challenge: %w", err))
	}

	key := deviceCodeKeyPrefix + username
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return apperror.NewStoreUnavailable(fmt.Errorf("storing challenge: %w", err))
	}

	body := fmt.Sprintf(
		"Hello %s,\r\n\r\nYour sign-in code is: %s\r\n\r\nIt expires in %s. If you did not try to sign in, change your password.\r\n",
		username, code, s.ttl)
	if err := s.sender.Send(ctx, email, "Your sign-in code", body); err != nil {
		return apperror.NewInternal(fmt.Errorf("sending device code: %w", err))
	}

	slog.Info("device code issued",
		slog.String("username", username),
		slog.String("device_id", deviceID),
	)
	return nil
}

// Validate redeems a pending code. The code must match, must belong to the
// same device that triggered the challenge, and must still be inside its
// window. A successful validation consumes the challenge.
func (s *DeviceCodeStrategy) Validate(ctx context.Context, username, deviceID, code string) error {
	key := deviceCodeKeyPrefix + username

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return apperror.NewCodeExpired()
	}
	if err != nil {
		return apperror.NewStoreUnavailable(fmt.Errorf("reading challenge: %w", err))
	}

	var challenge deviceChallenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return apperror.NewInternal(fmt.Errorf("unmarshaling challenge: %w", err))
	}

	// The Redis TTL already bounds the window; the timestamp check catches
	// clock disagreements and keys that outlive their TTL in a failover.
	if s.now().After(challenge.IssuedAt.Add(s.ttl)) {
		return apperror.NewCodeExpired()
	}

	if challenge.DeviceID != deviceID {
		return apperror.NewInvalidCode()
	}
	if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(code)) != 1 {
		return apperror.NewInvalidCode()
	}

	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return apperror.NewStoreUnavailable(fmt.Errorf("consuming challenge: %w", err))
	}
	return nil
}

// generateNumericCode returns a uniformly random n-digit decimal string.
func generateNumericCode(n int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < n; i++ {
		max.Mul(max, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
