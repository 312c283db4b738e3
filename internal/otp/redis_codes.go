package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/citizen_portal/internal/notification"
)

const codePrefix = "portal:otp:"

// RedisCodes keeps the SHA-256 of the live code per (purpose, subject) together
// with a failed-attempt counter. Codes are single use.
type RedisCodes struct {
	client      redis.UniversalClient
	notifier    notification.Notifier
	ttl         time.Duration
	maxAttempts int
	generate    func() (string, error)
}

// NewRedisCodes builds a Redis-backed Issuer and Verifier.
func NewRedisCodes(client redis.UniversalClient, notifier notification.Notifier, ttl time.Duration, maxAttempts int) *RedisCodes {
	return &RedisCodes{
		client:      client,
		notifier:    notifier,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		generate:    randomCode,
	}
}

// Issue replaces any live code for subject and sends the new one.
func (r *RedisCodes) Issue(ctx context.Context, purpose Purpose, subject, destination string) error {
	code, err := r.generate()
	if err != nil {
		return err
	}
	codeKey, attemptsKey := keys(purpose, subject)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, codeKey, digest(code), r.ttl)
		pipe.Del(ctx, attemptsKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	if r.notifier == nil {
		return nil
	}
	kind := notification.KindLoginOTP
	if purpose == PurposeRegistration {
		kind = notification.KindRegistrationOTP
	}
	return r.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: destination,
		Body:        fmt.Sprintf("Your verification code is %s. It expires in %s.", code, r.ttl),
	})
}

// Verify consumes the live code when it matches.
func (r *RedisCodes) Verify(ctx context.Context, purpose Purpose, subject, code string) error {
	codeKey, attemptsKey := keys(purpose, subject)

	stored, err := r.client.Get(ctx, codeKey).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCodeExpired
	}
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(digest(code))) == 1 {
		return r.consume(ctx, codeKey, attemptsKey)
	}

	attempts, err := r.client.Incr(ctx, attemptsKey).Result()
	if err != nil {
		return fmt.Errorf("count otp attempt: %w", err)
	}
	if attempts == 1 {
		r.client.Expire(ctx, attemptsKey, r.ttl)
	}
	if attempts >= int64(r.maxAttempts) {
		r.client.Del(ctx, codeKey, attemptsKey)
		return ErrTooManyAttempts
	}
	return ErrCodeIncorrect
}

// consume deletes a matched code. Only the caller whose delete removed the key
// succeeds; a concurrent submission of the same code sees it as expired.
func (r *RedisCodes) consume(ctx context.Context, codeKey, attemptsKey string) error {
	removed, err := r.client.Del(ctx, codeKey).Result()
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if removed == 0 {
		return ErrCodeExpired
	}
	r.client.Del(ctx, attemptsKey)
	return nil
}

func keys(purpose Purpose, subject string) (string, string) {
	base := codePrefix + string(purpose) + ":" + subject
	return base, base + ":attempts"
}

func digest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
