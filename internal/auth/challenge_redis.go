package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const redisOpTimeout = 2 * time.Second

// RedisChallengeStore keeps OTP challenges in Redis so cooldown and expiry
// survive process restarts and can be shared by several client instances.
type RedisChallengeStore struct {
	client      *redis.Client
	keyPrefix   string
	ttl         time.Duration
	resendAfter time.Duration
	maxAttempts int
}

type redisChallenge struct {
	CodeHash   string    `json:"codeHash"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Attempts   int       `json:"attempts"`
	MaxAttempt int       `json:"maxAttempt"`
}

// NewRedisChallengeStore connects to Redis at addr.
func NewRedisChallengeStore(addr, password string) (*RedisChallengeStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("otp redis addr is required")
	}
	return &RedisChallengeStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		keyPrefix:   "pixelpilot:auth:otp",
		ttl:         defaultChallengeTTL,
		resendAfter: defaultResendAfter,
		maxAttempts: defaultMaxAttempts,
	}, nil
}

// Create arms the challenge for phone, replacing any previous one.
func (s *RedisChallengeStore) Create(phone, code string) error {
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash otp code: %w", err)
	}
	challenge := redisChallenge{
		CodeHash:   string(codeHash),
		ExpiresAt:  time.Now().UTC().Add(s.ttl),
		Attempts:   0,
		MaxAttempt: s.maxAttempts,
	}
	raw, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("marshal otp challenge: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return s.client.Set(ctx, s.challengeKey(phone), raw, s.ttl+time.Minute).Err()
}

// BeginResend arms the cooldown key; a still-live key means the previous
// resend has not cooled down yet.
func (s *RedisChallengeStore) BeginResend(phone string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	key := s.resendKey(phone)
	allowed, err := s.client.SetNX(ctx, key, "1", s.resendAfter).Result()
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}
	remaining, err := s.client.TTL(ctx, key).Result()
	if err != nil || remaining < 0 {
		remaining = s.resendAfter
	}
	return &CooldownError{Remaining: remaining}
}

// Verify checks code against the armed challenge.
func (s *RedisChallengeStore) Verify(phone, code string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	key := s.challengeKey(phone)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNoChallenge
	}
	if err != nil {
		return err
	}
	var challenge redisChallenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return fmt.Errorf("unmarshal otp challenge: %w", err)
	}
	if time.Now().UTC().After(challenge.ExpiresAt) {
		_ = s.client.Del(ctx, key).Err()
		return ErrChallengeExpired
	}
	if challenge.Attempts >= challenge.MaxAttempt {
		_ = s.client.Del(ctx, key).Err()
		return ErrNoChallenge
	}
	if bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(code)) != nil {
		challenge.Attempts++
		if challenge.Attempts >= challenge.MaxAttempt {
			_ = s.client.Del(ctx, key).Err()
		} else if updated, marshalErr := json.Marshal(challenge); marshalErr == nil {
			if ttl, ttlErr := s.client.TTL(ctx, key).Result(); ttlErr == nil && ttl > 0 {
				_ = s.client.Set(ctx, key, updated, ttl).Err()
			}
		}
		return ErrInvalidOTP
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return err
	}
	return nil
}

// Clear drops the armed challenge for phone.
func (s *RedisChallengeStore) Clear(phone string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return s.client.Del(ctx, s.challengeKey(phone)).Err()
}

func (s *RedisChallengeStore) challengeKey(phone string) string {
	return fmt.Sprintf("%s:challenge:%s", s.keyPrefix, phone)
}

func (s *RedisChallengeStore) resendKey(phone string) string {
	return fmt.Sprintf("%s:resend:%s", s.keyPrefix, phone)
}
