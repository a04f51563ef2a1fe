package auth

import (
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pixelpilot/internal/clock"
)

const (
	defaultChallengeTTL = 5 * time.Minute
	defaultResendAfter  = 30 * time.Second
	defaultMaxAttempts  = 5
)

// ChallengeStore arms and verifies OTP challenges keyed by full phone number,
// and enforces the resend cooldown.
type ChallengeStore interface {
	// Create arms (or replaces) the challenge for phone.
	Create(phone, code string) error
	// BeginResend arms the resend cooldown. It fails with *CooldownError when
	// a previous resend is still cooling down.
	BeginResend(phone string) error
	// Verify checks code against the armed challenge. A match consumes the
	// challenge; a mismatch counts an attempt.
	Verify(phone, code string) error
	// Clear drops any armed challenge for phone.
	Clear(phone string) error
}

type memChallenge struct {
	codeHash  []byte
	expiresAt time.Time
	attempts  int
}

// MemoryChallengeStore keeps challenges in-process with an injected clock so
// cooldown and expiry are deterministic under virtual time.
type MemoryChallengeStore struct {
	mu          sync.Mutex
	clk         clock.Clock
	ttl         time.Duration
	resendAfter time.Duration
	maxAttempts int
	challenges  map[string]*memChallenge
	cooldowns   map[string]time.Time
}

// MemoryChallengeOptions tune the in-memory challenge store. Zero values take
// the defaults (5m TTL, 30s cooldown, 5 attempts).
type MemoryChallengeOptions struct {
	TTL         time.Duration
	ResendAfter time.Duration
	MaxAttempts int
}

// NewMemoryChallengeStore constructs the in-memory store.
func NewMemoryChallengeStore(clk clock.Clock, opts MemoryChallengeOptions) *MemoryChallengeStore {
	if clk == nil {
		clk = clock.Real()
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultChallengeTTL
	}
	if opts.ResendAfter <= 0 {
		opts.ResendAfter = defaultResendAfter
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &MemoryChallengeStore{
		clk:         clk,
		ttl:         opts.TTL,
		resendAfter: opts.ResendAfter,
		maxAttempts: opts.MaxAttempts,
		challenges:  make(map[string]*memChallenge),
		cooldowns:   make(map[string]time.Time),
	}
}

// Create arms the challenge for phone, replacing any previous one.
func (s *MemoryChallengeStore) Create(phone, code string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[phone] = &memChallenge{
		codeHash:  hash,
		expiresAt: s.clk.Now().Add(s.ttl),
	}
	return nil
}

// BeginResend arms the wall-clock cooldown for phone.
func (s *MemoryChallengeStore) BeginResend(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	if until, ok := s.cooldowns[phone]; ok && now.Before(until) {
		return &CooldownError{Remaining: until.Sub(now)}
	}
	s.cooldowns[phone] = now.Add(s.resendAfter)
	return nil
}

// Verify checks code against the armed challenge.
func (s *MemoryChallengeStore) Verify(phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[phone]
	if !ok {
		return ErrNoChallenge
	}
	if s.clk.Now().After(ch.expiresAt) {
		delete(s.challenges, phone)
		return ErrChallengeExpired
	}
	if bcrypt.CompareHashAndPassword(ch.codeHash, []byte(code)) != nil {
		ch.attempts++
		if ch.attempts >= s.maxAttempts {
			delete(s.challenges, phone)
		}
		return ErrInvalidOTP
	}
	delete(s.challenges, phone)
	return nil
}

// Clear drops the armed challenge for phone.
func (s *MemoryChallengeStore) Clear(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, phone)
	return nil
}
