package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidOTP is returned when the submitted code does not match the
	// armed challenge. State is unchanged so the caller can resubmit.
	ErrInvalidOTP = errors.New("incorrect verification code")

	// ErrChallengeExpired is returned when the armed code's TTL has passed;
	// the caller should request a resend.
	ErrChallengeExpired = errors.New("verification code expired")

	// ErrNoChallenge is returned when no code is armed for the phone number,
	// including after the verify-attempt cap is exhausted.
	ErrNoChallenge = errors.New("no verification code armed")

	// ErrNotAwaitingCode is returned for OTP operations outside the
	// awaiting-code step.
	ErrNotAwaitingCode = errors.New("not awaiting a verification code")

	// ErrAlreadyAuthenticated is returned when a login flow is started while
	// a session is established.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
)

// FieldError reports a per-field validation failure. It never changes engine
// state.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// CooldownError rejects a resend attempted before the cooldown elapsed.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("resend available in %ds", e.RemainingSeconds())
}

// RemainingSeconds rounds the remaining window up to whole seconds for
// display.
func (e *CooldownError) RemainingSeconds() int {
	secs := int((e.Remaining + time.Second - 1) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}
