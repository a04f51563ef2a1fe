// Package auth implements the phone/OTP authentication engine: a small state
// machine that collects a dial code and phone number, arms a mock OTP
// challenge after a simulated dispatch delay, verifies the sentinel code, and
// persists the resulting session across restarts.
package auth

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"pixelpilot/internal/clock"
	"pixelpilot/internal/countries"
	"pixelpilot/internal/persist"
	"pixelpilot/pkg/domain"
)

// MockOTPCode is the only code the mock dispatch path ever issues.
const MockOTPCode = "123456"

const (
	defaultSendDelay   = 2 * time.Second
	defaultResendDelay = 1500 * time.Millisecond
)

var (
	phonePattern = regexp.MustCompile(`^[0-9]{10,15}$`)
	otpPattern   = regexp.MustCompile(`^[0-9]{6}$`)
)

// Step names the visible stage of the login flow.
type Step string

const (
	// StepPhone collects the dial code and phone number.
	StepPhone Step = "phone"
	// StepOTP awaits the verification code.
	StepOTP Step = "otp"
)

type authBlob struct {
	IsAuthenticated bool         `json:"isAuthenticated"`
	User            *domain.User `json:"user"`
	Token           string       `json:"token,omitempty"`
}

// State is a read-only snapshot of the engine.
type State struct {
	Loading         bool         `json:"loading"`
	Step            Step         `json:"step"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	User            *domain.User `json:"user"`
	DialCode        string       `json:"dialCode,omitempty"`
	PhoneDigits     string       `json:"phoneDigits,omitempty"`
	OTPPending      bool         `json:"otpPending"`
}

// Options wire the engine's dependencies. Zero values take defaults: real
// clock, in-memory challenge store, logging sender, 2s send delay, 1.5s
// resend delay.
type Options struct {
	Clock       clock.Clock
	Persist     persist.Store
	Challenges  ChallengeStore
	Sender      CodeSender
	Directory   *countries.Directory
	TokenSecret []byte
	SessionTTL  time.Duration
	SendDelay   time.Duration
	ResendDelay time.Duration
}

// Engine is the authentication state machine. All mutations are serialized
// by one mutex; timer callbacks re-enter through the same lock.
type Engine struct {
	mu          sync.Mutex
	clk         clock.Clock
	persist     persist.Store
	challenges  ChallengeStore
	sender      CodeSender
	directory   *countries.Directory
	tokens      *tokenCodec
	sendDelay   time.Duration
	resendDelay time.Duration

	loading       bool
	step          Step
	authenticated bool
	user          *domain.User
	token         string
	dialCode      string
	phoneDigits   string
	dispatching   bool
	dispatchTimer clock.Timer
	resendTimer   clock.Timer
	closed        bool
}

// NewEngine constructs the engine. It starts in the loading state until
// Rehydrate runs.
func NewEngine(opts Options) *Engine {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	store := opts.Persist
	if store == nil {
		store = persist.NewMemoryStore()
	}
	challenges := opts.Challenges
	if challenges == nil {
		challenges = NewMemoryChallengeStore(clk, MemoryChallengeOptions{})
	}
	sender := opts.Sender
	if sender == nil {
		sender = LogSender{}
	}
	sendDelay := opts.SendDelay
	if sendDelay <= 0 {
		sendDelay = defaultSendDelay
	}
	resendDelay := opts.ResendDelay
	if resendDelay <= 0 {
		resendDelay = defaultResendDelay
	}
	return &Engine{
		clk:         clk,
		persist:     store,
		challenges:  challenges,
		sender:      sender,
		directory:   opts.Directory,
		tokens:      newTokenCodec(opts.TokenSecret, opts.SessionTTL, clk),
		sendDelay:   sendDelay,
		resendDelay: resendDelay,
		loading:     true,
		step:        StepPhone,
	}
}

// Rehydrate restores the persisted session. A missing blob or a token that
// fails verification leaves the engine unauthenticated; either way the
// loading flag clears.
func (e *Engine) Rehydrate() error {
	var blob authBlob
	found, err := e.persist.Load(persist.AuthKey, &blob)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.loading = false
	if err != nil {
		return err
	}
	if !found || !blob.IsAuthenticated || blob.User == nil {
		return nil
	}
	if verifyErr := e.tokens.verify(blob.Token, blob.User.PhoneNumber); verifyErr != nil {
		slog.Warn("rejecting persisted session", "err", verifyErr)
		return nil
	}
	e.authenticated = true
	e.user = blob.User
	e.token = blob.Token
	return nil
}

// State returns a snapshot.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	var user *domain.User
	if e.user != nil {
		u := *e.user
		user = &u
	}
	return State{
		Loading:         e.loading,
		Step:            e.step,
		IsAuthenticated: e.authenticated,
		User:            user,
		DialCode:        e.dialCode,
		PhoneDigits:     e.phoneDigits,
		OTPPending:      e.dispatching,
	}
}

// RequestOTP validates the dial code and phone number, then schedules the
// mock OTP dispatch. The step changes to StepOTP only when the dispatch
// timer fires; validation failures change nothing.
func (e *Engine) RequestOTP(dialCode, phoneDigits string) error {
	dialCode = strings.TrimSpace(dialCode)
	phoneDigits = strings.TrimSpace(phoneDigits)
	if dialCode == "" {
		return &FieldError{Field: "countryCode", Reason: "country code is required"}
	}
	if !phonePattern.MatchString(phoneDigits) {
		return &FieldError{Field: "phone", Reason: "phone number must be 10 to 15 digits"}
	}
	if e.directory != nil && e.directory.Len() > 0 {
		if _, ok := e.directory.ByDialCode(dialCode); !ok {
			return &FieldError{Field: "countryCode", Reason: "unknown country code"}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if e.authenticated {
		return ErrAlreadyAuthenticated
	}
	e.dialCode = dialCode
	e.phoneDigits = phoneDigits
	e.dispatching = true
	if e.dispatchTimer != nil {
		e.dispatchTimer.Stop()
	}
	e.dispatchTimer = e.clk.AfterFunc(e.sendDelay, e.dispatchCode)
	return nil
}

// dispatchCode fires after the simulated send latency: it arms the challenge
// and moves the flow to the OTP step.
func (e *Engine) dispatchCode() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.dispatching {
		return
	}
	e.dispatching = false
	e.dispatchTimer = nil
	phone := e.dialCode + e.phoneDigits
	if err := e.challenges.Create(phone, MockOTPCode); err != nil {
		slog.Error("arm otp challenge", "err", err)
		return
	}
	if err := e.sender.Send(phone, MockOTPCode); err != nil {
		slog.Warn("send otp code", "err", err)
	}
	e.step = StepOTP
}

// ResendOTP re-arms the sentinel code after the resend latency, subject to
// the wall-clock cooldown.
func (e *Engine) ResendOTP() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if e.step != StepOTP {
		return ErrNotAwaitingCode
	}
	phone := e.dialCode + e.phoneDigits
	if err := e.challenges.BeginResend(phone); err != nil {
		return err
	}
	if e.resendTimer != nil {
		e.resendTimer.Stop()
	}
	e.resendTimer = e.clk.AfterFunc(e.resendDelay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed || e.step != StepOTP {
			return
		}
		e.resendTimer = nil
		if err := e.challenges.Create(phone, MockOTPCode); err != nil {
			slog.Error("re-arm otp challenge", "err", err)
			return
		}
		if err := e.sender.Send(phone, MockOTPCode); err != nil {
			slog.Warn("resend otp code", "err", err)
		}
	})
	return nil
}

// VerifyOTP checks the submitted code. Success establishes and persists the
// session; failure leaves the entered phone number intact for resubmission.
func (e *Engine) VerifyOTP(code string) error {
	code = strings.TrimSpace(code)
	if !otpPattern.MatchString(code) {
		return &FieldError{Field: "otp", Reason: "OTP must be exactly 6 digits"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.step != StepOTP {
		return ErrNotAwaitingCode
	}
	phone := e.dialCode + e.phoneDigits
	if err := e.challenges.Verify(phone, code); err != nil {
		return err
	}
	token, err := e.tokens.issue(phone)
	if err != nil {
		return err
	}
	e.authenticated = true
	e.user = &domain.User{PhoneNumber: phone}
	e.token = token
	e.step = StepPhone
	e.persistLocked()
	return nil
}

// CancelOTP steps back to phone collection without clearing the entered
// dial code and digits. The resend cooldown keeps running in the store.
func (e *Engine) CancelOTP() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.step = StepPhone
	e.dispatching = false
	if e.dispatchTimer != nil {
		e.dispatchTimer.Stop()
		e.dispatchTimer = nil
	}
}

// Logout clears the session and persists the cleared auth blob. Chat state
// is owned elsewhere and is deliberately untouched.
func (e *Engine) Logout() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.authenticated = false
	e.user = nil
	e.token = ""
	e.step = StepPhone
	e.persistLocked()
}

// Close cancels pending timers so no state mutates after disposal.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.dispatchTimer != nil {
		e.dispatchTimer.Stop()
		e.dispatchTimer = nil
	}
	if e.resendTimer != nil {
		e.resendTimer.Stop()
		e.resendTimer = nil
	}
}

// persistLocked writes the auth blob. Persistence failures are logged, not
// surfaced: the in-memory session stays authoritative for this process.
func (e *Engine) persistLocked() {
	blob := authBlob{
		IsAuthenticated: e.authenticated,
		User:            e.user,
		Token:           e.token,
	}
	if err := e.persist.Save(persist.AuthKey, blob); err != nil {
		slog.Error("persist auth state", "err", err)
	}
}
