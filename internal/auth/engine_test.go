package auth

import (
	"errors"
	"testing"
	"time"

	"pixelpilot/internal/clock"
	"pixelpilot/internal/persist"
)

var testSecret = []byte("test-session-secret")

func newTestEngine(clk *clock.Fake, store persist.Store) *Engine {
	if store == nil {
		store = persist.NewMemoryStore()
	}
	return NewEngine(Options{
		Clock:       clk,
		Persist:     store,
		Challenges:  NewMemoryChallengeStore(clk, MemoryChallengeOptions{}),
		TokenSecret: testSecret,
	})
}

func startOTPFlow(t *testing.T, e *Engine, clk *clock.Fake) {
	t.Helper()
	if err := e.RequestOTP("+91", "9876543210"); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	clk.Advance(defaultSendDelay)
	if got := e.State().Step; got != StepOTP {
		t.Fatalf("expected StepOTP after send delay, got %q", got)
	}
}

func TestRequestOTPValidation(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	e := newTestEngine(clk, nil)

	cases := []struct {
		name, dial, phone, wantField string
	}{
		{"missing dial code", "", "9876543210", "countryCode"},
		{"short phone", "+91", "123456789", "phone"},
		{"long phone", "+91", "1234567890123456", "phone"},
		{"non-numeric phone", "+91", "98765abc10", "phone"},
	}
	for _, tc := range cases {
		err := e.RequestOTP(tc.dial, tc.phone)
		var fieldErr *FieldError
		if !errors.As(err, &fieldErr) {
			t.Fatalf("%s: expected FieldError, got %v", tc.name, err)
		}
		if fieldErr.Field != tc.wantField {
			t.Fatalf("%s: expected field %q, got %q", tc.name, tc.wantField, fieldErr.Field)
		}
		if e.State().Step != StepPhone {
			t.Fatalf("%s: validation failure must not change step", tc.name)
		}
	}
}

func TestRequestOTPTransitionsAfterSendDelay(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	e := newTestEngine(clk, nil)

	if err := e.RequestOTP("+91", "9876543210"); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	st := e.State()
	if st.Step != StepPhone || !st.OTPPending {
		t.Fatalf("dispatch must be pending before the delay: %+v", st)
	}

	clk.Advance(defaultSendDelay - time.Millisecond)
	if e.State().Step == StepOTP {
		t.Fatalf("transitioned before the send delay elapsed")
	}

	clk.Advance(time.Millisecond)
	st = e.State()
	if st.Step != StepOTP || st.OTPPending {
		t.Fatalf("expected StepOTP after send delay: %+v", st)
	}
}

func TestVerifyOTPOnlyAcceptsSentinel(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	e := newTestEngine(clk, nil)
	startOTPFlow(t, e, clk)

	if err := e.VerifyOTP("000000"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	st := e.State()
	if st.IsAuthenticated || st.Step != StepOTP {
		t.Fatalf("wrong code must leave state unchanged: %+v", st)
	}
	if st.DialCode != "+91" || st.PhoneDigits != "9876543210" {
		t.Fatalf("entered phone number lost after failed verify: %+v", st)
	}

	if err := e.VerifyOTP(MockOTPCode); err != nil {
		t.Fatalf("verify sentinel: %v", err)
	}
	st = e.State()
	if !st.IsAuthenticated || st.User == nil || st.User.PhoneNumber != "+919876543210" {
		t.Fatalf("unexpected session: %+v", st)
	}
}

func TestVerifyOTPValidatesShape(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	e := newTestEngine(clk, nil)
	startOTPFlow(t, e, clk)

	for _, code := range []string{"", "12345", "1234567", "12345a"} {
		err := e.VerifyOTP(code)
		var fieldErr *FieldError
		if !errors.As(err, &fieldErr) || fieldErr.Field != "otp" {
			t.Fatalf("code %q: expected otp FieldError, got %v", code, err)
		}
	}
}

func TestResendCooldown(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	e := newTestEngine(clk, nil)
	startOTPFlow(t, e, clk)

	if err := e.ResendOTP(); err != nil {
		t.Fatalf("first resend: %v", err)
	}
	clk.Advance(10 * time.Second)

	err := e.ResendOTP()
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatalf("expected CooldownError inside window, got %v", err)
	}
	if secs := cooldown.RemainingSeconds(); secs != 20 {
		t.Fatalf("expected 20s remaining, got %d", secs)
	}

	clk.Advance(20 * time.Second)
	if err := e.ResendOTP(); err != nil {
		t.Fatalf("resend after cooldown: %v", err)
	}
	clk.Advance(defaultResendDelay)
	if err := e.VerifyOTP(MockOTPCode); err != nil {
		t.Fatalf("verify after resend: %v", err)
	}
}

func TestResendOutsideOTPStep(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	e := newTestEngine(clk, nil)
	if err := e.ResendOTP(); !errors.Is(err, ErrNotAwaitingCode) {
		t.Fatalf("expected ErrNotAwaitingCode, got %v", err)
	}
}

func TestCancelOTPKeepsEnteredPhone(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	e := newTestEngine(clk, nil)
	startOTPFlow(t, e, clk)

	e.CancelOTP()
	st := e.State()
	if st.Step != StepPhone {
		t.Fatalf("cancel must return to phone step")
	}
	if st.DialCode != "+91" || st.PhoneDigits != "9876543210" {
		t.Fatalf("cancel must keep entered fields: %+v", st)
	}
}

func TestCancelOTPStopsPendingDispatch(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	e := newTestEngine(clk, nil)
	if err := e.RequestOTP("+91", "9876543210"); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	e.CancelOTP()
	clk.Advance(time.Minute)
	if e.State().Step != StepPhone {
		t.Fatalf("cancelled dispatch still fired")
	}
}

func TestSessionPersistsAndRehydrates(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	store := persist.NewMemoryStore()
	e := newTestEngine(clk, store)
	startOTPFlow(t, e, clk)
	if err := e.VerifyOTP(MockOTPCode); err != nil {
		t.Fatalf("verify: %v", err)
	}

	restored := newTestEngine(clk, store)
	if got := restored.State(); !got.Loading {
		t.Fatalf("engine must start loading before rehydration")
	}
	if err := restored.Rehydrate(); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	st := restored.State()
	if st.Loading {
		t.Fatalf("loading flag must clear after rehydration")
	}
	if !st.IsAuthenticated || st.User == nil || st.User.PhoneNumber != "+919876543210" {
		t.Fatalf("session not restored: %+v", st)
	}
}

func TestRehydrateRejectsTamperedBlob(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	store := persist.NewMemoryStore()
	e := newTestEngine(clk, store)
	startOTPFlow(t, e, clk)
	if err := e.VerifyOTP(MockOTPCode); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Swap the phone number without re-signing the token.
	var blob map[string]any
	if _, err := store.Load(persist.AuthKey, &blob); err != nil {
		t.Fatalf("load blob: %v", err)
	}
	blob["user"] = map[string]string{"phoneNumber": "+15550000000"}
	if err := store.Save(persist.AuthKey, blob); err != nil {
		t.Fatalf("save blob: %v", err)
	}

	restored := newTestEngine(clk, store)
	if err := restored.Rehydrate(); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	st := restored.State()
	if st.IsAuthenticated {
		t.Fatalf("tampered blob must not restore a session")
	}
	if st.Loading {
		t.Fatalf("loading must clear even when the blob is rejected")
	}
}

func TestLogoutClearsOnlyAuthState(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	store := persist.NewMemoryStore()
	if err := store.Save(persist.ChatKey, map[string]string{"marker": "chat"}); err != nil {
		t.Fatalf("seed chat blob: %v", err)
	}
	e := newTestEngine(clk, store)
	startOTPFlow(t, e, clk)
	if err := e.VerifyOTP(MockOTPCode); err != nil {
		t.Fatalf("verify: %v", err)
	}

	e.Logout()
	st := e.State()
	if st.IsAuthenticated || st.User != nil {
		t.Fatalf("logout must clear session: %+v", st)
	}
	var authState authBlob
	if _, err := store.Load(persist.AuthKey, &authState); err != nil {
		t.Fatalf("load auth blob: %v", err)
	}
	if authState.IsAuthenticated || authState.User != nil {
		t.Fatalf("cleared session not persisted: %+v", authState)
	}
	var chatBlob map[string]string
	if found, _ := store.Load(persist.ChatKey, &chatBlob); !found || chatBlob["marker"] != "chat" {
		t.Fatalf("logout must not touch chat state")
	}
}

func TestCloseCancelsPendingDispatch(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	e := newTestEngine(clk, nil)
	if err := e.RequestOTP("+91", "9876543210"); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	e.Close()
	clk.Advance(time.Minute)
	if e.State().Step != StepPhone {
		t.Fatalf("closed engine mutated state")
	}
}

func TestVerifyAttemptCapInvalidatesChallenge(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	e := newTestEngine(clk, nil)
	startOTPFlow(t, e, clk)

	for i := 0; i < defaultMaxAttempts; i++ {
		if err := e.VerifyOTP("999999"); !errors.Is(err, ErrInvalidOTP) {
			t.Fatalf("attempt %d: expected ErrInvalidOTP, got %v", i, err)
		}
	}
	// Challenge consumed by the attempt cap; even the sentinel is refused
	// until a resend re-arms it.
	if err := e.VerifyOTP(MockOTPCode); !errors.Is(err, ErrNoChallenge) {
		t.Fatalf("expected ErrNoChallenge after attempt cap, got %v", err)
	}
}
