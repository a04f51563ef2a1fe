package auth

import (
	"log/slog"
	"strings"
)

// CodeSender dispatches a verification code to a phone number. This is the
// seam where a real SMS provider would plug in; the default sender only logs.
type CodeSender interface {
	Send(phone, code string) error
}

// LogSender is the mock dispatch path: the code never leaves the process.
type LogSender struct{}

// Send logs the dispatch with the phone number masked.
func (LogSender) Send(phone, code string) error {
	slog.Info("mock OTP dispatched", "phone", MaskPhone(phone), "code", code)
	return nil
}

// MaskPhone hides all but the leading dial characters and the last two
// digits, for log lines.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 4 {
		return "***"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
