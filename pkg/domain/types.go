package domain

import "time"

// Sender identifies which side of a conversation produced a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// User is the authenticated identity established by OTP verification.
type User struct {
	PhoneNumber string `json:"phoneNumber"`
}

// Country is one entry of the dial-code directory. Entries are immutable
// once loaded; the directory guarantees dial-code uniqueness.
type Country struct {
	CommonName string `json:"commonName"`
	Alpha3     string `json:"alpha3"`
	DialCode   string `json:"dialCode"`
	FlagURL    string `json:"flagUrl"`
}

// Message is a single turn in a chatroom. Messages are append-only and never
// edited in place; Image optionally carries a data URI or an object storage
// reference.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Image     string    `json:"image,omitempty"`
}

// Chatroom is a named, ordered container of messages.
type Chatroom struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}
