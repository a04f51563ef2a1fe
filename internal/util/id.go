package util

import "github.com/google/uuid"

// NewID returns a random identifier. Ids are never reused within a process
// lifetime; chatroom and message identity relies on that.
func NewID() string {
	return uuid.NewString()
}
