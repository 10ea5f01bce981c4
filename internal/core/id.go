package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewTaskID returns a "task_" prefixed random 48-bit hex identifier.
func NewTaskID() string {
	return "task_" + randomHex()
}

// NewExecutionID returns an "exec_" prefixed random 48-bit hex identifier.
func NewExecutionID() string {
	return "exec_" + randomHex()
}

// randomHex returns 12 lowercase hex characters. Falls back to a timestamp
// string if the random source fails.
func randomHex() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("%d", time.Now().UTC().UnixNano())
}
