// Package domain contains core concepts of the messaging system.
// This file defines the user identity as the rest of the system sees it.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity a live connection is bound to. The durable store
// owns the online flag and last-seen timestamp; connections only mirror it.
type User struct {
	ID       uuid.UUID
	Username string
	Online   bool
	LastSeen time.Time
}
