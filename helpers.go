package campaignflow

import (
	"time"

	"github.com/google/uuid"
)

// ToPtr returns a pointer to the given value.
// This is useful for creating pointers to literals or converting values to pointers.
func ToPtr[T any](v T) *T {
	return &v
}

// NewID returns a fresh random identifier for campaigns and posts
func NewID() string {
	return uuid.NewString()
}

// Clock returns the current time; components take one so tests can pin it
type Clock func() time.Time

// SystemClock is the default clock, in UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}
