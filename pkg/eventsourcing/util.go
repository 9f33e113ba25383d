package eventsourcing

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TimeFunc is a function that returns the current time.
// This can be overridden for testing.
var TimeFunc = time.Now

// Now returns the current time using the configured TimeFunc.
func Now() time.Time {
	return TimeFunc()
}

// generateRandomEventID generates a random, time-sortable event ID.
// This is used as a fallback when deterministic IDs are not needed.
func generateRandomEventID() string {
	entropy := rand.New(rand.NewSource(Now().UnixNano()))
	ms := ulid.Timestamp(Now())
	id, err := ulid.New(ms, entropy)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// GenerateID generates a unique aggregate identifier.
func GenerateID() string {
	return uuid.NewString()
}
