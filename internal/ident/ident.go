package ident

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Clock provides the ledger's notion of now. Operations never read the wall
// clock directly; tests inject a deterministic implementation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Generator mints identifiers for the ledger. Entity ids use a short
// prefixed form; event-envelope ids are ULIDs so the audit log sorts
// lexically by mint order.
type Generator interface {
	NewID(prefix string) string
	EventID() string
}

// RandomGenerator is the production Generator. Collisions within a run are
// statistically negligible; a collision surfaces as an append-only
// violation, which is a caller error, not corruption.
type RandomGenerator struct{}

// NewID returns prefix-<8 hex chars>, the leading 8 hex digits of a fresh
// 128-bit random value.
func (RandomGenerator) NewID(prefix string) string {
	u := uuid.New()
	return prefix + "-" + hex.EncodeToString(u[:4])
}

// EventID returns a fresh ULID string.
func (RandomGenerator) EventID() string {
	return ulid.Make().String()
}
