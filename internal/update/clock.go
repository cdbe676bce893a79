package update

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so token lifecycle logic is
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TokenGenerator produces opaque download token strings.
type TokenGenerator interface {
	New() (string, error)
}

// RandomTokenGenerator produces hex-encoded tokens from 32 bytes of
// crypto/rand entropy: fixed length, simple characters, infeasible to guess.
type RandomTokenGenerator struct{}

func (RandomTokenGenerator) New() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("reading token entropy: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// IDGenerator abstracts unique ID generation so tests are deterministic.
// IDs are used to correlate log lines across one ingestion.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
