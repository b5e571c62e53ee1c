// Package id provides ULID generation for fleet entities.
//
// IDs are prefixed by entity type (prof_*, inst_*, req_*) so logs stay
// readable, and ULIDs keep them sortable by creation time.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ProfileID identifies an account profile
type ProfileID string

// InstanceID identifies one emulator instance of a profile
type InstanceID string

// RequestID identifies an inbound request or a trace span
type RequestID string

const (
	ProfilePrefix  = "prof"
	InstancePrefix = "inst"
	RequestPrefix  = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewProfileID generates a new profile ID
func NewProfileID() ProfileID {
	return ProfileID(Default().GenerateWithPrefix(ProfilePrefix))
}

// NewInstanceID generates a new instance ID
func NewInstanceID() InstanceID {
	return InstanceID(Default().GenerateWithPrefix(InstancePrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id ProfileID) String() string  { return string(id) }
func (id InstanceID) String() string { return string(id) }
func (id RequestID) String() string  { return string(id) }

// IsValid checks whether s is a ULID, with or without a type prefix
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Parse parses a ULID, stripping a type prefix if present
func Parse(s string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	return ulid.Parse(s)
}

// Timestamp extracts the creation time from an ID
func Timestamp(s string) (time.Time, error) {
	parsed, err := Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
