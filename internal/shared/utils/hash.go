package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
)

// Hasher provides deterministic hashing
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// DefaultHasher returns a hasher with the default algorithm
func DefaultHasher() *Hasher {
	return NewHasher(SHA256)
}

// Hash computes a hex digest of data
func (h *Hasher) Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// HashString computes a hash of a string
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashJSON hashes the canonical JSON encoding of v (map keys sorted)
func (h *Hasher) HashJSON(v interface{}) (string, error) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return h.Hash(data), nil
}

// HashFields hashes fields independent of their order
func (h *Hasher) HashFields(fields ...string) string {
	sorted := make([]string, len(fields))
	copy(sorted, fields)
	sort.Strings(sorted)

	return h.HashString(strings.Join(sorted, "|"))
}

// volatileParams never take part in a request fingerprint
var volatileParams = map[string]bool{
	"_t":           true,
	"timestamp":    true,
	"cache_buster": true,
	"staging":      true,
}

// Fingerprinter derives request fingerprints for coalescing
type Fingerprinter struct {
	hasher *Hasher
}

// NewFingerprinter creates a fingerprinter
func NewFingerprinter(hasher *Hasher) *Fingerprinter {
	if hasher == nil {
		hasher = DefaultHasher()
	}
	return &Fingerprinter{hasher: hasher}
}

// Fingerprint returns action + normalized params as a stable digest.
// Identical requests that differ only in cache-busting params collide.
func (f *Fingerprinter) Fingerprint(action string, params map[string]interface{}) (string, error) {
	normalized := make(map[string]interface{}, len(params))
	for k, v := range params {
		if volatileParams[strings.ToLower(k)] {
			continue
		}
		normalized[k] = v
	}

	digest, err := f.hasher.HashJSON(normalized)
	if err != nil {
		return "", err
	}
	return action + ":" + digest[:16], nil
}

// Unique returns a fingerprint that never collides, for actions that
// must not be coalesced
func (f *Fingerprinter) Unique(action string) string {
	return action + ":" + uuid.NewString()
}
