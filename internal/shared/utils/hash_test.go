package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFieldsOrderIndependent(t *testing.T) {
	h := DefaultHasher()
	assert.Equal(t, h.HashFields("a", "b", "c"), h.HashFields("c", "a", "b"))
	assert.NotEqual(t, h.HashFields("a", "b"), h.HashFields("a", "c"))
}

func TestHashJSONSortsKeys(t *testing.T) {
	h := DefaultHasher()

	a, err := h.HashJSON(map[string]interface{}{"x": 1, "y": map[string]interface{}{"b": 2, "a": 1}})
	require.NoError(t, err)
	b, err := h.HashJSON(map[string]interface{}{"y": map[string]interface{}{"a": 1, "b": 2}, "x": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFingerprint(t *testing.T) {
	f := NewFingerprinter(nil)

	tests := []struct {
		name  string
		a, b  map[string]interface{}
		equal bool
	}{
		{
			name:  "same params",
			a:     map[string]interface{}{"title": "Dune"},
			b:     map[string]interface{}{"title": "Dune"},
			equal: true,
		},
		{
			name:  "cache busters ignored",
			a:     map[string]interface{}{"title": "Dune", "_t": 1},
			b:     map[string]interface{}{"title": "Dune", "timestamp": "now", "cache_buster": "x", "staging": true},
			equal: true,
		},
		{
			name:  "different params",
			a:     map[string]interface{}{"title": "Dune"},
			b:     map[string]interface{}{"title": "Emma"},
			equal: false,
		},
		{
			name:  "nil and empty",
			a:     nil,
			b:     map[string]interface{}{},
			equal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa, err := f.Fingerprint("open_book", tt.a)
			require.NoError(t, err)
			fb, err := f.Fingerprint("open_book", tt.b)
			require.NoError(t, err)

			if tt.equal {
				assert.Equal(t, fa, fb)
			} else {
				assert.NotEqual(t, fa, fb)
			}
		})
	}
}

func TestFingerprintIncludesAction(t *testing.T) {
	f := NewFingerprinter(nil)

	next, err := f.Fingerprint("next_page", nil)
	require.NoError(t, err)
	prev, err := f.Fingerprint("prev_page", nil)
	require.NoError(t, err)

	assert.NotEqual(t, next, prev)
	assert.True(t, strings.HasPrefix(next, "next_page:"))
}

func TestUniqueNeverCollides(t *testing.T) {
	f := NewFingerprinter(nil)
	assert.NotEqual(t, f.Unique("open_random_book"), f.Unique("open_random_book"))
}
