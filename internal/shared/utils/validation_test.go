package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]interface{}
		wantErr bool
	}{
		{"empty", map[string]interface{}{}, false},
		{"credentials", map[string]interface{}{"email": "a@example.com", "password": "pw"}, false},
		{"numeric index", map[string]interface{}{"index": float64(2)}, false},
		{"null byte", map[string]interface{}{"code": "12\x0034"}, true},
		{"long string", map[string]interface{}{"text": strings.Repeat("x", MaxStringLength+1)}, true},
		{"empty key", map[string]interface{}{"": "x"}, true},
		{"too deep", map[string]interface{}{"a": map[string]interface{}{"b": map[string]interface{}{
			"c": map[string]interface{}{"d": map[string]interface{}{"e": 1}}}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.params)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	many := map[string]interface{}{}
	for i := 0; i <= MaxParamsKeys; i++ {
		many[strings.Repeat("k", i+1)] = i
	}
	assert.Error(t, ValidateParams(many))
}

func TestValidateSize(t *testing.T) {
	v := NewJSONSizeValidator(4)
	assert.NoError(t, v.ValidateSize([]byte("{}")))
	assert.Error(t, v.ValidateSize([]byte(`{"a":1}`)))
}
