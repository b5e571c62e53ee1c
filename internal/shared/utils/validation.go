package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Action parameter limits
const (
	MaxParamsSize   = 64 * 1024 // 64KB - maximum params payload size
	MaxParamsDepth  = 4
	MaxParamsKeys   = 32
	MaxStringLength = 4096
	MaxKeyLength    = 64
)

// JSONSizeValidator validates JSON size limits
type JSONSizeValidator struct {
	maxSize int
}

// NewJSONSizeValidator creates a new validator with the specified max size
func NewJSONSizeValidator(maxSize int) *JSONSizeValidator {
	return &JSONSizeValidator{maxSize: maxSize}
}

// DefaultParamsValidator returns a validator with the params size limit
func DefaultParamsValidator() *JSONSizeValidator {
	return NewJSONSizeValidator(MaxParamsSize)
}

// ValidateSize checks if the data size is within limits
func (v *JSONSizeValidator) ValidateSize(data []byte) error {
	size := len(data)
	if size > v.maxSize {
		return fmt.Errorf("JSON size %d bytes exceeds maximum %d bytes", size, v.maxSize)
	}
	return nil
}

// ValidateJSONDepth checks if JSON nesting depth is within limits
func ValidateJSONDepth(data interface{}, maxDepth int) error {
	return checkDepth(data, 0, maxDepth)
}

func checkDepth(data interface{}, currentDepth int, maxDepth int) error {
	if currentDepth > maxDepth {
		return fmt.Errorf("JSON nesting depth %d exceeds maximum %d", currentDepth, maxDepth)
	}

	switch v := data.(type) {
	case map[string]interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	}

	return nil
}

// ValidateParams checks decoded action parameters: key count, key and
// string lengths, and nesting depth
func ValidateParams(params map[string]interface{}) error {
	if len(params) > MaxParamsKeys {
		return fmt.Errorf("too many params (maximum %d)", MaxParamsKeys)
	}
	for key, value := range params {
		if err := ValidateString(key, "param name", 1, MaxKeyLength, true); err != nil {
			return err
		}
		if s, ok := value.(string); ok {
			if err := ValidateString(s, key, 0, MaxStringLength, false); err != nil {
				return err
			}
		}
	}
	return ValidateJSONDepth(params, MaxParamsDepth)
}

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}
