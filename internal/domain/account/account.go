package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by repositories when no record exists
var ErrNotFound = errors.New("profile not found")

// AuthState is the account's sign-in progress as last observed
type AuthState string

const (
	AuthUnauthenticated AuthState = "unauthenticated"
	AuthPendingTwoFA    AuthState = "pending_2fa"
	AuthPendingCaptcha  AuthState = "pending_captcha"
	AuthAuthenticated   AuthState = "authenticated"
)

// Valid reports whether s is a known auth state
func (s AuthState) Valid() bool {
	switch s {
	case AuthUnauthenticated, AuthPendingTwoFA, AuthPendingCaptcha, AuthAuthenticated:
		return true
	}
	return false
}

// Profile is the persisted record of one account's automation context
type Profile struct {
	AccountID    string    `json:"account_id"`
	ProfileID    string    `json:"profile_id"`
	AuthState    AuthState `json:"auth_state"`
	InstanceID   string    `json:"instance_id"`
	AVDName      string    `json:"avd_name"`
	LastView     string    `json:"last_view,omitempty"`
	HasSnapshot  bool      `json:"has_snapshot"`
	SnapshotAt   time.Time `json:"snapshot_at,omitempty"`
	WasRunning   bool      `json:"was_running"`
	LastActivity time.Time `json:"last_activity,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a copy safe to hand out
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Repository persists profiles keyed by account identifier
type Repository interface {
	Load(ctx context.Context, accountID string) (*Profile, error)
	Save(ctx context.Context, profile *Profile) error
	Delete(ctx context.Context, accountID string) error
	List(ctx context.Context) ([]*Profile, error)
}

// NormalizeID lowercases and trims an account identifier
func NormalizeID(accountID string) string {
	return strings.ToLower(strings.TrimSpace(accountID))
}

// ValidateID checks that an account identifier is usable
func ValidateID(accountID string) error {
	id := NormalizeID(accountID)
	if id == "" {
		return errors.New("account id is required")
	}
	if len(id) > 254 {
		return errors.New("account id too long (max 254 characters)")
	}
	if strings.ContainsAny(id, " \t\r\n/\\") {
		return errors.New("account id contains invalid characters")
	}
	return nil
}

// AVDName derives a stable AVD name from the account identifier
func AVDName(prefix, accountID string) string {
	id := NormalizeID(accountID)
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte('_')
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
