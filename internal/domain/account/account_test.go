package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"reader@example.com", false},
		{"  Reader@Example.com ", false},
		{"", true},
		{"   ", true},
		{"has space@example.com", true},
		{"path/traversal", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAVDName(t *testing.T) {
	assert.Equal(t, "reader_new_example_com", AVDName("reader", "New@Example.com"))
	assert.Equal(t, AVDName("reader", "a@b.c"), AVDName("reader", " A@B.C "))
}

func TestAuthStateValid(t *testing.T) {
	assert.True(t, AuthPendingTwoFA.Valid())
	assert.False(t, AuthState("signed_in").Valid())
}

func TestCloneIsIndependent(t *testing.T) {
	p := &Profile{AccountID: "a@b.c", AuthState: AuthUnauthenticated}
	c := p.Clone()
	c.AuthState = AuthAuthenticated

	assert.Equal(t, AuthUnauthenticated, p.AuthState)
	assert.Nil(t, (*Profile)(nil).Clone())
}
