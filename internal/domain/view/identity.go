package view

import (
	"fmt"
	"strings"
)

// Identity names a recognizable app screen
type Identity int

const (
	Unknown Identity = iota
	NotificationPermission
	AppNotResponding
	Captcha
	TwoFactor
	AuthPassword
	AuthLogin
	LibrarySignIn
	BookOpen
	Home
	Settings
	Library
	LastReadPage
	AboutBook
)

var identityNames = []string{
	Unknown:                "unknown",
	NotificationPermission: "notification_permission",
	AppNotResponding:       "app_not_responding",
	Captcha:                "captcha",
	TwoFactor:              "two_factor",
	AuthPassword:           "auth_password",
	AuthLogin:              "auth_login",
	LibrarySignIn:          "library_sign_in",
	BookOpen:               "book_open",
	Home:                   "home",
	Settings:               "settings",
	Library:                "library",
	LastReadPage:           "last_read_page",
	AboutBook:              "about_book",
}

// Identities returns every known identity except Unknown
func Identities() []Identity {
	out := make([]Identity, 0, len(identityNames)-1)
	for i := range identityNames {
		if Identity(i) != Unknown {
			out = append(out, Identity(i))
		}
	}
	return out
}

func (i Identity) String() string {
	if i.Known() || i == Unknown {
		return identityNames[i]
	}
	return fmt.Sprintf("identity(%d)", int(i))
}

// Known reports whether i is a recognizable (non-Unknown) identity
func (i Identity) Known() bool {
	return i > Unknown && int(i) < len(identityNames)
}

// ParseIdentity resolves an identity by name
func ParseIdentity(s string) (Identity, error) {
	for i, name := range identityNames {
		if name == s {
			return Identity(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown view identity %q", s)
}

// SubState refines an identity where the distinction changes legal actions
type SubState string

const (
	AnySubState SubState = ""
	Empty       SubState = "empty"
	Populated   SubState = "populated"
)

// View is an identity plus an optional sub-state. It encodes as text,
// "identity" or "identity/sub_state".
type View struct {
	Identity Identity
	SubState SubState
}

// Of builds a view without sub-state
func Of(id Identity) View {
	return View{Identity: id}
}

// With builds a view with a sub-state
func With(id Identity, sub SubState) View {
	return View{Identity: id, SubState: sub}
}

// Matches reports whether v satisfies pattern p. An empty sub-state on the
// pattern matches any sub-state.
func (v View) Matches(p View) bool {
	if v.Identity != p.Identity {
		return false
	}
	return p.SubState == AnySubState || p.SubState == v.SubState
}

// IsUnknown reports whether the view was not recognized
func (v View) IsUnknown() bool {
	return v.Identity == Unknown
}

func (v View) String() string {
	if v.SubState == AnySubState {
		return v.Identity.String()
	}
	return v.Identity.String() + "/" + string(v.SubState)
}

// ParseView parses "identity" or "identity/sub_state"
func ParseView(s string) (View, error) {
	name, sub, _ := strings.Cut(s, "/")
	id, err := ParseIdentity(name)
	if err != nil {
		return View{}, err
	}
	return View{Identity: id, SubState: SubState(sub)}, nil
}

// MarshalText renders the view as "identity[/sub_state]"
func (v View) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses "identity[/sub_state]"
func (v *View) UnmarshalText(b []byte) error {
	parsed, err := ParseView(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
