package module

import (
	"errors"
	"fmt"
	"strings"
)

// Scope is the installation visibility level.
type Scope string

const (
	// ScopeCurrentUser installs modules for the invoking account only.
	ScopeCurrentUser Scope = "CurrentUser"
	// ScopeAllUsers installs modules machine-wide and needs elevated privileges.
	ScopeAllUsers Scope = "AllUsers"
)

// ErrInvalidScope is returned when a scope string is neither CurrentUser nor AllUsers.
var ErrInvalidScope = errors.New("scope must be CurrentUser or AllUsers")

// Scopes lists the supported scopes in lookup order.
func Scopes() []Scope {
	return []Scope{ScopeCurrentUser, ScopeAllUsers}
}

// ParseScope converts user input to a Scope, ignoring case.
func ParseScope(s string) (Scope, error) {
	for _, scope := range Scopes() {
		if strings.EqualFold(strings.TrimSpace(s), string(scope)) {
			return scope, nil
		}
	}

	return "", fmt.Errorf("%q: %w", s, ErrInvalidScope)
}

// String implements pflag.Value.
func (s *Scope) String() string {
	if s == nil || *s == "" {
		return string(ScopeCurrentUser)
	}

	return string(*s)
}

// Set implements pflag.Value.
func (s *Scope) Set(value string) error {
	parsed, err := ParseScope(value)
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// Type implements pflag.Value.
func (*Scope) Type() string {
	return "scope"
}
