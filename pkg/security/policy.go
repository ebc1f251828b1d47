package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// SpecialCharacters is the set a password must draw at least one character from.
const SpecialCharacters = "@$!%*?&"

const (
	MinPasswordLength = 8
	MaxPasswordLength = 50
)

// ErrPolicyViolation is matched by every *PolicyViolation via errors.Is.
var ErrPolicyViolation = errors.New("password policy violation")

// PolicyViolation names the first rule a candidate password failed.
type PolicyViolation struct {
	Rule    string
	Message string
}

func (v *PolicyViolation) Error() string { return v.Message }

func (v *PolicyViolation) Unwrap() error { return ErrPolicyViolation }

// PasswordRule is one check of a PasswordPolicy.
type PasswordRule struct {
	Name    string
	Message string
	Check   func(password string) bool
}

// PasswordPolicy evaluates rules in order and reports the first failure,
// so messages are deterministic.
type PasswordPolicy struct {
	rules []PasswordRule
}

// NewPasswordPolicy composes rules in priority order.
func NewPasswordPolicy(rules ...PasswordRule) *PasswordPolicy {
	return &PasswordPolicy{rules: rules}
}

// Validate returns nil when password satisfies every rule.
func (p *PasswordPolicy) Validate(password string) error {
	for _, r := range p.rules {
		if !r.Check(password) {
			return &PolicyViolation{Rule: r.Name, Message: r.Message}
		}
	}
	return nil
}

// DefaultPasswordPolicy is the policy applied on password change.
var DefaultPasswordPolicy = NewPasswordPolicy(
	NotEmpty(),
	MinLength(MinPasswordLength),
	MaxLength(MaxPasswordLength),
	ContainsRange("uppercase", 'A', 'Z', "Password must contain at least one uppercase letter"),
	ContainsRange("lowercase", 'a', 'z', "Password must contain at least one lowercase letter"),
	ContainsRange("digit", '0', '9', "Password must contain at least one digit"),
	ContainsAny("special", SpecialCharacters,
		fmt.Sprintf("Password must contain at least one special character (%s)", SpecialCharacters)),
)

// ValidatePassword checks password against DefaultPasswordPolicy.
func ValidatePassword(password string) error {
	return DefaultPasswordPolicy.Validate(password)
}

func NotEmpty() PasswordRule {
	return PasswordRule{
		Name:    "not_empty",
		Message: "Password cannot be empty",
		Check:   func(p string) bool { return strings.TrimSpace(p) != "" },
	}
}

func MinLength(n int) PasswordRule {
	return PasswordRule{
		Name:    "min_length",
		Message: fmt.Sprintf("Password must be at least %d characters long", n),
		Check:   func(p string) bool { return utf8.RuneCountInString(p) >= n },
	}
}

func MaxLength(n int) PasswordRule {
	return PasswordRule{
		Name:    "max_length",
		Message: fmt.Sprintf("Password must not exceed %d characters", n),
		Check:   func(p string) bool { return utf8.RuneCountInString(p) <= n },
	}
}

// ContainsRange requires a rune in [lo, hi].
func ContainsRange(name string, lo, hi rune, message string) PasswordRule {
	return PasswordRule{
		Name:    name,
		Message: message,
		Check: func(p string) bool {
			for _, r := range p {
				if r >= lo && r <= hi {
					return true
				}
			}
			return false
		},
	}
}

// ContainsAny requires one of the runes in chars.
func ContainsAny(name, chars, message string) PasswordRule {
	return PasswordRule{
		Name:    name,
		Message: message,
		Check:   func(p string) bool { return strings.ContainsAny(p, chars) },
	}
}
