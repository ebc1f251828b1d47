package domain

import (
	"errors"

	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

// User errors. Unknown accounts and wrong passwords share one message so
// responses cannot be used to enumerate accounts.
var (
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrInvalidTwoFactorCode     = errors.New("invalid two-factor authentication code")
	ErrCurrentPasswordIncorrect = errors.New("current password incorrect")
	ErrPasswordConfirmation     = errors.New("confirmation mismatch")
	ErrPasswordRecentlyUsed     = errors.New("recently used")
	// ErrPasswordPolicy is matched by every *security.PolicyViolation.
	ErrPasswordPolicy = security.ErrPolicyViolation
)

// State errors. Disclosing lock state is accepted by the lockout feature.
var (
	ErrAccountLocked     = errors.New("account locked")
	ErrTwoFactorNotSetUp = errors.New("two-factor authentication not set up")
)

// Not-found errors, reported only on privileged paths.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Conflicts raised by repositories on create.
var (
	ErrEmailTaken    = errors.New("email already registered")
	ErrSessionExists = errors.New("session id already exists")
)

// Kind classifies errors for reporting.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindUser
	KindState
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	default:
		return "infrastructure"
	}
}

// KindOf classifies err. Anything unrecognised is infrastructure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInfrastructure
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidTwoFactorCode),
		errors.Is(err, ErrCurrentPasswordIncorrect),
		errors.Is(err, ErrPasswordConfirmation),
		errors.Is(err, ErrPasswordRecentlyUsed),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrEmailTaken):
		return KindUser
	case errors.Is(err, ErrAccountLocked), errors.Is(err, ErrTwoFactorNotSetUp):
		return KindState
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrSessionNotFound):
		return KindNotFound
	}
	return KindInfrastructure
}
