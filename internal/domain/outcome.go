package domain

// LoginOutcome is the result of a login attempt. It is one of
// *LoginSuccess, *TwoFactorChallenge or *LoginFailure.
type LoginOutcome interface {
	loginOutcome()
}

// LoginSuccess carries the session and token issued for a completed login.
type LoginSuccess struct {
	Token     string `json:"access_token"`
	SessionID string `json:"session_id"`
	Role      Role   `json:"role"`
	ExpiresIn int64  `json:"expires_in"` // seconds
}

// TwoFactorChallenge means the password was accepted but a second factor
// is needed. No session or token exists yet.
type TwoFactorChallenge struct {
	Email string `json:"email"`
}

// LoginFailure is a user- or state-level rejection.
type LoginFailure struct {
	Reason string `json:"error"`
	// Cause is the sentinel error behind Reason (ErrInvalidCredentials,
	// ErrAccountLocked, ErrInvalidTwoFactorCode).
	Cause error `json:"-"`
}

func (*LoginSuccess) loginOutcome()       {}
func (*TwoFactorChallenge) loginOutcome() {}
func (*LoginFailure) loginOutcome()       {}

// Failure builds a LoginFailure whose reason is the message of cause.
func Failure(cause error) *LoginFailure {
	return &LoginFailure{Reason: cause.Error(), Cause: cause}
}
