package usecase

import (
	"time"

	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

// PasswordHasher hashes passwords and verifies them in constant time.
// security.PasswordHasher is the production implementation.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(password, encodedHash string) (bool, error)
}

// Option configures the ambient dependencies of a usecase.
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
	hasher PasswordHasher
}

func newOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
		now:    time.Now,
		hasher: security.PasswordHasher{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the structured logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHasher replaces the default argon2id hasher.
func WithHasher(h PasswordHasher) Option {
	return func(o *options) {
		if h != nil {
			o.hasher = h
		}
	}
}
