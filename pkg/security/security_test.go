package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Cheap parameters keep the suite fast; the format is identical.
var testHasher = PasswordHasher{Params: HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}}

func TestPasswordHasher_RoundTrip(t *testing.T) {
	hash, err := testHasher.Hash("Secret1!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := testHasher.Compare("Secret1!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = testHasher.Compare("Secret2!", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHasher_SaltedHashesDiffer(t *testing.T) {
	a, err := testHasher.Hash("Secret1!")
	require.NoError(t, err)
	b, err := testHasher.Hash("Secret1!")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPasswordHasher_LegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("Secret1!"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := testHasher.Compare("Secret1!", string(legacy))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = testHasher.Compare("wrong", string(legacy))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHasher_EmptyAndMalformed(t *testing.T) {
	ok, err := testHasher.Compare("anything", "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = testHasher.Compare("anything", "$md5$nope")
	assert.ErrorIs(t, err, ErrInvalidHash)
	assert.False(t, ok)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	token, err := issuer.Issue("a@x.com", "ADMIN")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.True(t, issuer.Validate(token))
	assert.True(t, issuer.Validate("Bearer "+token))
	assert.Equal(t, "a@x.com", issuer.ExtractEmail(token))
	assert.Equal(t, "ADMIN", issuer.ExtractRole(token))
	assert.True(t, issuer.HasRole(token, "ADMIN"))
	assert.False(t, issuer.HasRole(token, "HR"))
	assert.True(t, issuer.HasAnyRole(token, "HR", "ADMIN"))
	assert.False(t, issuer.HasAnyRole(token))
}

func TestTokenIssuer_TamperedTokenRejected(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	token, err := issuer.Issue("a@x.com", "EMPLOYEE")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	// Flip one inner character in header, payload and signature.
	for _, idx := range []int{2, len(parts[0]) + 1 + 3, len(parts[0]) + len(parts[1]) + 2 + 5} {
		b := []byte(token)
		if b[idx] == 'A' {
			b[idx] = 'B'
		} else {
			b[idx] = 'A'
		}
		assert.False(t, issuer.Validate(string(b)), "mutation at %d accepted", idx)
	}

	// The last character of a segment may carry unused bits.
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	for seg := range parts {
		last := len(parts[seg]) - 1
		for _, c := range []byte(alphabet) {
			if c == parts[seg][last] {
				continue
			}
			mutated := make([]string, len(parts))
			copy(mutated, parts)
			mutated[seg] = parts[seg][:last] + string(c)
			assert.False(t, issuer.Validate(strings.Join(mutated, ".")),
				"segment %d: %q -> %q accepted", seg, parts[seg][last], c)
		}
	}

	other := NewTokenIssuer("other-secret")
	assert.False(t, other.Validate(token))
	assert.Empty(t, other.ExtractEmail(token))
	assert.False(t, other.HasRole(token, "EMPLOYEE"))
}

func TestTokenIssuer_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer := NewTokenIssuer("test-secret", WithClock(clock))

	token, err := issuer.Issue("a@x.com", "HR")
	require.NoError(t, err)
	require.True(t, issuer.Validate(token))

	now = now.Add(DefaultTokenTTL - time.Second)
	assert.True(t, issuer.Validate(token))

	now = now.Add(2 * time.Second)
	assert.False(t, issuer.Validate(token))
}

func TestTokenIssuer_GarbageNeverPanics(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	for _, tok := range []string{"", "Bearer ", "abc", "a.b.c", "....."} {
		assert.False(t, issuer.Validate(tok))
		assert.Empty(t, issuer.ExtractRole(tok))
	}
}

func TestTOTP_VerifyWithinWindow(t *testing.T) {
	key, err := GenerateTOTPKey("Sentinel", "a@x.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key.URI, "otpauth://totp/"))
	assert.True(t, strings.HasPrefix(key.QRCode, "data:image/png;base64,"))

	at := time.Date(2026, 3, 1, 9, 0, 15, 0, time.UTC)
	code, err := GenerateTOTPCode(key.Secret, at)
	require.NoError(t, err)
	require.Len(t, code, 6)

	assert.True(t, VerifyTOTP(code, key.Secret, at))
	assert.True(t, VerifyTOTP(code, key.Secret, at.Add(30*time.Second)))
	assert.True(t, VerifyTOTP(code, key.Secret, at.Add(-30*time.Second)))
	assert.False(t, VerifyTOTP(code, key.Secret, at.Add(5*time.Minute)))
	assert.False(t, VerifyTOTP("", key.Secret, at))
	assert.False(t, VerifyTOTP(code, "", at))
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(BackupCodeCount)
	require.NoError(t, err)
	require.Len(t, codes, BackupCodeCount)

	seen := map[string]bool{}
	for _, c := range codes {
		assert.Len(t, c, 6)
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
	assert.Equal(t, HashBackupCode(codes[0]), HashBackupCode(" "+codes[0]+" "))
	assert.NotEqual(t, HashBackupCode(codes[0]), HashBackupCode(codes[1]))
}

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		rule     string
	}{
		{name: "valid", password: "LongEnough1!"},
		{name: "empty", password: "   ", rule: "not_empty"},
		{name: "short", password: "short", rule: "min_length"},
		{name: "too long", password: strings.Repeat("Aa1!", 13), rule: "max_length"},
		{name: "no upper", password: "lowercase1!", rule: "uppercase"},
		{name: "no lower", password: "UPPERCASE1!", rule: "lowercase"},
		{name: "no digit", password: "NoDigitsHere!", rule: "digit"},
		{name: "no special", password: "NoSpecial123", rule: "special"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if tc.rule == "" {
				assert.NoError(t, err)
				return
			}
			var v *PolicyViolation
			require.True(t, errors.As(err, &v))
			assert.Equal(t, tc.rule, v.Rule)
			assert.ErrorIs(t, err, ErrPolicyViolation)
		})
	}

	err := ValidatePassword("short")
	assert.EqualError(t, err, "Password must be at least 8 characters long")
}

func TestPasswordPolicy_Composable(t *testing.T) {
	policy := NewPasswordPolicy(MinLength(4), ContainsAny("hash", "#", "needs a hash"))
	assert.NoError(t, policy.Validate("ab#d"))
	assert.EqualError(t, policy.Validate("abcd"), "needs a hash")
	assert.EqualError(t, policy.Validate("a#"), "Password must be at least 4 characters long")
}
