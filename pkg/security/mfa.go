package security

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image/png"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// BackupCodeCount is the size of a freshly provisioned backup-code set.
	BackupCodeCount = 10

	totpPeriod     = 30
	totpSkew       = 1
	totpSecretSize = 20
	qrCodeSize     = 200
)

// TOTPKey is a freshly provisioned TOTP secret.
type TOTPKey struct {
	Secret string
	// URI is the otpauth:// provisioning URI.
	URI string
	// QRCode is a PNG data URI encoding URI.
	QRCode string
}

// GenerateTOTPKey creates a random secret for email (SHA1, 6 digits, 30s),
// compatible with Google Authenticator.
func GenerateTOTPKey(issuer, email string) (*TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: email,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	qr, err := qrCodeDataURI(key)
	if err != nil {
		return nil, err
	}

	return &TOTPKey{Secret: key.Secret(), URI: key.URL(), QRCode: qr}, nil
}

func qrCodeDataURI(key *otp.Key) (string, error) {
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// VerifyTOTP checks a 6-digit code against secret at the given time,
// accepting one 30 second step on either side.
func VerifyTOTP(code, secret string, at time.Time) bool {
	code = normalizeCode(code)
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// GenerateTOTPCode returns the code for secret at the given time.
func GenerateTOTPCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// GenerateBackupCodes returns n distinct random six-digit codes.
func GenerateBackupCodes(n int) ([]string, error) {
	seen := make(map[string]struct{}, n)
	codes := make([]string, 0, n)
	span := big.NewInt(900000)
	for len(codes) < n {
		v, err := rand.Int(rand.Reader, span)
		if err != nil {
			return nil, err
		}
		code := fmt.Sprintf("%06d", v.Int64()+100000)
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// HashBackupCode is the form backup codes are stored and looked up in.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(normalizeCode(code)))
	return hex.EncodeToString(sum[:])
}

func normalizeCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), " ", "")
}
