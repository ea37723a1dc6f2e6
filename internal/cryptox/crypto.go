// Package cryptox implements the password verifier used by the credential
// service: PBKDF2-HMAC-SHA-256 key derivation with a random per-user salt,
// and a constant-time comparison for login.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/fsxbroker/fsx/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 round count used for newly hashed
	// passwords.
	DefaultIterations = 120_000

	saltSize = 16
	keySize  = 32
)

// HashPassword derives a verifier string for password using a fresh random
// salt, in the form "pbkdf2$<iters>$<salt_hex>$<dk_hex>". The returned
// string is what the users repository persists as pass_hash; it contains
// everything VerifyPassword needs to re-derive and compare later.
func HashPassword(password string) (string, error) {
	salt, err := common.GenerateRandByteArray(saltSize)
	if err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	dk := derive([]byte(password), salt, DefaultIterations)
	return encode(DefaultIterations, salt, dk), nil
}

// VerifyPassword reports whether password matches the verifier previously
// produced by HashPassword. It re-derives the key using the iteration count
// and salt embedded in stored, then compares in constant time so timing
// cannot leak how many bytes of the derived key matched.
func VerifyPassword(password, stored string) (bool, error) {
	iters, salt, wantDK, err := decode(stored)
	if err != nil {
		return false, err
	}
	gotDK := derive([]byte(password), salt, iters)
	return subtle.ConstantTimeCompare(gotDK, wantDK) == 1, nil
}

func derive(password, salt []byte, iters int) []byte {
	return pbkdf2.Key(password, salt, iters, keySize, sha256.New)
}

func encode(iters int, salt, dk []byte) string {
	return fmt.Sprintf("pbkdf2$%d$%s$%s", iters, hex.EncodeToString(salt), hex.EncodeToString(dk))
}

func decode(stored string) (iters int, salt, dk []byte, err error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != "pbkdf2" {
		return 0, nil, nil, fmt.Errorf("malformed verifier")
	}
	iters, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("malformed verifier iterations: %w", err)
	}
	salt, err = hex.DecodeString(parts[2])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("malformed verifier salt: %w", err)
	}
	dk, err = hex.DecodeString(parts[3])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("malformed verifier key: %w", err)
	}
	return iters, salt, dk, nil
}
