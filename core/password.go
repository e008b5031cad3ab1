package core

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordKeyLength    = 32
	passwordSaltLength   = 16
	passwordIterations   = 250000
	resetTokenLength     = 16
	legacyHashIterations = 1
)

// HashPassword derives a PBKDF2-HMAC-SHA256 hash of text. When salt is empty a
// fresh random salt is generated. Returns the hex hash and the salt used.
func HashPassword(text, salt string) (string, string, error) {
	if salt == "" {
		generated, err := generateSalt()
		if err != nil {
			return "", "", err
		}
		salt = generated
	}

	key := pbkdf2.Key([]byte(text), []byte(salt), passwordIterations, passwordKeyLength, sha256.New)
	return hex.EncodeToString(key), salt, nil
}

// LegacyHashPassword reproduces the single-iteration PBKDF2-HMAC-SHA1 hashes
// written by earlier releases. Only used to verify and upgrade old rows.
func LegacyHashPassword(text, salt string) string {
	key := pbkdf2.Key([]byte(text), []byte(salt), legacyHashIterations, passwordKeyLength, sha1.New)
	return hex.EncodeToString(key)
}

// ComparePasswordHash compares two hex hashes in constant time.
func ComparePasswordHash(a, b string) bool {
	return constantTimeEqual(a, b)
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func generateSalt() (string, error) {
	b := make([]byte, passwordSaltLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateResetToken returns md5(uuid) re-encoded as url-safe base64 and
// truncated to 16 characters.
func GenerateResetToken() string {
	sum := md5.Sum([]byte(uuid.NewString()))
	encoded := base64.RawURLEncoding.EncodeToString([]byte(hex.EncodeToString(sum[:])))
	return encoded[:resetTokenLength]
}
