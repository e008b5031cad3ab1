package core

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const SessionCookieName = "session"

var (
	ErrNoSessionSecret    = errors.New("SESSION_SECRET environment variable not set")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrSessionDecryption  = errors.New("session has potentially been tampered with")
	errSessionSplitFailed = errors.New("decrypted session does not contain exactly one separator")
)

// SessionRecord is the data sealed inside the session cookie.
type SessionRecord struct {
	ID string `json:"id"`
}

// UnmarshalJSON accepts both string and numeric ids.
func (s *SessionRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.ID) == 0 || string(raw.ID) == "null" {
		s.ID = ""
		return nil
	}

	var str string
	if err := json.Unmarshal(raw.ID, &str); err == nil {
		s.ID = str
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(raw.ID, &num); err != nil {
		return fmt.Errorf("session id must be a string or number: %w", err)
	}
	if i, err := num.Int64(); err == nil {
		s.ID = strconv.FormatInt(i, 10)
		return nil
	}
	s.ID = num.String()
	return nil
}

// SessionCodec seals session cookies with AES-256-GCM. The key is derived from
// the session secret with SHA-256 so any secret length is accepted.
type SessionCodec struct {
	key []byte
}

func NewSessionCodec(secret string) (*SessionCodec, error) {
	if secret == "" {
		return nil, ErrNoSessionSecret
	}
	sum := sha256.Sum256([]byte(secret))
	return &SessionCodec{key: sum[:]}, nil
}

// Encrypt returns base64-encoded ciphertext with the nonce prepended.
func (sc *SessionCodec) Encrypt(plaintext string) (string, error) {
	gcm, err := sc.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (sc *SessionCodec) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	gcm, err := sc.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	nonce, cipherbytes := data[:nonceSize], data[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, cipherbytes, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func (sc *SessionCodec) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(sc.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptSession seals `json(record) + ";" + csrfToken`.
func (sc *SessionCodec) EncryptSession(record SessionRecord, csrfToken string) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	return sc.Encrypt(string(data) + ";" + csrfToken)
}

// DecryptSession opens a session cookie value. A blank value means no session
// and yields a nil record without error; anything unreadable yields
// ErrSessionDecryption.
func (sc *SessionCodec) DecryptSession(ciphertext string) (*SessionRecord, string, error) {
	if strings.TrimSpace(ciphertext) == "" {
		return nil, "", nil
	}

	plaintext, err := sc.Decrypt(ciphertext)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrSessionDecryption, err)
	}

	parts := strings.Split(plaintext, ";")
	if len(parts) != 2 {
		return nil, "", fmt.Errorf("%w: %v", ErrSessionDecryption, errSessionSplitFailed)
	}

	var record SessionRecord
	if err := json.Unmarshal([]byte(parts[0]), &record); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrSessionDecryption, err)
	}

	return &record, parts[1], nil
}

// ParseSessionCookie extracts the session cookie value from a raw Cookie
// header. Returns "" when the cookie is absent or empty.
func ParseSessionCookie(header string) string {
	if header == "" {
		return ""
	}

	for _, pair := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || strings.TrimSpace(name) != SessionCookieName {
			continue
		}
		return strings.TrimSpace(value)
	}
	return ""
}
