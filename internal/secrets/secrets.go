// Package secrets implements the reversible encryption scheme used for
// partner CONNECT passwords at rest. Unlike a login credential, a PeSIT
// partner password must be recoverable in cleartext to compare against what
// the peer sends on the wire, so values are encrypted rather than hashed.
//
// Stored values carry a scheme prefix so old records keep working across a
// key rotation: "AES:v2:" is the only scheme ever written by this version;
// "AES:" and "ENC:" are recognized for decrypt-only backward compatibility;
// "vault:" defers to an external resolver.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

const (
	prefixAESv2  = "AES:v2:"
	prefixAESv1  = "AES:"
	prefixENCv1  = "ENC:"
	prefixVault  = "vault:"
	pbkdf2Iters  = 100_000
	pbkdf2KeyLen = chacha20poly1305.KeySize
)

// ErrUnsupportedScheme is returned when a stored value's prefix is not one
// this version recognizes at all.
var ErrUnsupportedScheme = errors.New("secrets: unsupported encryption scheme")

// ErrLegacySchemeNotEmittable names the fact that legacy schemes are
// decrypt-only. Encrypt always emits "AES:v2:" and never returns it.
var ErrLegacySchemeNotEmittable = errors.New("secrets: legacy scheme is decrypt-only")

// VaultResolver resolves a "vault:"-prefixed reference (the part after the
// prefix) to its cleartext value. Left nil, vault: references fail closed.
type VaultResolver interface {
	Resolve(ref string) (string, error)
}

// Service encrypts and decrypts partner password references.
type Service struct {
	key     []byte // derived AEAD key for AES:v2: and legacy AES:
	vault   VaultResolver
}

// New builds a Service. passphrase is stretched via PBKDF2 into the AEAD
// key; the same passphrase must be supplied across restarts to decrypt
// existing records.
func New(passphrase string, salt []byte, vault VaultResolver) *Service {
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iters, pbkdf2KeyLen, sha3.New256)
	return &Service{key: key, vault: vault}
}

// IsEncrypted reports whether v carries any recognized scheme prefix.
func IsEncrypted(v string) bool {
	return strings.HasPrefix(v, prefixAESv2) ||
		strings.HasPrefix(v, prefixAESv1) ||
		strings.HasPrefix(v, prefixENCv1) ||
		strings.HasPrefix(v, prefixVault)
}

// Encrypt produces an "AES:v2:"-tagged ciphertext for cleartext. This is
// the only scheme this version ever writes.
func (s *Service) Encrypt(cleartext string) (string, error) {
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return "", fmt.Errorf("secrets: building AEAD: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secrets: generating nonce: %w", err)
	}
	ciphertext := aead.Seal(nonce, nonce, []byte(cleartext), nil)
	return prefixAESv2 + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt recovers the cleartext for any recognized scheme.
func (s *Service) Decrypt(stored string) (string, error) {
	switch {
	case strings.HasPrefix(stored, prefixAESv2):
		return s.decryptAEAD(strings.TrimPrefix(stored, prefixAESv2))
	case strings.HasPrefix(stored, prefixAESv1):
		return s.decryptAEAD(strings.TrimPrefix(stored, prefixAESv1))
	case strings.HasPrefix(stored, prefixENCv1):
		return s.decryptAEAD(strings.TrimPrefix(stored, prefixENCv1))
	case strings.HasPrefix(stored, prefixVault):
		if s.vault == nil {
			return "", fmt.Errorf("secrets: vault reference present but no resolver configured")
		}
		return s.vault.Resolve(strings.TrimPrefix(stored, prefixVault))
	default:
		// Unprefixed values are treated as already-cleartext, matching
		// partner records written before encryption-at-rest was enabled.
		return stored, nil
	}
}

func (s *Service) decryptAEAD(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("secrets: decoding ciphertext: %w", err)
	}
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return "", fmt.Errorf("secrets: building AEAD: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("secrets: ciphertext shorter than nonce")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decryption failed: %w", err)
	}
	return string(plain), nil
}
