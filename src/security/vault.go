package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// keyFromConfig derives a 32-byte AEAD key from the configured hex/plain
// secret, so operators can set EXCHANGE_CREDENTIALS_KEY to any length
// string rather than an exact-size key.
func keyFromConfig(raw string) [32]byte {
	return sha256.Sum256([]byte(raw))
}

// EncryptString seals plaintext (an OKX API secret or passphrase) so it can
// live in an env var or config file without being stored in the clear.
// The result already carries the "enc:" prefix that DecryptString expects.
func EncryptString(plaintext string, cfg Config) (string, error) {
	key := keyFromConfig(cfg.ExchangeCRKey)
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return "", fmt.Errorf("build aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return "enc:" + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString. Values without the "enc:" prefix are
// returned unchanged, so plain-text credentials keep working in local/dev
// environments.
func DecryptString(value string, cfg Config) (string, error) {
	const prefix = "enc:"
	if len(value) < len(prefix) || value[:len(prefix)] != prefix {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(value[len(prefix):])
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}

	key := keyFromConfig(cfg.ExchangeCRKey)
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return "", fmt.Errorf("build aead: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}
