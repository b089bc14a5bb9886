package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// TOTP secrets are stored encrypted with AES-256-GCM under a key derived
// from the server secret via HKDF.
var secretCipher cipher.AEAD

var errEncryptionNotConfigured = errors.New("encryption not configured")

// ConfigureEncryption derives the at-rest cipher from the server secret.
// Must be called once at startup, before any secret is stored or read.
func ConfigureEncryption(secret string) {
	if secret == "" {
		return
	}

	key := make([]byte, 32)
	kdf := hkdf.New(
		sha256.New,
		[]byte(secret),
		[]byte("authgate-totp-encryption"),
		[]byte("encryption-key"),
	)
	if _, err := io.ReadFull(kdf, key); err != nil {
		panic("failed to derive encryption key: " + err.Error())
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		panic("failed to initialize cipher: " + err.Error())
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		panic("failed to initialize GCM: " + err.Error())
	}

	secretCipher = gcm
}

func EncryptSecret(plaintext string) (string, error) {
	if secretCipher == nil {
		return "", errEncryptionNotConfigured
	}

	nonce := make([]byte, secretCipher.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := secretCipher.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func DecryptSecret(encoded string) (string, error) {
	if secretCipher == nil {
		return "", errEncryptionNotConfigured
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	nonceSize := secretCipher.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	plaintext, err := secretCipher.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// DecryptOrPlaintext tolerates secrets stored before encryption was enabled.
func DecryptOrPlaintext(value string) string {
	decrypted, err := DecryptSecret(value)
	if err != nil {
		return value
	}
	return decrypted
}
