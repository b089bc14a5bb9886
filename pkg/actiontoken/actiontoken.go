// Package actiontoken issues and redeems compact HMAC-signed tokens carrying
// an opaque payload and an issue timestamp. Each codec is scoped to a single
// purpose; a token minted for one purpose never verifies under another.
package actiontoken

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

type Purpose string

const (
	PurposeEmailVerification Purpose = "email-verification"
	PurposePasswordReset     Purpose = "password-reset"
)

// ErrInvalid covers tampered signatures, malformed tokens, and expired
// tokens alike. Callers must not learn which check failed.
var ErrInvalid = errors.New("invalid or expired token")

type Codec struct {
	key     []byte
	purpose Purpose
}

type tokenBody struct {
	Payload  string `json:"p"`
	IssuedAt int64  `json:"iat"`
	Nonce    string `json:"nce"`
}

// New derives a purpose-scoped signing key from the server secret, so the
// email-verification and password-reset codecs never share a key.
func New(secret string, purpose Purpose) *Codec {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(purpose))
	return &Codec{key: mac.Sum(nil), purpose: purpose}
}

func (c *Codec) Purpose() Purpose {
	return c.purpose
}

func (c *Codec) Issue(payload string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	body := tokenBody{
		Payload:  payload,
		IssuedAt: time.Now().Unix(),
		Nonce:    hex.EncodeToString(nonce),
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	encoded := base64.RawURLEncoding.EncodeToString(data)
	return encoded + "." + c.sign(data), nil
}

// Redeem verifies the signature before touching the payload, then enforces
// the max-age window against the embedded issue timestamp.
func (c *Codec) Redeem(tokenString string, maxAge time.Duration) (string, error) {
	dataPart, sigPart, err := split(tokenString)
	if err != nil {
		return "", ErrInvalid
	}

	decoded, err := base64.RawURLEncoding.DecodeString(dataPart)
	if err != nil {
		return "", ErrInvalid
	}

	if !hmac.Equal([]byte(c.sign(decoded)), []byte(sigPart)) {
		return "", ErrInvalid
	}

	var body tokenBody
	if err := json.Unmarshal(decoded, &body); err != nil {
		return "", ErrInvalid
	}

	issuedAt := time.Unix(body.IssuedAt, 0)
	if time.Since(issuedAt) > maxAge {
		return "", ErrInvalid
	}

	return body.Payload, nil
}

// Digest returns a stable fingerprint of a token, suitable for a
// consumed-token ledger without storing the token itself.
func Digest(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}

func (c *Codec) sign(data []byte) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func split(tokenString string) (string, string, error) {
	for i := len(tokenString) - 1; i >= 0; i-- {
		if tokenString[i] == '.' {
			if i == len(tokenString)-1 {
				break
			}
			return tokenString[:i], tokenString[i+1:], nil
		}
	}
	return "", "", errors.New("invalid token format")
}
