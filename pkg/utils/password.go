package utils

import "golang.org/x/crypto/bcrypt"

// bcrypt ignores everything past 72 bytes; truncate explicitly so the
// same password always maps to the same input.
const maxPasswordBytes = 72

func HashPassword(password string) (string, error) {
	raw := []byte(password)
	if len(raw) > maxPasswordBytes {
		raw = raw[:maxPasswordBytes]
	}
	hash, err := bcrypt.GenerateFromPassword(raw, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	raw := []byte(password)
	if len(raw) > maxPasswordBytes {
		raw = raw[:maxPasswordBytes]
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), raw) == nil
}
