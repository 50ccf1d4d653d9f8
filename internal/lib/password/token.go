package password

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ResetTokenBytes: количество случайных байт в токене сброса пароля.
const ResetTokenBytes = 32

// NewResetToken возвращает криптографически случайный токен в hex.
func NewResetToken() (string, error) {
	const op = "password.NewResetToken"
	buf := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken возвращает SHA-256 токена. В базе хранится только хэш.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
