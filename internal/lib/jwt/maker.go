// Package jwt подписывает и проверяет значение сессионной cookie.
//
// В cookie хранится не сама сессия, а JWT с идентификатором сессии в поле jti.
// Подпись HS256 не даёт подменить идентификатор, срок жизни токена совпадает
// со сроком жизни сессии в Redis.
package jwt

import (
	"time"
)

// Maker описывает генерацию и разбор токенов сессии.
type Maker interface {
	// GenerateToken подписывает идентификатор сессии.
	GenerateToken(sessionID string) (string, error)
	// ParseToken проверяет подпись и срок действия, возвращает claims.
	ParseToken(tokenStr string) (*SessionClaims, error)
}

// MakerImpl реализует Maker с секретным ключом и временем жизни токена.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker создаёт MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
		now:       time.Now,
	}
}
