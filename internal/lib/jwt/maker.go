// Package jwt реализует выпуск и проверку bearer-токенов провайдера аутентификации.
//
// Токены подписываются общим секретом (HS256). Идентификатор пользователя
// хранится в стандартном claim "sub", почта в "email".
package jwt

import (
	"time"
)

// DefaultLeeway допустимое расхождение часов при проверке exp и iat.
const DefaultLeeway = 30 * time.Second

// Maker выпускает и проверяет токены.
type Maker interface {
	GenerateToken(userUID, email string) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// HMACMaker подписывает токены общим секретом.
type HMACMaker struct {
	secretKey string
	tokenTTL  time.Duration
	leeway    time.Duration
	now       func() time.Time
}

// NewJWTMaker создаёт HMACMaker с секретом secretKey и временем жизни токена ttl.
func NewJWTMaker(secretKey string, ttl time.Duration) *HMACMaker {
	return &HMACMaker{
		secretKey: secretKey,
		tokenTTL:  ttl,
		leeway:    DefaultLeeway,
		now:       time.Now,
	}
}
