package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL 令牌默认有效期
const DefaultTTL = 24 * time.Hour

var ErrEmptySecret = errors.New("secret key cannot be empty")

type AuthToken struct {
	secretKey []byte
	ttl       time.Duration
}

func NewAuthToken(secretKey string) (*AuthToken, error) {
	if secretKey == "" {
		return nil, ErrEmptySecret
	}
	return &AuthToken{
		secretKey: []byte(secretKey),
		ttl:       DefaultTTL,
	}, nil
}

// WithTTL 设置签发令牌的有效期
func (at *AuthToken) WithTTL(ttl time.Duration) *AuthToken {
	if ttl > 0 {
		at.ttl = ttl
	}
	return at
}

// GenerateToken 为拍摄客户端签发令牌
func (at *AuthToken) GenerateToken(customerID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"customer_id": customerID,
		"exp":         now.Add(at.ttl).Unix(),
		"iat":         now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(at.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// VerifyToken 校验令牌并返回其中的客户ID
func (at *AuthToken) VerifyToken(tokenString string) (string, error) {
	if at == nil {
		return "", errors.New("AuthToken instance is nil")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return at.secretKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	customerID, ok := claims["customer_id"].(string)
	if !ok {
		return "", errors.New("invalid customer_id in claims")
	}
	return customerID, nil
}
