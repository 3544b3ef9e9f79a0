package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

// TokenUser is the user payload issued by the user service.
type TokenUser struct {
	ID    string `json:"_id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type AccessClaims struct {
	User TokenUser `json:"user"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) UserID() string {
	return c.User.ID
}

func GenerateAccessToken(user TokenUser, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &AccessClaims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ValidateAccessToken(tokenString, secret string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w, unexpected signing method", domain.ErrInvalidToken)
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	if claims.User.ID == "" {
		return nil, domain.ErrInvalidToken.WithMessage("Invalid token")
	}
	return claims, nil
}

func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("%w, header is empty", domain.ErrInvalidToken)
	}

	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", fmt.Errorf("%w, invalid format, forgot 'Bearer '?)", domain.ErrInvalidToken)
	}

	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", fmt.Errorf("%w, token is empty", domain.ErrInvalidToken)
	}
	return token, nil
}
