package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenIssuer      = "postflow"
	SchedulerSubject = "scheduler"
)

// TriggerClaims identify who is allowed to start a publish run.
type TriggerClaims struct {
	Trigger string `json:"trigger"`
	jwt.RegisteredClaims
}

func GenerateToken(secretKey, trigger string, tokenDuration time.Duration) (string, error) {
	now := time.Now()
	claims := TriggerClaims{
		Trigger: trigger,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   SchedulerSubject,
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    TokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

func ValidateToken(secretKey, tokenString string) (*TriggerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TriggerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithSubject(SchedulerSubject),
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*TriggerClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
