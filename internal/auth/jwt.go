package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the principal shape issued by the school platform's auth service.
// SchoolID is the tenant boundary; Role "admin" may widen read scope.
type Claims struct {
	UserID   string `json:"user_id"`
	SchoolID string `json:"school_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is a parsed, validated set of claims.
type Principal struct {
	UserID   uuid.UUID
	SchoolID uuid.UUID
	Admin    bool
}

var ErrInvalidClaims = errors.New("invalid token claims")

func ParseToken(secret, tokenString string) (Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, jwt.ErrTokenInvalidClaims
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return Principal{}, ErrInvalidClaims
	}
	schoolID, err := uuid.Parse(claims.SchoolID)
	if err != nil {
		return Principal{}, ErrInvalidClaims
	}

	return Principal{
		UserID:   userID,
		SchoolID: schoolID,
		Admin:    claims.Role == "admin",
	}, nil
}
