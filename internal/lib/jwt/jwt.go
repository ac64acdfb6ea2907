package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/finledger/ledger-api/internal/domain/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalidToken   = errors.New("token is invalid or expired")
	ErrWrongTokenType = errors.New("token has wrong type")
)

// Claims carried by both access and refresh tokens. The registered ID (jti)
// identifies a token on the revocation list.
type Claims struct {
	UserID    int64  `json:"uid"`
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Pair is issued on login.
type Pair struct {
	Refresh string `json:"refresh"`
	Access  string `json:"access"`
}

func NewToken(user models.User, tokenType string, jwtSecret string, duration time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID:    user.ID,
		Username:  user.Username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func NewPair(user models.User, jwtSecret string, accessTTL, refreshTTL time.Duration) (Pair, error) {
	refresh, err := NewToken(user, TypeRefresh, jwtSecret, refreshTTL)
	if err != nil {
		return Pair{}, err
	}

	access, err := NewToken(user, TypeAccess, jwtSecret, accessTTL)
	if err != nil {
		return Pair{}, err
	}

	return Pair{Refresh: refresh, Access: access}, nil
}

// ParseToken verifies signature and expiry and checks that the token is of tokenType.
func ParseToken(tokenString string, secret string, tokenType string) (*Claims, error) {
	var claims Claims

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	if !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != tokenType {
		return nil, ErrWrongTokenType
	}

	return &claims, nil
}
