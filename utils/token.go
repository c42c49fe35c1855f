package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "SavouryHeaven"

	TokenKindUser        = "user"
	TokenKindReservation = "reservation"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrWrongKind    = errors.New("token kind mismatch")
)

// CustomClaims is shared by user tokens and anonymous reservation tokens.
// Kind tells them apart; a reservation token carries only ReservationID.
type CustomClaims struct {
	Kind          string `json:"kind"`
	UserID        uint   `json:"user_id,omitempty"`
	Role          string `json:"role,omitempty"`
	ReservationID uint   `json:"reservation_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and parses HS256 tokens.
type TokenManager struct {
	secret         []byte
	userTTL        time.Duration
	reservationTTL time.Duration
	now            func() time.Time
}

func NewTokenManager(secret string, userTTL, reservationTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:         []byte(secret),
		userTTL:        userTTL,
		reservationTTL: reservationTTL,
		now:            time.Now,
	}
}

func (tm *TokenManager) GenerateToken(userID uint, role string) (string, error) {
	return tm.sign(CustomClaims{
		Kind:   TokenKindUser,
		UserID: userID,
		Role:   role,
	}, tm.userTTL)
}

// GenerateReservationToken issues the short-lived token that lets an
// anonymous customer manage the reservation they just created.
func (tm *TokenManager) GenerateReservationToken(reservationID uint) (string, error) {
	return tm.sign(CustomClaims{
		Kind:          TokenKindReservation,
		ReservationID: reservationID,
	}, tm.reservationTTL)
}

func (tm *TokenManager) ParseToken(tokenString string) (*CustomClaims, error) {
	return tm.parse(tokenString, TokenKindUser)
}

func (tm *TokenManager) ParseReservationToken(tokenString string) (*CustomClaims, error) {
	return tm.parse(tokenString, TokenKindReservation)
}

func (tm *TokenManager) sign(claims CustomClaims, ttl time.Duration) (string, error) {
	now := tm.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    tokenIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Kind, err)
	}
	return signed, nil
}

func (tm *TokenManager) parse(tokenString, kind string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(tm.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	return claims, nil
}

func (tm *TokenManager) ReservationTTL() time.Duration {
	return tm.reservationTTL
}
