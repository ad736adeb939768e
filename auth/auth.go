package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"mioserver/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidCredential = errors.New("invalid credential")

// Issuer は参加者ごとの認証情報 (HS256 の JWT) を発行・検証する
type Issuer struct {
	key []byte
	now func() time.Time
}

// NewIssuer returns an Issuer signing with secret. An empty secret yields a random key,
// which makes credentials unusable after a restart.
func NewIssuer(secret string) (*Issuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	return &Issuer{key: key, now: time.Now}, nil
}

// Issue returns a credential for userID in roomID. Credentials do not expire; they
// die with the room.
func (i *Issuer) Issue(userID, roomID string) (string, error) {
	claims := &models.CredentialClaims{
		RoomID: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(i.now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.key)
}

// Verify checks the signature and that the token was issued for userID in roomID.
func (i *Issuer) Verify(token, userID, roomID string) error {
	claims := &models.CredentialClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return ErrInvalidCredential
	}
	if claims.Subject != userID || claims.RoomID != roomID {
		return ErrInvalidCredential
	}
	return nil
}

// Equal は保存済みの認証情報との定数時間比較
func Equal(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
