package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// CredentialClaims は参加者の認証情報に内包するクレーム
type CredentialClaims struct {
	RoomID string `json:"room"`
	jwt.RegisteredClaims
}
