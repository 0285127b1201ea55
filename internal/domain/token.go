package domain

import "time"

// TokenType はJWTトークンの種別を表す。
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// RefreshToken はローテーション管理される有効なリフレッシュトークンを表す。
// トークン本体は保存せず、SHA-256ハッシュのみ保持する。
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	RotatedAt *time.Time
	IsRevoked bool
}

// BlacklistedToken は失効済みJWT（jti単位）を表す。
type BlacklistedToken struct {
	ID            string
	JTI           string
	TokenType     TokenType
	UserID        string
	ExpiresAt     time.Time
	BlacklistedAt time.Time
}
