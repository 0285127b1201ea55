package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"metricflow/internal/domain"
)

// BlacklistedTokenModel はtoken_blacklistテーブルのモデル。
type BlacklistedTokenModel struct {
	ID            string    `gorm:"type:char(36);primaryKey"`
	JTI           string    `gorm:"column:jti;type:varchar(36);not null;uniqueIndex"`
	TokenType     string    `gorm:"type:varchar(20);not null"`
	UserID        string    `gorm:"type:char(36);not null"`
	ExpiresAt     time.Time `gorm:"type:datetime(6);not null;index:ix_token_blacklist_expires_at"`
	BlacklistedAt time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (BlacklistedTokenModel) TableName() string {
	return "token_blacklist"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *BlacklistedTokenModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// RefreshTokenModel はrefresh_tokensテーブルのモデル。
type RefreshTokenModel struct {
	ID        string     `gorm:"type:char(36);primaryKey"`
	UserID    string     `gorm:"type:char(36);not null;index:ix_refresh_tokens_user_id"`
	TokenHash string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	ExpiresAt time.Time  `gorm:"type:datetime(6);not null"`
	CreatedAt time.Time  `gorm:"type:datetime(6);not null;autoCreateTime"`
	RotatedAt *time.Time `gorm:"type:datetime(6)"`
	IsRevoked bool       `gorm:"not null;default:false"`
}

// TableName はテーブル名を返す。
func (RefreshTokenModel) TableName() string {
	return "refresh_tokens"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *RefreshTokenModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// TokenRepository はトークンの失効管理を提供する。
type TokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository は新しいTokenRepositoryを生成する。
func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// StoreRefreshToken はリフレッシュトークンのハッシュを保存する。
func (r *TokenRepository) StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	model := &RefreshTokenModel{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to store refresh token",
			"operation", "store_refresh_token",
			"user_id", userID,
			"error", err,
		)
		return err
	}
	return nil
}

// IsRefreshTokenValid はリフレッシュトークンが有効（未失効・未期限切れ）か確認する。
func (r *TokenRepository) IsRefreshTokenValid(ctx context.Context, tokenHash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&RefreshTokenModel{}).
		Where("token_hash = ? AND is_revoked = ? AND expires_at > ?", tokenHash, false, time.Now().UTC()).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to validate refresh token",
			"operation", "is_refresh_token_valid",
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// RevokeRefreshToken はハッシュで指定されたリフレッシュトークンを失効させる。
func (r *TokenRepository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).
		Model(&RefreshTokenModel{}).
		Where("token_hash = ?", tokenHash).
		Updates(map[string]interface{}{
			"is_revoked": true,
			"rotated_at": &now,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to revoke refresh token",
			"operation", "revoke_refresh_token",
			"error", err,
		)
		return err
	}
	return nil
}

// RevokeAllByUserID はユーザーの有効なリフレッシュトークンを全て失効させる。
func (r *TokenRepository) RevokeAllByUserID(ctx context.Context, userID string) error {
	err := r.db.WithContext(ctx).
		Model(&RefreshTokenModel{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Update("is_revoked", true).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to revoke user tokens",
			"operation", "revoke_all_by_user_id",
			"user_id", userID,
			"error", err,
		)
		return err
	}
	return nil
}

// Blacklist はアクセストークンのjtiを失効リストに追加する。
func (r *TokenRepository) Blacklist(ctx context.Context, token *domain.BlacklistedToken) error {
	model := &BlacklistedTokenModel{
		JTI:       token.JTI,
		TokenType: string(token.TokenType),
		UserID:    token.UserID,
		ExpiresAt: token.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to blacklist token",
			"operation", "blacklist_token",
			"user_id", token.UserID,
			"error", err,
		)
		return err
	}
	return nil
}

// IsBlacklisted はjtiが失効リストに含まれるか確認する。
func (r *TokenRepository) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&BlacklistedTokenModel{}).
		Where("jti = ?", jti).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to check blacklist",
			"operation", "is_blacklisted",
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// DeleteExpired は期限切れのトークンレコードを削除し、削除件数を返す。
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC()

	blacklist := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&BlacklistedTokenModel{})
	if blacklist.Error != nil {
		slog.ErrorContext(ctx, "failed to delete expired blacklist entries",
			"operation", "delete_expired",
			"error", blacklist.Error,
		)
		return 0, blacklist.Error
	}

	refresh := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&RefreshTokenModel{})
	if refresh.Error != nil {
		slog.ErrorContext(ctx, "failed to delete expired refresh tokens",
			"operation", "delete_expired",
			"error", refresh.Error,
		)
		return blacklist.RowsAffected, refresh.Error
	}

	return blacklist.RowsAffected + refresh.RowsAffected, nil
}
