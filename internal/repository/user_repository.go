package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"metricflow/internal/domain"
)

// UserModel はgorm用のモデル定義。
type UserModel struct {
	ID           string    `gorm:"type:char(36);primaryKey"`
	OrgID        string    `gorm:"type:char(36);not null;index:ix_users_org_id"`
	Email        string    `gorm:"type:varchar(255);not null;uniqueIndex:uq_users_email"`
	PasswordHash string    `gorm:"type:varchar(255)"`
	Name         string    `gorm:"type:varchar(255);not null"`
	Role         string    `gorm:"type:varchar(20);not null;default:'admin'"`
	RoleLabel    string    `gorm:"type:varchar(100);not null"`
	CreatedAt    time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (UserModel) TableName() string {
	return "users"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *UserModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *UserModel) toDomain() *domain.User {
	return &domain.User{
		ID:           m.ID,
		OrgID:        m.OrgID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Name:         m.Name,
		Role:         domain.Role(m.Role),
		RoleLabel:    m.RoleLabel,
		CreatedAt:    m.CreatedAt,
	}
}

// UserRepository はユーザーのデータアクセスを提供する。
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository は新しいUserRepositoryを生成する。
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create は新しいユーザーを保存する。
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	model := &UserModel{
		OrgID:        user.OrgID,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Name:         user.Name,
		Role:         string(user.Role),
		RoleLabel:    user.RoleLabel,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create user",
			"operation", "create_user",
			"org_id", user.OrgID,
			"email", user.Email,
			"error", err,
		)
		return err
	}
	user.ID = model.ID
	user.CreatedAt = model.CreatedAt
	return nil
}

// FindByEmail はメールアドレスからユーザーを取得する。存在しない場合はnilを返す。
// メールアドレスは組織をまたいで一意のため、組織スコープは取らない。
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var model UserModel
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find user by email",
			"operation", "find_user_by_email",
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByID は指定されたIDのユーザーを取得する。存在しない場合はnilを返す。
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var model UserModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find user by id",
			"operation", "find_user_by_id",
			"user_id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAllByOrgID は組織の全ユーザーを取得する。
func (r *UserRepository) FindAllByOrgID(ctx context.Context, orgID string) ([]*domain.User, error) {
	var models []UserModel
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find users by org_id",
			"operation", "find_all_users_by_org_id",
			"org_id", orgID,
			"error", err,
		)
		return nil, err
	}

	users := make([]*domain.User, len(models))
	for i, m := range models {
		users[i] = m.toDomain()
	}
	return users, nil
}

// UpdateRole は指定されたユーザーの権限を更新する。
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role domain.Role, roleLabel string) error {
	err := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"role":       string(role),
			"role_label": roleLabel,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update user role",
			"operation", "update_user_role",
			"user_id", id,
			"error", err,
		)
		return err
	}
	return nil
}

// UpdatePassword は指定されたユーザーのパスワードハッシュを更新する。
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	err := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", id).
		Update("password_hash", passwordHash).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update user password",
			"operation", "update_user_password",
			"user_id", id,
			"error", err,
		)
		return err
	}
	return nil
}
