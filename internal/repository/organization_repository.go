// Package repository はデータアクセス層の実装を提供する。
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

// OrganizationModel はgorm用のモデル定義。
type OrganizationModel struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Name      string    `gorm:"type:varchar(255);not null"`
	Industry  string    `gorm:"type:varchar(100)"`
	CreatedAt time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (OrganizationModel) TableName() string {
	return "organizations"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *OrganizationModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *OrganizationModel) toDomain() *domain.Organization {
	return &domain.Organization{
		ID:        m.ID,
		Name:      m.Name,
		Industry:  m.Industry,
		CreatedAt: m.CreatedAt,
	}
}

// OrganizationRepository は組織のデータアクセスを提供する。
type OrganizationRepository struct {
	db *gorm.DB
}

// NewOrganizationRepository は新しいOrganizationRepositoryを生成する。
func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create は新しい組織を保存する。
func (r *OrganizationRepository) Create(ctx context.Context, org *domain.Organization) error {
	model := &OrganizationModel{
		Name:     org.Name,
		Industry: org.Industry,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create organization",
			"operation", "create_organization",
			"name", org.Name,
			"error", err,
		)
		return err
	}
	org.ID = model.ID
	org.CreatedAt = model.CreatedAt
	return nil
}

// FindByID は指定されたIDの組織を取得する。存在しない場合はnilを返す。
func (r *OrganizationRepository) FindByID(ctx context.Context, id string) (*domain.Organization, error) {
	var model OrganizationModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find organization",
			"operation", "find_organization_by_id",
			"org_id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}
