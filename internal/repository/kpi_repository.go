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

// KPIDefinitionModel はgorm用のモデル定義。
// InputFieldsはJSONカラムとして保存する。
type KPIDefinitionModel struct {
	ID          string     `gorm:"type:char(36);primaryKey"`
	OrgID       string     `gorm:"type:char(36);not null;index:ix_kpi_definitions_org_id"`
	Name        string     `gorm:"type:varchar(255);not null"`
	Description string     `gorm:"type:text"`
	Formula     string     `gorm:"type:varchar(500);not null"`
	InputFields []string   `gorm:"serializer:json;not null"`
	Category    string     `gorm:"type:varchar(50);not null;index:ix_kpi_definitions_category"`
	TimePeriod  string     `gorm:"type:varchar(20);not null;default:'daily'"`
	IsPreset    bool       `gorm:"not null;default:false;index:ix_kpi_definitions_is_preset"`
	IsShared    bool       `gorm:"not null;default:false"`
	CreatedBy   *string    `gorm:"type:char(36)"`
	CreatedAt   time.Time  `gorm:"type:datetime(6);not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (KPIDefinitionModel) TableName() string {
	return "kpi_definitions"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *KPIDefinitionModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *KPIDefinitionModel) toDomain() *domain.KPIDefinition {
	createdBy := ""
	if m.CreatedBy != nil {
		createdBy = *m.CreatedBy
	}
	return &domain.KPIDefinition{
		ID:          m.ID,
		OrgID:       m.OrgID,
		Name:        m.Name,
		Description: m.Description,
		Formula:     m.Formula,
		InputFields: m.InputFields,
		Category:    m.Category,
		TimePeriod:  domain.TimePeriod(m.TimePeriod),
		IsPreset:    m.IsPreset,
		IsShared:    m.IsShared,
		CreatedBy:   createdBy,
		CreatedAt:   m.CreatedAt,
	}
}

func kpiModelFromDomain(kpi *domain.KPIDefinition) *KPIDefinitionModel {
	var createdBy *string
	if kpi.CreatedBy != "" {
		createdBy = &kpi.CreatedBy
	}
	return &KPIDefinitionModel{
		ID:          kpi.ID,
		OrgID:       kpi.OrgID,
		Name:        kpi.Name,
		Description: kpi.Description,
		Formula:     kpi.Formula,
		InputFields: kpi.InputFields,
		Category:    kpi.Category,
		TimePeriod:  string(kpi.TimePeriod),
		IsPreset:    kpi.IsPreset,
		IsShared:    kpi.IsShared,
		CreatedBy:   createdBy,
	}
}

// KPIRepository はKPI定義のデータアクセスを提供する。
type KPIRepository struct {
	db *gorm.DB
}

// NewKPIRepository は新しいKPIRepositoryを生成する。
func NewKPIRepository(db *gorm.DB) *KPIRepository {
	return &KPIRepository{db: db}
}

// Create は新しいKPI定義を保存する。
func (r *KPIRepository) Create(ctx context.Context, kpi *domain.KPIDefinition) error {
	model := kpiModelFromDomain(kpi)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create kpi",
			"operation", "create_kpi",
			"org_id", kpi.OrgID,
			"name", kpi.Name,
			"error", err,
		)
		return err
	}
	kpi.ID = model.ID
	kpi.CreatedAt = model.CreatedAt
	return nil
}

// FindByID は組織スコープでKPI定義を取得する。存在しない場合はnilを返す。
func (r *KPIRepository) FindByID(ctx context.Context, orgID, kpiID string) (*domain.KPIDefinition, error) {
	var model KPIDefinitionModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", kpiID, orgID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find kpi",
			"operation", "find_kpi_by_id",
			"org_id", orgID,
			"kpi_id", kpiID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAllByOrgID は組織の全KPI定義をカテゴリ・名前順で取得する。
func (r *KPIRepository) FindAllByOrgID(ctx context.Context, orgID string) ([]*domain.KPIDefinition, error) {
	var models []KPIDefinitionModel
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("category ASC, name ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find kpis by org_id",
			"operation", "find_all_kpis_by_org_id",
			"org_id", orgID,
			"error", err,
		)
		return nil, err
	}

	kpis := make([]*domain.KPIDefinition, len(models))
	for i, m := range models {
		kpis[i] = m.toDomain()
	}
	return kpis, nil
}

// Update は既存のKPI定義を更新する。
func (r *KPIRepository) Update(ctx context.Context, kpi *domain.KPIDefinition) error {
	// JSONシリアライザを効かせるため構造体で更新し、ゼロ値も含めてSelectで指定する
	err := r.db.WithContext(ctx).
		Model(&KPIDefinitionModel{}).
		Where("id = ? AND org_id = ?", kpi.ID, kpi.OrgID).
		Select("name", "description", "formula", "input_fields", "category", "time_period", "is_shared").
		Updates(kpiModelFromDomain(kpi)).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update kpi",
			"operation", "update_kpi",
			"kpi_id", kpi.ID,
			"error", err,
		)
		return err
	}
	return nil
}

// Delete は組織スコープでKPI定義を削除する。
func (r *KPIRepository) Delete(ctx context.Context, orgID, kpiID string) error {
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", kpiID, orgID).
		Delete(&KPIDefinitionModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete kpi",
			"operation", "delete_kpi",
			"org_id", orgID,
			"kpi_id", kpiID,
			"error", err,
		)
		return err
	}
	return nil
}

// CountPresetsByOrgID は組織内のプリセットKPI数を取得する。
func (r *KPIRepository) CountPresetsByOrgID(ctx context.Context, orgID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&KPIDefinitionModel{}).
		Where("org_id = ? AND is_preset = ?", orgID, true).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count preset kpis",
			"operation", "count_presets_by_org_id",
			"org_id", orgID,
			"error", err,
		)
		return 0, err
	}
	return count, nil
}
