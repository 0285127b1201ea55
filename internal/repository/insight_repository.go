package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"metricflow/internal/domain"
)

// InsightModel はgorm用のモデル定義。
type InsightModel struct {
	ID          string    `gorm:"type:char(36);primaryKey"`
	OrgID       string    `gorm:"type:char(36);not null;index:ix_insights_org_id"`
	KPIID       *string   `gorm:"column:kpi_id;type:char(36);index:ix_insights_kpi_id"`
	InsightText string    `gorm:"type:text;not null"`
	Priority    string    `gorm:"type:varchar(20);not null;index:ix_insights_priority"`
	GeneratedAt time.Time `gorm:"type:datetime(6);not null;autoCreateTime;index:ix_insights_generated_at"`
}

// TableName はテーブル名を返す。
func (InsightModel) TableName() string {
	return "insights"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *InsightModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *InsightModel) toDomain() *domain.Insight {
	kpiID := ""
	if m.KPIID != nil {
		kpiID = *m.KPIID
	}
	return &domain.Insight{
		ID:          m.ID,
		OrgID:       m.OrgID,
		KPIID:       kpiID,
		InsightText: m.InsightText,
		Priority:    domain.InsightPriority(m.Priority),
		GeneratedAt: m.GeneratedAt,
	}
}

// InsightRepository はインサイトのデータアクセスを提供する。
type InsightRepository struct {
	db *gorm.DB
}

// NewInsightRepository は新しいInsightRepositoryを生成する。
func NewInsightRepository(db *gorm.DB) *InsightRepository {
	return &InsightRepository{db: db}
}

// ReplaceForOrg は組織の既存インサイトを削除し、新しいインサイトを保存する。
// 生成処理の置き換えセマンティクスを1トランザクションで実行する。
func (r *InsightRepository) ReplaceForOrg(ctx context.Context, orgID string, insights []*domain.Insight) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("org_id = ?", orgID).Delete(&InsightModel{}).Error; err != nil {
			return err
		}
		for _, insight := range insights {
			var kpiID *string
			if insight.KPIID != "" {
				id := insight.KPIID
				kpiID = &id
			}
			model := &InsightModel{
				OrgID:       insight.OrgID,
				KPIID:       kpiID,
				InsightText: insight.InsightText,
				Priority:    string(insight.Priority),
			}
			if err := tx.Create(model).Error; err != nil {
				return err
			}
			insight.ID = model.ID
			insight.GeneratedAt = model.GeneratedAt
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to replace insights",
			"operation", "replace_insights_for_org",
			"org_id", orgID,
			"error", err,
		)
		return err
	}
	return nil
}

// FindAllByOrgID は組織の全インサイトを取得する。
func (r *InsightRepository) FindAllByOrgID(ctx context.Context, orgID string) ([]*domain.Insight, error) {
	var models []InsightModel
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("generated_at DESC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find insights",
			"operation", "find_all_insights_by_org_id",
			"org_id", orgID,
			"error", err,
		)
		return nil, err
	}

	insights := make([]*domain.Insight, len(models))
	for i, m := range models {
		insights[i] = m.toDomain()
	}
	return insights, nil
}
