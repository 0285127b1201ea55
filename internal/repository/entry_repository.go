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

// DataEntryModel はgorm用のモデル定義。
// ValuesはJSONカラムとして保存する。
type DataEntryModel struct {
	ID              string             `gorm:"type:char(36);primaryKey"`
	OrgID           string             `gorm:"type:char(36);not null;uniqueIndex:uq_data_entry_org_kpi_date;index:ix_data_entries_org_id"`
	KPIID           string             `gorm:"column:kpi_id;type:char(36);not null;uniqueIndex:uq_data_entry_org_kpi_date;index:ix_data_entries_kpi_id"`
	RoomID          *string            `gorm:"type:char(36);uniqueIndex:uq_data_entry_org_kpi_date"`
	Date            time.Time          `gorm:"type:date;not null;uniqueIndex:uq_data_entry_org_kpi_date;index:ix_data_entries_date"`
	Values          map[string]float64 `gorm:"serializer:json;not null"`
	CalculatedValue float64            `gorm:"not null"`
	EnteredBy       *string            `gorm:"type:char(36)"`
	CreatedAt       time.Time          `gorm:"type:datetime(6);not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (DataEntryModel) TableName() string {
	return "data_entries"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *DataEntryModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *DataEntryModel) toDomain() *domain.DataEntry {
	roomID := ""
	if m.RoomID != nil {
		roomID = *m.RoomID
	}
	enteredBy := ""
	if m.EnteredBy != nil {
		enteredBy = *m.EnteredBy
	}
	return &domain.DataEntry{
		ID:              m.ID,
		OrgID:           m.OrgID,
		KPIID:           m.KPIID,
		RoomID:          roomID,
		Date:            m.Date,
		Values:          m.Values,
		CalculatedValue: m.CalculatedValue,
		EnteredBy:       enteredBy,
		CreatedAt:       m.CreatedAt,
	}
}

// EntryRepository はデータエントリのデータアクセスを提供する。
type EntryRepository struct {
	db *gorm.DB
}

// NewEntryRepository は新しいEntryRepositoryを生成する。
func NewEntryRepository(db *gorm.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

func roomScope(query *gorm.DB, roomID string) *gorm.DB {
	if roomID == "" {
		return query.Where("room_id IS NULL")
	}
	return query.Where("room_id = ?", roomID)
}

// FindByKey は(org, kpi, date, room)で一意のエントリを取得する。存在しない場合はnilを返す。
func (r *EntryRepository) FindByKey(ctx context.Context, orgID, kpiID string, date time.Time, roomID string) (*domain.DataEntry, error) {
	var model DataEntryModel
	query := r.db.WithContext(ctx).
		Where("org_id = ? AND kpi_id = ? AND date = ?", orgID, kpiID, date)
	err := roomScope(query, roomID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find entry",
			"operation", "find_entry_by_key",
			"org_id", orgID,
			"kpi_id", kpiID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByID は組織スコープでエントリを取得する。存在しない場合はnilを返す。
func (r *EntryRepository) FindByID(ctx context.Context, orgID, entryID string) (*domain.DataEntry, error) {
	var model DataEntryModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", entryID, orgID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find entry by id",
			"operation", "find_entry_by_id",
			"org_id", orgID,
			"entry_id", entryID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// Create は新しいエントリを保存する。
func (r *EntryRepository) Create(ctx context.Context, entry *domain.DataEntry) error {
	var roomID *string
	if entry.RoomID != "" {
		roomID = &entry.RoomID
	}
	var enteredBy *string
	if entry.EnteredBy != "" {
		enteredBy = &entry.EnteredBy
	}
	model := &DataEntryModel{
		OrgID:           entry.OrgID,
		KPIID:           entry.KPIID,
		RoomID:          roomID,
		Date:            entry.Date,
		Values:          entry.Values,
		CalculatedValue: entry.CalculatedValue,
		EnteredBy:       enteredBy,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create entry",
			"operation", "create_entry",
			"org_id", entry.OrgID,
			"kpi_id", entry.KPIID,
			"error", err,
		)
		return err
	}
	entry.ID = model.ID
	entry.CreatedAt = model.CreatedAt
	return nil
}

// UpdateValues は既存エントリの値と計算結果を更新する（upsert用）。
func (r *EntryRepository) UpdateValues(ctx context.Context, entry *domain.DataEntry) error {
	var enteredBy *string
	if entry.EnteredBy != "" {
		enteredBy = &entry.EnteredBy
	}
	err := r.db.WithContext(ctx).
		Model(&DataEntryModel{}).
		Where("id = ?", entry.ID).
		Select("values", "calculated_value", "entered_by").
		Updates(&DataEntryModel{
			Values:          entry.Values,
			CalculatedValue: entry.CalculatedValue,
			EnteredBy:       enteredBy,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update entry values",
			"operation", "update_entry_values",
			"entry_id", entry.ID,
			"error", err,
		)
		return err
	}
	return nil
}

// Delete は組織スコープでエントリを削除する。
func (r *EntryRepository) Delete(ctx context.Context, orgID, entryID string) error {
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", entryID, orgID).
		Delete(&DataEntryModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete entry",
			"operation", "delete_entry",
			"org_id", orgID,
			"entry_id", entryID,
			"error", err,
		)
		return err
	}
	return nil
}

// FindRangeByKPI は期間内のエントリを日付の新しい順で取得する。
func (r *EntryRepository) FindRangeByKPI(ctx context.Context, orgID, kpiID string, start, end time.Time) ([]*domain.DataEntry, error) {
	var models []DataEntryModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND kpi_id = ? AND date >= ? AND date <= ?", orgID, kpiID, start, end).
		Order("date DESC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find entries in range",
			"operation", "find_range_by_kpi",
			"org_id", orgID,
			"kpi_id", kpiID,
			"error", err,
		)
		return nil, err
	}

	entries := make([]*domain.DataEntry, len(models))
	for i, m := range models {
		entries[i] = m.toDomain()
	}
	return entries, nil
}

// FindRecentByKPI は直近のエントリを日付の新しい順で最大limit件取得する。
func (r *EntryRepository) FindRecentByKPI(ctx context.Context, orgID, kpiID string, limit int) ([]*domain.DataEntry, error) {
	var models []DataEntryModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND kpi_id = ?", orgID, kpiID).
		Order("date DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find recent entries",
			"operation", "find_recent_by_kpi",
			"org_id", orgID,
			"kpi_id", kpiID,
			"error", err,
		)
		return nil, err
	}

	entries := make([]*domain.DataEntry, len(models))
	for i, m := range models {
		entries[i] = m.toDomain()
	}
	return entries, nil
}

// AllTimeRange は全期間の最大・最小の計算値を取得する。データがない場合は(nil, nil)。
func (r *EntryRepository) AllTimeRange(ctx context.Context, orgID, kpiID string) (*float64, *float64, error) {
	var result struct {
		MaxValue *float64
		MinValue *float64
	}
	err := r.db.WithContext(ctx).
		Model(&DataEntryModel{}).
		Where("org_id = ? AND kpi_id = ?", orgID, kpiID).
		Select("MAX(calculated_value) AS max_value, MIN(calculated_value) AS min_value").
		Scan(&result).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to get all-time range",
			"operation", "all_time_range",
			"org_id", orgID,
			"kpi_id", kpiID,
			"error", err,
		)
		return nil, nil, err
	}
	return result.MaxValue, result.MinValue, nil
}

// LastEntryDate は最後にデータが入力された日付を取得する。データがない場合はnil。
func (r *EntryRepository) LastEntryDate(ctx context.Context, orgID, kpiID string) (*time.Time, error) {
	var model DataEntryModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND kpi_id = ?", orgID, kpiID).
		Order("date DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find last entry date",
			"operation", "last_entry_date",
			"org_id", orgID,
			"kpi_id", kpiID,
			"error", err,
		)
		return nil, err
	}
	return &model.Date, nil
}

// CountByKPI はKPIのエントリ総数を取得する。
func (r *EntryRepository) CountByKPI(ctx context.Context, orgID, kpiID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DataEntryModel{}).
		Where("org_id = ? AND kpi_id = ?", orgID, kpiID).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count entries",
			"operation", "count_by_kpi",
			"org_id", orgID,
			"kpi_id", kpiID,
			"error", err,
		)
		return 0, err
	}
	return count, nil
}
