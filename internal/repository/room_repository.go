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

// RoomModel はgorm用のモデル定義。
type RoomModel struct {
	ID           string    `gorm:"type:char(36);primaryKey"`
	OrgID        string    `gorm:"type:char(36);not null;index:ix_rooms_org_id"`
	Name         string    `gorm:"type:varchar(255);not null"`
	Description  string    `gorm:"type:text"`
	ParentRoomID *string   `gorm:"type:char(36);index:ix_rooms_parent_room_id"`
	CreatedBy    *string   `gorm:"type:char(36)"`
	CreatedAt    time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (RoomModel) TableName() string {
	return "rooms"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *RoomModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *RoomModel) toDomain() *domain.Room {
	parentID := ""
	if m.ParentRoomID != nil {
		parentID = *m.ParentRoomID
	}
	createdBy := ""
	if m.CreatedBy != nil {
		createdBy = *m.CreatedBy
	}
	return &domain.Room{
		ID:           m.ID,
		OrgID:        m.OrgID,
		Name:         m.Name,
		Description:  m.Description,
		ParentRoomID: parentID,
		CreatedBy:    createdBy,
		CreatedAt:    m.CreatedAt,
	}
}

// RoomKPIAssignmentModel はgorm用のモデル定義。
type RoomKPIAssignmentModel struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	RoomID     string    `gorm:"type:char(36);not null;uniqueIndex:uq_room_kpi"`
	KPIID      string    `gorm:"column:kpi_id;type:char(36);not null;uniqueIndex:uq_room_kpi"`
	AssignedBy *string   `gorm:"type:char(36)"`
	CreatedAt  time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (RoomKPIAssignmentModel) TableName() string {
	return "room_kpi_assignments"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *RoomKPIAssignmentModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// UserRoomAssignmentModel はgorm用のモデル定義。
type UserRoomAssignmentModel struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:char(36);not null;uniqueIndex:uq_user_room"`
	RoomID    string    `gorm:"type:char(36);not null;uniqueIndex:uq_user_room"`
	CreatedAt time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (UserRoomAssignmentModel) TableName() string {
	return "user_room_assignments"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *UserRoomAssignmentModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// RoomRepository はルームと割り当てのデータアクセスを提供する。
type RoomRepository struct {
	db *gorm.DB
}

// NewRoomRepository は新しいRoomRepositoryを生成する。
func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create は新しいルームを保存する。
func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	var parentID *string
	if room.ParentRoomID != "" {
		parentID = &room.ParentRoomID
	}
	var createdBy *string
	if room.CreatedBy != "" {
		createdBy = &room.CreatedBy
	}
	model := &RoomModel{
		OrgID:        room.OrgID,
		Name:         room.Name,
		Description:  room.Description,
		ParentRoomID: parentID,
		CreatedBy:    createdBy,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create room",
			"operation", "create_room",
			"org_id", room.OrgID,
			"name", room.Name,
			"error", err,
		)
		return err
	}
	room.ID = model.ID
	room.CreatedAt = model.CreatedAt
	return nil
}

// FindByID は組織スコープでルームを取得する。存在しない場合はnilを返す。
func (r *RoomRepository) FindByID(ctx context.Context, orgID, roomID string) (*domain.Room, error) {
	var model RoomModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", roomID, orgID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find room",
			"operation", "find_room_by_id",
			"org_id", orgID,
			"room_id", roomID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAllByOrgID は組織の全ルームを取得する。
func (r *RoomRepository) FindAllByOrgID(ctx context.Context, orgID string) ([]*domain.Room, error) {
	var models []RoomModel
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find rooms by org_id",
			"operation", "find_all_rooms_by_org_id",
			"org_id", orgID,
			"error", err,
		)
		return nil, err
	}

	rooms := make([]*domain.Room, len(models))
	for i, m := range models {
		rooms[i] = m.toDomain()
	}
	return rooms, nil
}

// ExistsByName は同一組織・同一親の下に同名ルームが存在するか確認する。
func (r *RoomRepository) ExistsByName(ctx context.Context, orgID, name, parentRoomID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).
		Model(&RoomModel{}).
		Where("org_id = ? AND name = ?", orgID, name)
	if parentRoomID == "" {
		query = query.Where("parent_room_id IS NULL")
	} else {
		query = query.Where("parent_room_id = ?", parentRoomID)
	}
	if err := query.Count(&count).Error; err != nil {
		slog.ErrorContext(ctx, "failed to check room name",
			"operation", "exists_room_by_name",
			"org_id", orgID,
			"name", name,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// Update はルームの名前・説明を更新する。
func (r *RoomRepository) Update(ctx context.Context, room *domain.Room) error {
	err := r.db.WithContext(ctx).
		Model(&RoomModel{}).
		Where("id = ? AND org_id = ?", room.ID, room.OrgID).
		Updates(map[string]interface{}{
			"name":        room.Name,
			"description": room.Description,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update room",
			"operation", "update_room",
			"org_id", room.OrgID,
			"room_id", room.ID,
			"error", err,
		)
		return err
	}
	return nil
}

// Delete は組織スコープでルームを削除する。サブルームと割り当ても削除する。
func (r *RoomRepository) Delete(ctx context.Context, orgID, roomID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var subIDs []string
		if err := tx.Model(&RoomModel{}).
			Where("parent_room_id = ?", roomID).
			Pluck("id", &subIDs).Error; err != nil {
			return err
		}

		ids := append(subIDs, roomID)
		if err := tx.Where("room_id IN ?", ids).Delete(&RoomKPIAssignmentModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id IN ?", ids).Delete(&UserRoomAssignmentModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ? AND org_id = ?", ids, orgID).Delete(&RoomModel{}).Error
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete room",
			"operation", "delete_room",
			"org_id", orgID,
			"room_id", roomID,
			"error", err,
		)
		return err
	}
	return nil
}

// AssignKPI はルームにKPIを割り当てる。
func (r *RoomRepository) AssignKPI(ctx context.Context, roomID, kpiID, assignedBy string) error {
	var by *string
	if assignedBy != "" {
		by = &assignedBy
	}
	model := &RoomKPIAssignmentModel{
		RoomID:     roomID,
		KPIID:      kpiID,
		AssignedBy: by,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to assign kpi to room",
			"operation", "assign_kpi",
			"room_id", roomID,
			"kpi_id", kpiID,
			"error", err,
		)
		return err
	}
	return nil
}

// UnassignKPI はルームからKPIの割り当てを外す。削除された場合はtrueを返す。
func (r *RoomRepository) UnassignKPI(ctx context.Context, roomID, kpiID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND kpi_id = ?", roomID, kpiID).
		Delete(&RoomKPIAssignmentModel{})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to unassign kpi from room",
			"operation", "unassign_kpi",
			"room_id", roomID,
			"kpi_id", kpiID,
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AssignUser はルームにユーザーを割り当てる。
func (r *RoomRepository) AssignUser(ctx context.Context, userID, roomID string) error {
	model := &UserRoomAssignmentModel{
		UserID: userID,
		RoomID: roomID,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to assign user to room",
			"operation", "assign_user",
			"user_id", userID,
			"room_id", roomID,
			"error", err,
		)
		return err
	}
	return nil
}

// FindKPIIDsByRoomID はルームに割り当てられたKPIのID一覧を取得する。
func (r *RoomRepository) FindKPIIDsByRoomID(ctx context.Context, roomID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&RoomKPIAssignmentModel{}).
		Where("room_id = ?", roomID).
		Pluck("kpi_id", &ids).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find kpi ids by room",
			"operation", "find_kpi_ids_by_room_id",
			"room_id", roomID,
			"error", err,
		)
		return nil, err
	}
	return ids, nil
}

// FindAccessibleRoomIDs はユーザーがアクセスできるルームID一覧を取得する。
// 割り当てられたルームとそのサブルームを含む。
func (r *RoomRepository) FindAccessibleRoomIDs(ctx context.Context, userID string) ([]string, error) {
	var assigned []string
	err := r.db.WithContext(ctx).
		Model(&UserRoomAssignmentModel{}).
		Where("user_id = ?", userID).
		Pluck("room_id", &assigned).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find room assignments",
			"operation", "find_accessible_room_ids",
			"user_id", userID,
			"error", err,
		)
		return nil, err
	}
	if len(assigned) == 0 {
		return nil, nil
	}

	var subRooms []string
	err = r.db.WithContext(ctx).
		Model(&RoomModel{}).
		Where("parent_room_id IN ?", assigned).
		Pluck("id", &subRooms).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find sub rooms",
			"operation", "find_accessible_room_ids",
			"user_id", userID,
			"error", err,
		)
		return nil, err
	}

	return append(assigned, subRooms...), nil
}
