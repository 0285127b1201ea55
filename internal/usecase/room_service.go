package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"metricflow/internal/domain"
)

// RoomRepository はルームと割り当てのデータアクセスのインターフェース。
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	FindByID(ctx context.Context, orgID, roomID string) (*domain.Room, error)
	FindAllByOrgID(ctx context.Context, orgID string) ([]*domain.Room, error)
	ExistsByName(ctx context.Context, orgID, name, parentRoomID string) (bool, error)
	Update(ctx context.Context, room *domain.Room) error
	Delete(ctx context.Context, orgID, roomID string) error
	AssignKPI(ctx context.Context, roomID, kpiID, assignedBy string) error
	UnassignKPI(ctx context.Context, roomID, kpiID string) (bool, error)
	AssignUser(ctx context.Context, userID, roomID string) error
	FindKPIIDsByRoomID(ctx context.Context, roomID string) ([]string, error)
	FindAccessibleRoomIDs(ctx context.Context, userID string) ([]string, error)
}

// RoomCreateInput はルーム作成の入力。
type RoomCreateInput struct {
	Name         string
	Description  string
	ParentRoomID string
}

// RoomUpdateInput はルーム更新の入力。nilのフィールドは変更しない。
type RoomUpdateInput struct {
	Name        *string
	Description *string
}

// RoomService はルーム管理のビジネスロジックを提供する。
type RoomService struct {
	roomRepo RoomRepository
	kpiRepo  KPIRepository
	userRepo UserRepository
}

// NewRoomService は新しいRoomServiceを生成する。
func NewRoomService(roomRepo RoomRepository, kpiRepo KPIRepository, userRepo UserRepository) *RoomService {
	return &RoomService{
		roomRepo: roomRepo,
		kpiRepo:  kpiRepo,
		userRepo: userRepo,
	}
}

// CreateRoom は新しいルームを作成する。
// 同一階層に同名ルームは作成できない。サブルームは1階層まで。
func (s *RoomService) CreateRoom(ctx context.Context, orgID string, creator *domain.User, input RoomCreateInput) (*domain.Room, error) {
	if !creator.IsAdmin() {
		return nil, domain.ErrAdminRequired
	}

	if input.ParentRoomID != "" {
		parent, err := s.roomRepo.FindByID(ctx, orgID, input.ParentRoomID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, domain.ErrRoomNotFound
		}
		if parent.ParentRoomID != "" {
			return nil, fmt.Errorf("%w: sub-rooms cannot have sub-rooms", domain.ErrDuplicateRoom)
		}
	}

	exists, err := s.roomRepo.ExistsByName(ctx, orgID, input.Name, input.ParentRoomID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateRoom
	}

	room := &domain.Room{
		OrgID:        orgID,
		Name:         input.Name,
		Description:  input.Description,
		ParentRoomID: input.ParentRoomID,
		CreatedBy:    creator.ID,
	}
	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "room created",
		"org_id", orgID,
		"room_id", room.ID,
		"name", room.Name,
	)
	return room, nil
}

// ListRooms はユーザーがアクセス可能なルーム一覧を返す。
// 管理者は組織の全ルーム、ルーム管理者は割り当てルームとそのサブルームのみ。
func (s *RoomService) ListRooms(ctx context.Context, orgID string, user *domain.User) ([]*domain.Room, error) {
	rooms, err := s.roomRepo.FindAllByOrgID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin() {
		return rooms, nil
	}

	accessibleIDs, err := s.roomRepo.FindAccessibleRoomIDs(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	accessible := make(map[string]bool, len(accessibleIDs))
	for _, id := range accessibleIDs {
		accessible[id] = true
	}

	filtered := make([]*domain.Room, 0, len(rooms))
	for _, room := range rooms {
		if accessible[room.ID] {
			filtered = append(filtered, room)
		}
	}
	return filtered, nil
}

// GetRoom はルームを取得する。アクセス権がない場合はエラー。
func (s *RoomService) GetRoom(ctx context.Context, orgID, roomID string, user *domain.User) (*domain.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, orgID, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, domain.ErrRoomNotFound
	}

	if err := s.checkAccess(ctx, roomID, user); err != nil {
		return nil, err
	}
	return room, nil
}

// UpdateRoom はルームの名前・説明を更新する。管理者のみ。
// 名前を変更する場合は同一階層での重複を確認する。
func (s *RoomService) UpdateRoom(ctx context.Context, orgID, roomID string, user *domain.User, input RoomUpdateInput) (*domain.Room, error) {
	if !user.IsAdmin() {
		return nil, domain.ErrAdminRequired
	}

	room, err := s.roomRepo.FindByID(ctx, orgID, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, domain.ErrRoomNotFound
	}

	if input.Name != nil && *input.Name != room.Name {
		exists, err := s.roomRepo.ExistsByName(ctx, orgID, *input.Name, room.ParentRoomID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrDuplicateRoom
		}
		room.Name = *input.Name
	}
	if input.Description != nil {
		room.Description = *input.Description
	}

	if err := s.roomRepo.Update(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// DeleteRoom はルームをサブルームと割り当てごと削除する。管理者のみ。
func (s *RoomService) DeleteRoom(ctx context.Context, orgID, roomID string, user *domain.User) error {
	if !user.IsAdmin() {
		return domain.ErrAdminRequired
	}

	room, err := s.roomRepo.FindByID(ctx, orgID, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return domain.ErrRoomNotFound
	}
	return s.roomRepo.Delete(ctx, orgID, roomID)
}

// AssignKPI はルームにKPIを割り当てる。管理者のみ。
func (s *RoomService) AssignKPI(ctx context.Context, orgID, roomID, kpiID string, user *domain.User) error {
	if !user.IsAdmin() {
		return domain.ErrAdminRequired
	}

	room, err := s.roomRepo.FindByID(ctx, orgID, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return domain.ErrRoomNotFound
	}

	kpi, err := s.kpiRepo.FindByID(ctx, orgID, kpiID)
	if err != nil {
		return err
	}
	if kpi == nil {
		return domain.ErrKPINotFound
	}
	return s.roomRepo.AssignKPI(ctx, roomID, kpiID, user.ID)
}

// UnassignKPI はルームからKPIの割り当てを外す。
// 管理者は全ルーム、ルーム管理者はアクセス可能なルームのみ。
func (s *RoomService) UnassignKPI(ctx context.Context, orgID, roomID, kpiID string, user *domain.User) error {
	room, err := s.roomRepo.FindByID(ctx, orgID, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return domain.ErrRoomNotFound
	}
	if err := s.checkAccess(ctx, roomID, user); err != nil {
		return err
	}

	removed, err := s.roomRepo.UnassignKPI(ctx, roomID, kpiID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: kpi not assigned to this room", domain.ErrKPINotFound)
	}
	return nil
}

// AssignUser はルームにユーザーを割り当てる。管理者のみ。
func (s *RoomService) AssignUser(ctx context.Context, orgID, roomID, userID string, actor *domain.User) error {
	if !actor.IsAdmin() {
		return domain.ErrAdminRequired
	}

	room, err := s.roomRepo.FindByID(ctx, orgID, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return domain.ErrRoomNotFound
	}

	target, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if target == nil || target.OrgID != orgID {
		return domain.ErrUserNotFound
	}
	return s.roomRepo.AssignUser(ctx, userID, roomID)
}

// ListRoomKPIs はルームに割り当てられたKPI定義一覧を返す。
func (s *RoomService) ListRoomKPIs(ctx context.Context, orgID, roomID string, user *domain.User) ([]*domain.KPIDefinition, error) {
	room, err := s.roomRepo.FindByID(ctx, orgID, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, domain.ErrRoomNotFound
	}
	if err := s.checkAccess(ctx, roomID, user); err != nil {
		return nil, err
	}

	kpiIDs, err := s.roomRepo.FindKPIIDsByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	kpis := make([]*domain.KPIDefinition, 0, len(kpiIDs))
	for _, id := range kpiIDs {
		kpi, err := s.kpiRepo.FindByID(ctx, orgID, id)
		if err != nil {
			return nil, err
		}
		if kpi != nil {
			kpis = append(kpis, kpi)
		}
	}
	return kpis, nil
}

// checkAccess はユーザーのルームアクセス権を確認する。
func (s *RoomService) checkAccess(ctx context.Context, roomID string, user *domain.User) error {
	if user.IsAdmin() {
		return nil
	}

	accessibleIDs, err := s.roomRepo.FindAccessibleRoomIDs(ctx, user.ID)
	if err != nil {
		return err
	}
	for _, id := range accessibleIDs {
		if id == roomID {
			return nil
		}
	}
	return domain.ErrRoomAccessDenied
}
