package domain

import "time"

// Room はKPIを部門・セクション単位で整理するルームを表す。
// ParentRoomIDを持つ場合はサブルーム（1階層のみ）。
type Room struct {
	ID           string
	OrgID        string
	Name         string
	Description  string
	ParentRoomID string
	CreatedBy    string
	CreatedAt    time.Time
}

// RoomKPIAssignment はルームへのKPI割り当てを表す。
type RoomKPIAssignment struct {
	ID         string
	RoomID     string
	KPIID      string
	AssignedBy string
	CreatedAt  time.Time
}

// UserRoomAssignment はルームへのユーザー割り当てを表す。
type UserRoomAssignment struct {
	ID        string
	UserID    string
	RoomID    string
	CreatedAt time.Time
}
