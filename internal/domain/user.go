// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// Role はユーザーの権限区分を表す。
type Role string

const (
	// RoleAdmin は組織全体を管理できるユーザーを表す。
	RoleAdmin Role = "admin"
	// RoleRoomAdmin は割り当てられたルームのみ管理できるユーザーを表す。
	RoleRoomAdmin Role = "room_admin"
)

// Organization は組織エンティティを表す。
type Organization struct {
	ID        string
	Name      string
	Industry  string
	CreatedAt time.Time
}

// User はユーザーエンティティを表す。
type User struct {
	ID           string
	OrgID        string
	Email        string
	PasswordHash string
	Name         string
	Role         Role
	RoleLabel    string
	CreatedAt    time.Time
}

// IsAdmin は組織管理者かどうかを返す。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
