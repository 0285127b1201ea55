package domain

import "errors"

var (
	// ErrUserNotFound は指定されたユーザーが存在しない場合のエラー。
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailAlreadyExists はメールアドレスが既に登録されている場合のエラー。
	ErrEmailAlreadyExists = errors.New("email already registered")

	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しない場合のエラー。
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrWeakPassword はパスワードが強度要件を満たさない場合のエラー。
	ErrWeakPassword = errors.New("password does not meet strength requirements")

	// ErrOrganizationNotFound は組織が存在しない場合のエラー。
	ErrOrganizationNotFound = errors.New("organization not found")

	// ErrInvalidToken はトークンが不正・期限切れの場合のエラー。
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrTokenRevoked はトークンが失効済みの場合のエラー。
	ErrTokenRevoked = errors.New("token has been revoked")

	// ErrKPINotFound は指定されたKPIが存在しない場合のエラー。
	ErrKPINotFound = errors.New("kpi not found")

	// ErrEntryNotFound は指定されたデータエントリが存在しない場合のエラー。
	ErrEntryNotFound = errors.New("entry not found")

	// ErrPresetImmutable はプリセットKPIを変更しようとした場合のエラー。
	ErrPresetImmutable = errors.New("preset kpis cannot be modified")

	// ErrInvalidFormula は計算式の検証に失敗した場合のエラー。
	ErrInvalidFormula = errors.New("invalid formula")

	// ErrRoomNotFound は指定されたルームが存在しない場合のエラー。
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomAccessDenied はルームへのアクセス権がない場合のエラー。
	ErrRoomAccessDenied = errors.New("room access denied")

	// ErrDuplicateRoom は同名のルームが既に存在する場合のエラー。
	ErrDuplicateRoom = errors.New("room already exists")

	// ErrAdminRequired は管理者権限が必要な操作のエラー。
	ErrAdminRequired = errors.New("admin access required")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
