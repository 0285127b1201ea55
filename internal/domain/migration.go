package domain

import "time"

// MigrationStatus はスキーママイグレーションの適用状態
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration はSQLマイグレーション1件を表すドメインモデル
type Migration struct {
	Version   string          // バージョン番号（例: "001_initial_schema"の"001"）
	Name      string          // ファイル名から取り出した名前
	AppliedAt *time.Time      // 適用された日時。未適用ならnil
	FilePath  string          // SQLファイルのパス
	Status    MigrationStatus // 適用状態
}
