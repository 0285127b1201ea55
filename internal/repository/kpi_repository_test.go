package repository

import (
	"context"
	"reflect"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"metricflow/internal/domain"
)

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成する。
// MySQL固有の型はSQLite用に読み替える（CHAR/VARCHAR→TEXT、JSON→TEXT、TINYINT→INTEGER）。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sql := `
		CREATE TABLE kpi_definitions (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			formula TEXT NOT NULL,
			input_fields TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			time_period TEXT NOT NULL DEFAULT 'daily',
			is_preset INTEGER NOT NULL DEFAULT 0,
			is_shared INTEGER NOT NULL DEFAULT 0,
			created_by TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE data_entries (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			kpi_id TEXT NOT NULL,
			room_id TEXT,
			date DATETIME NOT NULL,
			"values" TEXT NOT NULL,
			calculated_value REAL NOT NULL,
			entered_by TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(org_id, kpi_id, room_id, date)
		);
		CREATE TABLE token_blacklist (
			id TEXT PRIMARY KEY,
			jti TEXT NOT NULL UNIQUE,
			token_type TEXT NOT NULL,
			user_id TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			blacklisted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE refresh_tokens (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			rotated_at DATETIME,
			is_revoked INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE insights (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			kpi_id TEXT,
			insight_text TEXT NOT NULL,
			priority TEXT NOT NULL,
			generated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`
	if err := db.Exec(sql).Error; err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}

	return db
}

func TestKPIRepository_CreateAndFindByID(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKPIRepository(db)

	kpi := &domain.KPIDefinition{
		OrgID:       "org-1",
		Name:        "Conversion Rate",
		Formula:     "(deals_closed / leads_received) * 100",
		InputFields: []string{"deals_closed", "leads_received"},
		Category:    "Sales",
		TimePeriod:  domain.TimePeriodDaily,
		IsPreset:    true,
	}
	if err := repo.Create(ctx, kpi); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if kpi.ID == "" {
		t.Fatal("expected id to be generated")
	}

	found, err := repo.FindByID(ctx, "org-1", kpi.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found == nil {
		t.Fatal("expected kpi to be found")
	}
	// JSONカラムの入力変数が往復すること
	if !reflect.DeepEqual(found.InputFields, kpi.InputFields) {
		t.Errorf("unexpected input fields: %v", found.InputFields)
	}
	if found.TimePeriod != domain.TimePeriodDaily {
		t.Errorf("expected daily, got %s", found.TimePeriod)
	}
	if !found.IsPreset {
		t.Error("expected preset flag to survive")
	}

	// 他組織からは見えないこと
	other, err := repo.FindByID(ctx, "org-2", kpi.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if other != nil {
		t.Error("kpi must not be visible to another org")
	}
}

func TestKPIRepository_FindAllByOrgID(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKPIRepository(db)

	kpis := []*domain.KPIDefinition{
		{OrgID: "org-1", Name: "Deal Size", Formula: "a / b", InputFields: []string{"a", "b"}, Category: "Sales"},
		{OrgID: "org-1", Name: "CAC", Formula: "a / b", InputFields: []string{"a", "b"}, Category: "Marketing"},
		{OrgID: "org-2", Name: "Other", Formula: "a / b", InputFields: []string{"a", "b"}, Category: "Sales"},
	}
	for _, kpi := range kpis {
		if err := repo.Create(ctx, kpi); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	found, err := repo.FindAllByOrgID(ctx, "org-1")
	if err != nil {
		t.Fatalf("FindAllByOrgID failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 kpis, got %d", len(found))
	}
	// カテゴリ・名前順
	if found[0].Name != "CAC" || found[1].Name != "Deal Size" {
		t.Errorf("unexpected order: %s, %s", found[0].Name, found[1].Name)
	}
}

func TestKPIRepository_Update(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKPIRepository(db)

	kpi := &domain.KPIDefinition{
		OrgID:       "org-1",
		Name:        "Win Rate",
		Formula:     "wins / games",
		InputFields: []string{"wins", "games"},
		Category:    "Sales",
		TimePeriod:  domain.TimePeriodDaily,
	}
	if err := repo.Create(ctx, kpi); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	kpi.Formula = "(wins / matches_played) * 100"
	kpi.InputFields = []string{"wins", "matches_played"}
	kpi.TimePeriod = domain.TimePeriodWeekly
	if err := repo.Update(ctx, kpi); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	found, err := repo.FindByID(ctx, "org-1", kpi.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.Formula != kpi.Formula {
		t.Errorf("expected formula %q, got %q", kpi.Formula, found.Formula)
	}
	if !reflect.DeepEqual(found.InputFields, []string{"wins", "matches_played"}) {
		t.Errorf("unexpected input fields: %v", found.InputFields)
	}
	if found.TimePeriod != domain.TimePeriodWeekly {
		t.Errorf("expected weekly, got %s", found.TimePeriod)
	}
}

func TestKPIRepository_Delete(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKPIRepository(db)

	kpi := &domain.KPIDefinition{
		OrgID:       "org-1",
		Name:        "Win Rate",
		Formula:     "wins / games",
		InputFields: []string{"wins", "games"},
	}
	if err := repo.Create(ctx, kpi); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.Delete(ctx, "org-1", kpi.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	found, err := repo.FindByID(ctx, "org-1", kpi.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found != nil {
		t.Error("expected kpi to be deleted")
	}
}

func TestKPIRepository_CountPresetsByOrgID(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKPIRepository(db)

	kpis := []*domain.KPIDefinition{
		{OrgID: "org-1", Name: "Preset A", Formula: "a / b", InputFields: []string{"a", "b"}, IsPreset: true},
		{OrgID: "org-1", Name: "Preset B", Formula: "a / b", InputFields: []string{"a", "b"}, IsPreset: true},
		{OrgID: "org-1", Name: "Custom", Formula: "a / b", InputFields: []string{"a", "b"}},
	}
	for _, kpi := range kpis {
		if err := repo.Create(ctx, kpi); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	count, err := repo.CountPresetsByOrgID(ctx, "org-1")
	if err != nil {
		t.Fatalf("CountPresetsByOrgID failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 presets, got %d", count)
	}
}
