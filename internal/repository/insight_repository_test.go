package repository

import (
	"context"
	"testing"

	"metricflow/internal/domain"
)

func TestInsightRepository_ReplaceForOrg(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewInsightRepository(db)

	first := []*domain.Insight{
		{OrgID: "org-1", KPIID: "kpi-1", InsightText: "old insight", Priority: domain.InsightPriorityLow},
	}
	if err := repo.ReplaceForOrg(ctx, "org-1", first); err != nil {
		t.Fatalf("ReplaceForOrg failed: %v", err)
	}
	if first[0].ID == "" {
		t.Fatal("expected id to be generated")
	}

	// 他組織のインサイトは置き換えの影響を受けない
	other := []*domain.Insight{
		{OrgID: "org-2", KPIID: "kpi-9", InsightText: "other org", Priority: domain.InsightPriorityHigh},
	}
	if err := repo.ReplaceForOrg(ctx, "org-2", other); err != nil {
		t.Fatalf("ReplaceForOrg failed: %v", err)
	}

	second := []*domain.Insight{
		{OrgID: "org-1", KPIID: "kpi-1", InsightText: "new insight", Priority: domain.InsightPriorityHigh},
		{OrgID: "org-1", KPIID: "kpi-2", InsightText: "another insight", Priority: domain.InsightPriorityMedium},
	}
	if err := repo.ReplaceForOrg(ctx, "org-1", second); err != nil {
		t.Fatalf("ReplaceForOrg failed: %v", err)
	}

	found, err := repo.FindAllByOrgID(ctx, "org-1")
	if err != nil {
		t.Fatalf("FindAllByOrgID failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 insights after replace, got %d", len(found))
	}
	for _, insight := range found {
		if insight.InsightText == "old insight" {
			t.Error("expected old insights to be replaced")
		}
	}

	otherFound, err := repo.FindAllByOrgID(ctx, "org-2")
	if err != nil {
		t.Fatalf("FindAllByOrgID failed: %v", err)
	}
	if len(otherFound) != 1 {
		t.Errorf("expected other org insights to survive, got %d", len(otherFound))
	}
}

func TestInsightRepository_ReplaceForOrg_Empty(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewInsightRepository(db)

	seed := []*domain.Insight{
		{OrgID: "org-1", KPIID: "kpi-1", InsightText: "seed", Priority: domain.InsightPriorityLow},
	}
	if err := repo.ReplaceForOrg(ctx, "org-1", seed); err != nil {
		t.Fatalf("ReplaceForOrg failed: %v", err)
	}

	// 空で置き換えると全件削除になる
	if err := repo.ReplaceForOrg(ctx, "org-1", nil); err != nil {
		t.Fatalf("ReplaceForOrg failed: %v", err)
	}

	found, err := repo.FindAllByOrgID(ctx, "org-1")
	if err != nil {
		t.Fatalf("FindAllByOrgID failed: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected no insights, got %d", len(found))
	}
}
