package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"metricflow/internal/domain"
)

// mockInsightRepository はテスト用のモックリポジトリ。
type mockInsightRepository struct {
	replaceErr    error
	findAllResult []*domain.Insight
	findAllErr    error
	replaced      []*domain.Insight
}

func (m *mockInsightRepository) ReplaceForOrg(ctx context.Context, orgID string, insights []*domain.Insight) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaced = insights
	return nil
}

func (m *mockInsightRepository) FindAllByOrgID(ctx context.Context, orgID string) ([]*domain.Insight, error) {
	return m.findAllResult, m.findAllErr
}

func setupInsightService(insightRepo *mockInsightRepository, kpiRepo *mockKPIRepository, entryRepo *mockEntryRepository) *InsightService {
	statsSvc := NewStatisticsService(kpiRepo, entryRepo)
	return NewInsightService(insightRepo, kpiRepo, entryRepo, statsSvc)
}

func TestInsightService_GenerateInsights(t *testing.T) {
	ctx := context.Background()
	kpi := testConversionKPI()
	today := time.Now().UTC().Truncate(24 * time.Hour)
	insightRepo := &mockInsightRepository{}
	kpiRepo := &mockKPIRepository{
		findAllResult:  []*domain.KPIDefinition{kpi},
		findByIDResult: kpi,
	}
	entryRepo := &mockEntryRepository{
		findRangeResult:  entriesWithValues(50, 40, 30, 20, 10),
		findRecentResult: entriesWithValues(50, 40, 30, 20, 10),
		allTimeHigh:      ptr(50),
		allTimeLow:       ptr(10),
		lastEntryDate:    &today,
	}
	service := setupInsightService(insightRepo, kpiRepo, entryRepo)

	insights, err := service.GenerateInsights(ctx, "org-1")
	if err != nil {
		t.Fatalf("GenerateInsights failed: %v", err)
	}

	// 平均乖離 + 連続増加 + 過去最高の3件が生成される
	if len(insights) != 3 {
		t.Fatalf("expected 3 insights, got %d: %+v", len(insights), insights)
	}

	texts := make([]string, len(insights))
	for i, insight := range insights {
		texts[i] = insight.InsightText
	}
	joined := strings.Join(texts, "\n")

	if !strings.Contains(joined, "Conversion Rate is 66.7% above your 30-day average") {
		t.Errorf("missing deviation insight in: %s", joined)
	}
	if !strings.Contains(joined, "Conversion Rate has been trending up for 5 consecutive entries") {
		t.Errorf("missing trend insight in: %s", joined)
	}
	if !strings.Contains(joined, "Conversion Rate hit an all-time high of 50") {
		t.Errorf("missing record insight in: %s", joined)
	}

	if len(insightRepo.replaced) != 3 {
		t.Errorf("expected insights to replace stored ones, got %d", len(insightRepo.replaced))
	}
}

func TestInsightService_GenerateInsights_NoDataYet(t *testing.T) {
	ctx := context.Background()
	kpi := testConversionKPI()
	insightRepo := &mockInsightRepository{}
	kpiRepo := &mockKPIRepository{
		findAllResult:  []*domain.KPIDefinition{kpi},
		findByIDResult: kpi,
	}
	service := setupInsightService(insightRepo, kpiRepo, &mockEntryRepository{})

	insights, err := service.GenerateInsights(ctx, "org-1")
	if err != nil {
		t.Fatalf("GenerateInsights failed: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(insights))
	}
	if insights[0].InsightText != "Start tracking Conversion Rate by entering your first data point" {
		t.Errorf("unexpected text: %s", insights[0].InsightText)
	}
	if insights[0].Priority != domain.InsightPriorityLow {
		t.Errorf("expected low priority, got %s", insights[0].Priority)
	}
}

func TestInsightService_GenerateInsights_MissingData(t *testing.T) {
	ctx := context.Background()
	kpi := testConversionKPI()
	lastDate := time.Now().UTC().AddDate(0, 0, -5)
	insightRepo := &mockInsightRepository{}
	kpiRepo := &mockKPIRepository{
		findAllResult:  []*domain.KPIDefinition{kpi},
		findByIDResult: kpi,
	}
	// 期間内のデータはないが過去データはある
	entryRepo := &mockEntryRepository{
		countResult:   12,
		lastEntryDate: &lastDate,
	}
	service := setupInsightService(insightRepo, kpiRepo, entryRepo)

	insights, err := service.GenerateInsights(ctx, "org-1")
	if err != nil {
		t.Fatalf("GenerateInsights failed: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(insights))
	}
	if insights[0].InsightText != "You haven't entered data for Conversion Rate in 5 days" {
		t.Errorf("unexpected text: %s", insights[0].InsightText)
	}
	if insights[0].Priority != domain.InsightPriorityMedium {
		t.Errorf("expected medium priority, got %s", insights[0].Priority)
	}
}

func TestInsightService_GetCachedInsights(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	insightRepo := &mockInsightRepository{
		findAllResult: []*domain.Insight{
			{ID: "i-1", Priority: domain.InsightPriorityLow, GeneratedAt: now.Add(-1 * time.Hour)},
			{ID: "i-2", Priority: domain.InsightPriorityHigh, GeneratedAt: now.Add(-1 * time.Hour)},
			{ID: "i-3", Priority: domain.InsightPriorityMedium, GeneratedAt: now.Add(-2 * time.Hour)},
		},
	}
	service := setupInsightService(insightRepo, &mockKPIRepository{}, &mockEntryRepository{})

	list, err := service.GetCachedInsights(ctx, "org-1")
	if err != nil {
		t.Fatalf("GetCachedInsights failed: %v", err)
	}

	if list.NeedsRefresh {
		t.Error("fresh insights must not need refresh")
	}
	// 優先度順（high → medium → low）
	if list.Insights[0].ID != "i-2" || list.Insights[1].ID != "i-3" || list.Insights[2].ID != "i-1" {
		t.Errorf("unexpected order: %s, %s, %s", list.Insights[0].ID, list.Insights[1].ID, list.Insights[2].ID)
	}
}

func TestInsightService_GetCachedInsights_Stale(t *testing.T) {
	ctx := context.Background()
	insightRepo := &mockInsightRepository{
		findAllResult: []*domain.Insight{
			{ID: "i-1", Priority: domain.InsightPriorityLow, GeneratedAt: time.Now().UTC().Add(-25 * time.Hour)},
		},
	}
	service := setupInsightService(insightRepo, &mockKPIRepository{}, &mockEntryRepository{})

	list, err := service.GetCachedInsights(ctx, "org-1")
	if err != nil {
		t.Fatalf("GetCachedInsights failed: %v", err)
	}
	if !list.NeedsRefresh {
		t.Error("insights older than 24h must need refresh")
	}
}

func TestInsightService_GetCachedInsights_Empty(t *testing.T) {
	ctx := context.Background()
	service := setupInsightService(&mockInsightRepository{}, &mockKPIRepository{}, &mockEntryRepository{})

	list, err := service.GetCachedInsights(ctx, "org-1")
	if err != nil {
		t.Fatalf("GetCachedInsights failed: %v", err)
	}
	if !list.NeedsRefresh {
		t.Error("empty cache must need refresh")
	}
	if len(list.Insights) != 0 {
		t.Errorf("expected no insights, got %d", len(list.Insights))
	}
}

func TestCheckDeviationFromAverage(t *testing.T) {
	kpi := testConversionKPI()

	// 20%未満の乖離は対象外
	if insight := checkDeviationFromAverage("org-1", kpi, 110, 100); insight != nil {
		t.Errorf("expected nil for small deviation, got %+v", insight)
	}
	// 平均0は対象外
	if insight := checkDeviationFromAverage("org-1", kpi, 50, 0); insight != nil {
		t.Errorf("expected nil for zero mean, got %+v", insight)
	}

	// 25%上はmedium
	insight := checkDeviationFromAverage("org-1", kpi, 125, 100)
	if insight == nil {
		t.Fatal("expected deviation insight")
	}
	if insight.InsightText != "Conversion Rate is 25.0% above your 30-day average" {
		t.Errorf("unexpected text: %s", insight.InsightText)
	}
	if insight.Priority != domain.InsightPriorityMedium {
		t.Errorf("expected medium priority, got %s", insight.Priority)
	}

	// 35%下はhigh
	insight = checkDeviationFromAverage("org-1", kpi, 65, 100)
	if insight == nil {
		t.Fatal("expected deviation insight")
	}
	if insight.InsightText != "Conversion Rate is 35.0% below your 30-day average" {
		t.Errorf("unexpected text: %s", insight.InsightText)
	}
	if insight.Priority != domain.InsightPriorityHigh {
		t.Errorf("expected high priority, got %s", insight.Priority)
	}
}

func TestCheckConsecutiveTrend(t *testing.T) {
	kpi := testConversionKPI()

	// 3連続では足りない
	if insight := checkConsecutiveTrend("org-1", kpi, []float64{30, 20, 10}); insight != nil {
		t.Errorf("expected nil for 3 consecutive, got %+v", insight)
	}

	// 4連続増加はlow
	insight := checkConsecutiveTrend("org-1", kpi, []float64{40, 30, 20, 10})
	if insight == nil {
		t.Fatal("expected trend insight")
	}
	if insight.InsightText != "Conversion Rate has been trending up for 4 consecutive entries" {
		t.Errorf("unexpected text: %s", insight.InsightText)
	}
	if insight.Priority != domain.InsightPriorityLow {
		t.Errorf("expected low priority, got %s", insight.Priority)
	}

	// 4連続減少はmedium
	insight = checkConsecutiveTrend("org-1", kpi, []float64{10, 20, 30, 40})
	if insight == nil {
		t.Fatal("expected trend insight")
	}
	if insight.InsightText != "Conversion Rate has been trending down for 4 consecutive entries" {
		t.Errorf("unexpected text: %s", insight.InsightText)
	}
	if insight.Priority != domain.InsightPriorityMedium {
		t.Errorf("expected medium priority, got %s", insight.Priority)
	}
}

func TestCheckAllTimeRecord(t *testing.T) {
	kpi := testConversionKPI()

	if insight := checkAllTimeRecord("org-1", kpi, 30, ptr(50), ptr(10)); insight != nil {
		t.Errorf("expected nil within range, got %+v", insight)
	}

	insight := checkAllTimeRecord("org-1", kpi, 55.126, ptr(50), ptr(10))
	if insight == nil {
		t.Fatal("expected record insight")
	}
	if insight.InsightText != "Conversion Rate hit an all-time high of 55.13" {
		t.Errorf("unexpected text: %s", insight.InsightText)
	}
	if insight.Priority != domain.InsightPriorityHigh {
		t.Errorf("expected high priority, got %s", insight.Priority)
	}

	insight = checkAllTimeRecord("org-1", kpi, 5, ptr(50), ptr(10))
	if insight == nil {
		t.Fatal("expected record insight")
	}
	if insight.InsightText != "Conversion Rate hit an all-time low of 5" {
		t.Errorf("unexpected text: %s", insight.InsightText)
	}
}

func TestCheckAnomaly(t *testing.T) {
	kpi := testConversionKPI()

	if insight := checkAnomaly("org-1", kpi, 55, 50, ptr(10)); insight != nil {
		t.Errorf("expected nil for normal value, got %+v", insight)
	}

	insight := checkAnomaly("org-1", kpi, 70, 50, ptr(10))
	if insight == nil {
		t.Fatal("expected anomaly insight")
	}
	if insight.InsightText != "Conversion Rate is outside normal range - significantly higher than usual (2 std devs)" {
		t.Errorf("unexpected text: %s", insight.InsightText)
	}
	if insight.Priority != domain.InsightPriorityHigh {
		t.Errorf("expected high priority, got %s", insight.Priority)
	}
}
