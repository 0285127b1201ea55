package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"metricflow/internal/domain"
)

// インサイト生成のしきい値。
const (
	deviationThreshold   = 0.20 // 30日平均からの乖離率
	consecutiveTrendDays = 4    // 連続傾向とみなすエントリ数
	missingDataDays      = 3    // データ未入力とみなす日数
	insightMaxAgeHours   = 24   // キャッシュの鮮度
)

// InsightRepository はインサイトのデータアクセスのインターフェース。
type InsightRepository interface {
	ReplaceForOrg(ctx context.Context, orgID string, insights []*domain.Insight) error
	FindAllByOrgID(ctx context.Context, orgID string) ([]*domain.Insight, error)
}

// InsightList はキャッシュされたインサイト一覧と鮮度情報。
type InsightList struct {
	Insights     []*domain.Insight
	NeedsRefresh bool
}

// InsightService はルールベースのインサイト生成を提供する。
type InsightService struct {
	insightRepo InsightRepository
	kpiRepo     KPIRepository
	entryRepo   EntryRepository
	statsSvc    *StatisticsService
}

// NewInsightService は新しいInsightServiceを生成する。
func NewInsightService(insightRepo InsightRepository, kpiRepo KPIRepository, entryRepo EntryRepository, statsSvc *StatisticsService) *InsightService {
	return &InsightService{
		insightRepo: insightRepo,
		kpiRepo:     kpiRepo,
		entryRepo:   entryRepo,
		statsSvc:    statsSvc,
	}
}

// GenerateInsights は組織の全KPIを分析し、既存インサイトを置き換える。
func (s *InsightService) GenerateInsights(ctx context.Context, orgID string) ([]*domain.Insight, error) {
	kpis, err := s.kpiRepo.FindAllByOrgID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	var insights []*domain.Insight
	for _, kpi := range kpis {
		kpiInsights, err := s.analyzeKPI(ctx, orgID, kpi)
		if err != nil {
			return nil, err
		}
		insights = append(insights, kpiInsights...)
	}

	if err := s.insightRepo.ReplaceForOrg(ctx, orgID, insights); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "insights generated",
		"org_id", orgID,
		"count", len(insights),
	)
	return insights, nil
}

// GetCachedInsights は保存済みインサイトを優先度順で返す。
// 最も古いインサイトが24時間を超えていれば要再生成フラグを立てる。
func (s *InsightService) GetCachedInsights(ctx context.Context, orgID string) (*InsightList, error) {
	insights, err := s.insightRepo.FindAllByOrgID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if len(insights) == 0 {
		return &InsightList{NeedsRefresh: true}, nil
	}

	oldest := insights[0].GeneratedAt
	for _, insight := range insights {
		if insight.GeneratedAt.Before(oldest) {
			oldest = insight.GeneratedAt
		}
	}
	needsRefresh := time.Since(oldest) > insightMaxAgeHours*time.Hour

	sort.SliceStable(insights, func(i, j int) bool {
		if insights[i].Priority.Rank() != insights[j].Priority.Rank() {
			return insights[i].Priority.Rank() < insights[j].Priority.Rank()
		}
		return insights[i].GeneratedAt.Before(insights[j].GeneratedAt)
	})

	return &InsightList{Insights: insights, NeedsRefresh: needsRefresh}, nil
}

// analyzeKPI は単一KPIを分析し、該当するインサイトを生成する。
func (s *InsightService) analyzeKPI(ctx context.Context, orgID string, kpi *domain.KPIDefinition) ([]*domain.Insight, error) {
	stats, err := s.statsSvc.CalculateStats(ctx, orgID, kpi.ID, 30)
	if err != nil {
		return nil, err
	}

	if stats.DataPoints == 0 {
		count, err := s.entryRepo.CountByKPI(ctx, orgID, kpi.ID)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return []*domain.Insight{{
				OrgID:       orgID,
				KPIID:       kpi.ID,
				InsightText: fmt.Sprintf("Start tracking %s by entering your first data point", kpi.Name),
				Priority:    domain.InsightPriorityLow,
			}}, nil
		}
		// 期間内のデータはないが過去データはある。未入力チェックのみ行う。
		return s.checkMissingData(ctx, orgID, kpi)
	}

	var insights []*domain.Insight

	if insight := checkDeviationFromAverage(orgID, kpi, *stats.CurrentValue, *stats.Mean); insight != nil {
		insights = append(insights, insight)
	}

	entries, err := s.entryRepo.FindRecentByKPI(ctx, orgID, kpi.ID, 10)
	if err != nil {
		return nil, err
	}
	if len(entries) >= consecutiveTrendDays {
		values := make([]float64, len(entries))
		for i, e := range entries {
			values[i] = e.CalculatedValue
		}
		if insight := checkConsecutiveTrend(orgID, kpi, values); insight != nil {
			insights = append(insights, insight)
		}
	}

	if insight := checkAllTimeRecord(orgID, kpi, *stats.CurrentValue, stats.AllTimeHigh, stats.AllTimeLow); insight != nil {
		insights = append(insights, insight)
	}

	if insight := checkAnomaly(orgID, kpi, *stats.CurrentValue, *stats.Mean, stats.StdDev); insight != nil {
		insights = append(insights, insight)
	}

	missing, err := s.checkMissingData(ctx, orgID, kpi)
	if err != nil {
		return nil, err
	}
	insights = append(insights, missing...)

	return insights, nil
}

// checkMissingData は最終入力日からの経過日数を確認する。
func (s *InsightService) checkMissingData(ctx context.Context, orgID string, kpi *domain.KPIDefinition) ([]*domain.Insight, error) {
	lastDate, err := s.entryRepo.LastEntryDate(ctx, orgID, kpi.ID)
	if err != nil {
		return nil, err
	}
	if lastDate == nil {
		return []*domain.Insight{{
			OrgID:       orgID,
			KPIID:       kpi.ID,
			InsightText: fmt.Sprintf("No data has been entered for %s yet", kpi.Name),
			Priority:    domain.InsightPriorityLow,
		}}, nil
	}

	daysSince := int(time.Now().UTC().Truncate(24 * time.Hour).Sub(lastDate.Truncate(24*time.Hour)).Hours() / 24)
	if daysSince >= missingDataDays {
		return []*domain.Insight{{
			OrgID:       orgID,
			KPIID:       kpi.ID,
			InsightText: fmt.Sprintf("You haven't entered data for %s in %d days", kpi.Name, daysSince),
			Priority:    domain.InsightPriorityMedium,
		}}, nil
	}
	return nil, nil
}

// checkDeviationFromAverage は30日平均からの乖離を確認する。
// 乖離率30%未満はmedium、30%以上はhigh。
func checkDeviationFromAverage(orgID string, kpi *domain.KPIDefinition, currentValue, meanValue float64) *domain.Insight {
	if meanValue == 0 {
		return nil
	}

	deviation := (currentValue - meanValue) / math.Abs(meanValue)
	if math.Abs(deviation) < deviationThreshold {
		return nil
	}

	direction := "above"
	if deviation < 0 {
		direction = "below"
	}
	percentage := math.Abs(math.Round(deviation*1000) / 10)

	priority := domain.InsightPriorityMedium
	if percentage >= 30 {
		priority = domain.InsightPriorityHigh
	}
	return &domain.Insight{
		OrgID:       orgID,
		KPIID:       kpi.ID,
		InsightText: fmt.Sprintf("%s is %.1f%% %s your 30-day average", kpi.Name, percentage, direction),
		Priority:    priority,
	}
}

// checkConsecutiveTrend は連続した増加/減少傾向を確認する。
func checkConsecutiveTrend(orgID string, kpi *domain.KPIDefinition, values []float64) *domain.Insight {
	trend := CalculateTrend(values)

	if trend.Direction == domain.TrendIncreasing && trend.ConsecutiveCount >= consecutiveTrendDays {
		return &domain.Insight{
			OrgID:       orgID,
			KPIID:       kpi.ID,
			InsightText: fmt.Sprintf("%s has been trending up for %d consecutive entries", kpi.Name, trend.ConsecutiveCount),
			Priority:    domain.InsightPriorityLow,
		}
	}
	if trend.Direction == domain.TrendDecreasing && trend.ConsecutiveCount >= consecutiveTrendDays {
		return &domain.Insight{
			OrgID:       orgID,
			KPIID:       kpi.ID,
			InsightText: fmt.Sprintf("%s has been trending down for %d consecutive entries", kpi.Name, trend.ConsecutiveCount),
			Priority:    domain.InsightPriorityMedium,
		}
	}
	return nil
}

// checkAllTimeRecord は最新値が過去最高/最低かを確認する。
func checkAllTimeRecord(orgID string, kpi *domain.KPIDefinition, currentValue float64, allTimeHigh, allTimeLow *float64) *domain.Insight {
	if allTimeHigh != nil && currentValue >= *allTimeHigh {
		return &domain.Insight{
			OrgID:       orgID,
			KPIID:       kpi.ID,
			InsightText: fmt.Sprintf("%s hit an all-time high of %g", kpi.Name, round2(currentValue)),
			Priority:    domain.InsightPriorityHigh,
		}
	}
	if allTimeLow != nil && currentValue <= *allTimeLow {
		return &domain.Insight{
			OrgID:       orgID,
			KPIID:       kpi.ID,
			InsightText: fmt.Sprintf("%s hit an all-time low of %g", kpi.Name, round2(currentValue)),
			Priority:    domain.InsightPriorityHigh,
		}
	}
	return nil
}

// checkAnomaly は最新値が平常範囲外かを確認する。
func checkAnomaly(orgID string, kpi *domain.KPIDefinition, currentValue, meanValue float64, stdDev *float64) *domain.Insight {
	anomaly := DetectAnomaly(currentValue, meanValue, stdDev)
	if !anomaly.IsAnomaly {
		return nil
	}

	direction := "higher"
	if anomaly.DeviationType == "low" {
		direction = "lower"
	}
	return &domain.Insight{
		OrgID:       orgID,
		KPIID:       kpi.ID,
		InsightText: fmt.Sprintf("%s is outside normal range - significantly %s than usual (%g std devs)", kpi.Name, direction, *anomaly.StdDevsFromMean),
		Priority:    domain.InsightPriorityHigh,
	}
}
