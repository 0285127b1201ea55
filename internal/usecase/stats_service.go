package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"metricflow/internal/domain"
)

// anomalyThresholdStdDevs は異常値と判定する標準偏差の倍率。
const anomalyThresholdStdDevs = 1.5

// trendMinPoints は傾向分析に必要な最小データ点数。
const trendMinPoints = 3

// StatisticsService はKPIデータの統計分析を提供する。
type StatisticsService struct {
	kpiRepo   KPIRepository
	entryRepo EntryRepository
}

// NewStatisticsService は新しいStatisticsServiceを生成する。
func NewStatisticsService(kpiRepo KPIRepository, entryRepo EntryRepository) *StatisticsService {
	return &StatisticsService{
		kpiRepo:   kpiRepo,
		entryRepo: entryRepo,
	}
}

// round4 は小数第4位に丸める。
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// round2 は小数第2位に丸める。
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 {
	return &v
}

// CalculateStats は期間内のKPI値の統計サマリを計算する。
func (s *StatisticsService) CalculateStats(ctx context.Context, orgID, kpiID string, periodDays int) (*domain.KPIStatistics, error) {
	kpi, err := s.kpiRepo.FindByID(ctx, orgID, kpiID)
	if err != nil {
		return nil, err
	}
	if kpi == nil {
		return nil, domain.ErrKPINotFound
	}

	if periodDays <= 0 {
		periodDays = 30
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -periodDays)

	entries, err := s.entryRepo.FindRangeByKPI(ctx, orgID, kpiID, start, end)
	if err != nil {
		return nil, err
	}

	allTimeHigh, allTimeLow, err := s.entryRepo.AllTimeRange(ctx, orgID, kpiID)
	if err != nil {
		return nil, err
	}

	stats := &domain.KPIStatistics{
		KPIID:      kpiID,
		KPIName:    kpi.Name,
		PeriodDays: periodDays,
		DataPoints: len(entries),
	}
	if allTimeHigh != nil {
		stats.AllTimeHigh = ptr(round4(*allTimeHigh))
	}
	if allTimeLow != nil {
		stats.AllTimeLow = ptr(round4(*allTimeLow))
	}
	if len(entries) == 0 {
		return stats, nil
	}

	// entriesは日付の新しい順。values[0]が最新値になる。
	values := make([]float64, len(entries))
	for i, e := range entries {
		values[i] = e.CalculatedValue
	}

	stats.Mean = ptr(round4(mean(values)))
	stats.Median = ptr(round4(median(values)))
	stats.CurrentValue = ptr(round4(values[0]))

	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	stats.MinValue = ptr(round4(minV))
	stats.MaxValue = ptr(round4(maxV))

	if len(values) >= 2 {
		stats.StdDev = ptr(round4(sampleStdDev(values)))
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	stats.Percentile25 = percentile(sorted, 25)
	stats.Percentile75 = percentile(sorted, 75)
	stats.Percentile90 = percentile(sorted, 90)

	return stats, nil
}

// GetTrend は直近のKPI値から傾向を分析する。
func (s *StatisticsService) GetTrend(ctx context.Context, orgID, kpiID string, limit int) (*domain.TrendResult, error) {
	kpi, err := s.kpiRepo.FindByID(ctx, orgID, kpiID)
	if err != nil {
		return nil, err
	}
	if kpi == nil {
		return nil, domain.ErrKPINotFound
	}

	if limit <= 0 {
		limit = 10
	}
	entries, err := s.entryRepo.FindRecentByKPI(ctx, orgID, kpiID, limit)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(entries))
	for i, e := range entries {
		values[i] = e.CalculatedValue
	}
	return CalculateTrend(values), nil
}

// mean は平均値を計算する。
func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// median は中央値を計算する。
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// sampleStdDev は不偏標準偏差（n-1）を計算する。
func sampleStdDev(values []float64) float64 {
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// percentile はソート済みの値列から線形補間でパーセンタイルを計算する。
func percentile(sorted []float64, p int) *float64 {
	if len(sorted) == 0 {
		return nil
	}
	n := len(sorted)
	index := float64(p) / 100 * float64(n-1)
	lower := int(index)
	upper := lower + 1
	if upper >= n {
		return ptr(round4(sorted[n-1]))
	}
	weight := index - float64(lower)
	return ptr(round4(sorted[lower]*(1-weight) + sorted[upper]*weight))
}

// CalculateTrend は値列（新しい順）から傾向を判定する。
// 末尾（最新側）からの連続増加/減少を数え、trendMinPoints-1以上続く場合に傾向ありとする。
func CalculateTrend(values []float64) *domain.TrendResult {
	if len(values) < trendMinPoints {
		return &domain.TrendResult{
			Direction:        domain.TrendStable,
			ConsecutiveCount: 0,
		}
	}

	// 古い順に並べ替える
	chronological := make([]float64, len(values))
	for i, v := range values {
		chronological[len(values)-1-i] = v
	}

	consecutiveIncreasing := 0
	consecutiveDecreasing := 0
	for i := len(chronological) - 1; i > 0; i-- {
		if chronological[i] > chronological[i-1] {
			consecutiveIncreasing++
			consecutiveDecreasing = 0
		} else if chronological[i] < chronological[i-1] {
			consecutiveDecreasing++
			consecutiveIncreasing = 0
		} else {
			break
		}
	}

	var percentageChange *float64
	if chronological[0] != 0 {
		change := (chronological[len(chronological)-1] - chronological[0]) / math.Abs(chronological[0]) * 100
		percentageChange = ptr(round2(change))
	}

	switch {
	case consecutiveIncreasing >= trendMinPoints-1:
		return &domain.TrendResult{
			Direction:        domain.TrendIncreasing,
			ConsecutiveCount: consecutiveIncreasing + 1,
			PercentageChange: percentageChange,
		}
	case consecutiveDecreasing >= trendMinPoints-1:
		return &domain.TrendResult{
			Direction:        domain.TrendDecreasing,
			ConsecutiveCount: consecutiveDecreasing + 1,
			PercentageChange: percentageChange,
		}
	default:
		return &domain.TrendResult{
			Direction:        domain.TrendStable,
			ConsecutiveCount: 0,
			PercentageChange: percentageChange,
		}
	}
}

// DetectAnomaly は平均からの標準偏差倍率で異常値を判定する。
// 標準偏差がnilまたは0の場合は判定しない。
func DetectAnomaly(value, meanValue float64, stdDev *float64) *domain.AnomalyResult {
	if stdDev == nil || *stdDev == 0 {
		return &domain.AnomalyResult{IsAnomaly: false}
	}

	stdDevsFromMean := (value - meanValue) / *stdDev
	rounded := round2(stdDevsFromMean)

	if math.Abs(stdDevsFromMean) > anomalyThresholdStdDevs {
		deviationType := "high"
		position := "above"
		if stdDevsFromMean < 0 {
			deviationType = "low"
			position = "below"
		}
		return &domain.AnomalyResult{
			IsAnomaly:       true,
			DeviationType:   deviationType,
			StdDevsFromMean: ptr(rounded),
			Message:         fmt.Sprintf("Value is %.1f standard deviations %s the mean", math.Abs(stdDevsFromMean), position),
		}
	}

	return &domain.AnomalyResult{
		IsAnomaly:       false,
		StdDevsFromMean: ptr(rounded),
	}
}
