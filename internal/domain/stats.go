package domain

import "time"

// TrendDirection はKPI値の傾向を表す。
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// KPIStatistics は期間内のKPI値の統計サマリを表す。
// データ点が足りない統計量はnil。値は小数第4位に丸める。
type KPIStatistics struct {
	KPIID        string
	KPIName      string
	PeriodDays   int
	DataPoints   int
	Mean         *float64
	Median       *float64
	StdDev       *float64
	MinValue     *float64
	MaxValue     *float64
	Percentile25 *float64
	Percentile75 *float64
	Percentile90 *float64
	CurrentValue *float64
	AllTimeHigh  *float64
	AllTimeLow   *float64
}

// TrendResult は傾向分析の結果を表す。
type TrendResult struct {
	Direction        TrendDirection
	ConsecutiveCount int      // 同方向に連続した件数
	PercentageChange *float64 // 最古値から最新値への変化率
}

// AnomalyResult は異常値検出の結果を表す。
type AnomalyResult struct {
	IsAnomaly        bool
	DeviationType    string // "high" または "low"
	StdDevsFromMean  *float64
	Message          string
}

// DatedValue は日付付きのKPI値を表す。
type DatedValue struct {
	Date  time.Time
	Value float64
}
