package domain

import "time"

// InsightPriority はインサイトの重要度を表す。
type InsightPriority string

const (
	InsightPriorityHigh   InsightPriority = "high"
	InsightPriorityMedium InsightPriority = "medium"
	InsightPriorityLow    InsightPriority = "low"
)

// Rank は重要度の並び順を返す（高いほど小さい値）。
func (p InsightPriority) Rank() int {
	switch p {
	case InsightPriorityHigh:
		return 0
	case InsightPriorityMedium:
		return 1
	case InsightPriorityLow:
		return 2
	}
	return 3
}

// Insight はKPIデータから自動生成された所見を表す。
type Insight struct {
	ID          string
	OrgID       string
	KPIID       string
	InsightText string
	Priority    InsightPriority
	GeneratedAt time.Time
}
