package domain

import "time"

// TimePeriod はKPIデータの収集頻度を表す。
type TimePeriod string

const (
	TimePeriodDaily     TimePeriod = "daily"
	TimePeriodWeekly    TimePeriod = "weekly"
	TimePeriodMonthly   TimePeriod = "monthly"
	TimePeriodQuarterly TimePeriod = "quarterly"
	TimePeriodOther     TimePeriod = "other"
)

// Valid は既知の収集頻度かどうかを返す。
func (p TimePeriod) Valid() bool {
	switch p {
	case TimePeriodDaily, TimePeriodWeekly, TimePeriodMonthly, TimePeriodQuarterly, TimePeriodOther:
		return true
	}
	return false
}

// KPIDefinition はKPI定義エンティティを表す。
// FormulaはInputFieldsの変数を参照する算術式（例: "revenue / deals_closed"）。
type KPIDefinition struct {
	ID          string
	OrgID       string
	Name        string
	Description string
	Formula     string
	InputFields []string
	Category    string
	TimePeriod  TimePeriod
	IsPreset    bool
	IsShared    bool
	CreatedBy   string
	CreatedAt   time.Time
}
