package domain

import "time"

// DataEntry はKPIの1日分の実績データを表す。
// Valuesは計算式の入力変数、CalculatedValueは式の評価結果。
type DataEntry struct {
	ID              string
	OrgID           string
	KPIID           string
	RoomID          string // ルームスコープなしの場合は空
	Date            time.Time
	Values          map[string]float64
	CalculatedValue float64
	EnteredBy       string
	CreatedAt       time.Time
}

// NormalizeEntryDate は日付を収集頻度ごとの基準日に丸める。
// weeklyは週の月曜日、monthlyは月初。それ以外はそのまま。
func NormalizeEntryDate(d time.Time, period TimePeriod) time.Time {
	d = d.Truncate(24 * time.Hour)
	switch period {
	case TimePeriodWeekly:
		offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
		return d.AddDate(0, 0, -offset)
	case TimePeriodMonthly:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
	default:
		return d
	}
}
