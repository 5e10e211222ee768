package analytics

import "math"

type TrendDirection string

const (
	TrendUp      TrendDirection = "up"
	TrendDown    TrendDirection = "down"
	TrendNeutral TrendDirection = "neutral"
)

// TrendResult is a period-over-period comparison of two aggregates.
type TrendResult struct {
	Value      float64        `json:"value"`
	Percentage float64        `json:"percentage"`
	Direction  TrendDirection `json:"direction"`
	PeriodDays int            `json:"period_days"`
}

// Trend derives the delta, percentage change and direction between the
// current and previous period values. A zero previous period yields
// percentage 0 rather than dividing by zero.
func Trend(current, previous float64, periodDays int) TrendResult {
	delta := current - previous
	res := TrendResult{Value: delta, Direction: TrendNeutral, PeriodDays: periodDays}
	if previous != 0 {
		res.Percentage = round2(delta / previous * 100)
	}
	switch {
	case delta > 0:
		res.Direction = TrendUp
	case delta < 0:
		res.Direction = TrendDown
	}
	return res
}

func round2(n float64) float64 {
	return math.Round(n*100) / 100
}
