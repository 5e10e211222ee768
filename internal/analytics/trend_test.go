package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrend(t *testing.T) {
	cases := []struct {
		name      string
		current   float64
		previous  float64
		value     float64
		pct       float64
		direction TrendDirection
	}{
		{"growth", 150, 100, 50, 50, TrendUp},
		{"decline", 80, 100, -20, -20, TrendDown},
		{"flat", 100, 100, 0, 0, TrendNeutral},
		{"zero previous yields zero percentage", 10, 0, 10, 0, TrendUp},
		{"both zero", 0, 0, 0, 0, TrendNeutral},
		{"fractional rounds to two places", 1, 3, -2, -66.67, TrendDown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Trend(tc.current, tc.previous, 7)
			assert.Equal(t, tc.value, res.Value)
			assert.Equal(t, tc.pct, res.Percentage)
			assert.Equal(t, tc.direction, res.Direction)
			assert.Equal(t, 7, res.PeriodDays)
		})
	}
}
