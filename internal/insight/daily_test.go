package insight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/insights/internal/domain"
)

func TestDailyInsightWithoutHistoryIsComplete(t *testing.T) {
	engine := NewEngine(DefaultGoals())
	metrics := ActivityMetrics{DailySteps: 4000, ActiveMinutes: 20, Distance: 3.1}

	bundle := engine.DailyInsight(metrics, nil)

	require.Contains(t, bundle.Summary, "4000 steps")
	require.Contains(t, bundle.Summary, "No recent history")
	require.NotEmpty(t, bundle.HealthImpact)
	require.NotEmpty(t, bundle.Recommendations)
	require.NotEmpty(t, bundle.NextSteps)
	require.NotEmpty(t, bundle.LongTermBenefits)
}

func TestDailyInsightComparesAgainstHistoryAverage(t *testing.T) {
	engine := NewEngine(DefaultGoals())
	history := historyOf(8000, 14)

	above := engine.DailyInsight(ActivityMetrics{DailySteps: 12000, ActiveMinutes: 45, Distance: 9}, history)
	require.Contains(t, above.Summary, "50% above")

	below := engine.DailyInsight(ActivityMetrics{DailySteps: 4000, ActiveMinutes: 10, Distance: 3}, history)
	require.Contains(t, below.Summary, "50% below")

	onPar := engine.DailyInsight(ActivityMetrics{DailySteps: 8100, ActiveMinutes: 30, Distance: 6}, history)
	require.Contains(t, onPar.Summary, "right on your 14-day average")
}

func TestDailyInsightStepBuckets(t *testing.T) {
	engine := NewEngine(DefaultGoals())

	excellent := engine.DailyInsight(ActivityMetrics{DailySteps: 11000, ActiveMinutes: 40}, nil)
	require.Contains(t, excellent.HealthImpact[0], "excellent")

	good := engine.DailyInsight(ActivityMetrics{DailySteps: 8000, ActiveMinutes: 40}, nil)
	require.Contains(t, good.HealthImpact[0], "good")

	low := engine.DailyInsight(ActivityMetrics{DailySteps: 3000, ActiveMinutes: 10}, nil)
	require.Contains(t, low.HealthImpact[0], "below recommended")
}

func TestDailyInsightRecommendationsCarryExactGaps(t *testing.T) {
	engine := NewEngine(DefaultGoals())
	bundle := engine.DailyInsight(ActivityMetrics{DailySteps: 7200, ActiveMinutes: 22}, nil)

	require.Contains(t, bundle.Recommendations[0], "2800 more steps")
	require.Contains(t, bundle.Recommendations[1], "8 more active minutes")
}

func historyOf(steps, days int) []domain.ActivityRecord {
	base := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	records := make([]domain.ActivityRecord, 0, days)
	for day := 0; day < days; day++ {
		records = append(records, domain.ActivityRecord{
			Date:          base.AddDate(0, 0, day),
			Steps:         steps,
			ActiveMinutes: 30,
			DistanceKM:    6,
		})
	}
	return records
}
