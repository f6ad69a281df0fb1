package insight

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/insights/internal/domain"
)

func TestGoalVerdictBands(t *testing.T) {
	engine := NewEngine(DefaultGoals())

	cases := []struct {
		name  string
		steps int
		want  Verdict
	}{
		{"at goal", 12000, VerdictHigh},
		{"within 80 percent", 8500, VerdictModerate},
		{"below band", 5000, VerdictLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			records := weekOfSteps(tc.steps)
			got := engine.GoalAchievement(records)
			require.Equal(t, tc.want, got.StepGoalLikelihood)
			require.Equal(t, 10000, got.DailyStepGoal)
		})
	}
}

func TestGoalVerdictWeeklyActiveMinutes(t *testing.T) {
	engine := NewEngine(DefaultGoals())

	// 25 min/day averages to 175 weekly, above the 150 goal.
	records := weekOf(8000, 25)
	got := engine.GoalAchievement(records)
	require.Equal(t, VerdictHigh, got.ActiveMinutesGoalLikelihood)
	require.Equal(t, 150, got.WeeklyActiveMinutesGoal)

	// 15 min/day averages to 105 weekly, under 80% of the goal.
	records = weekOf(8000, 15)
	got = engine.GoalAchievement(records)
	require.Equal(t, VerdictLow, got.ActiveMinutesGoalLikelihood)
}

func TestDetectAnomaliesFlagsSpikes(t *testing.T) {
	records := stepsSeries(8000, 8000, 8000, 8000, 20000)
	anomalies := DetectAnomalies(records)
	require.Len(t, anomalies, 1)
	require.Equal(t, 20000, anomalies[0].Steps)
	require.Equal(t, ReasonUnusuallyHigh, anomalies[0].Reason)
}

func TestDetectAnomaliesFlagsDips(t *testing.T) {
	records := stepsSeries(8000, 8000, 8000, 8000, 2000)
	anomalies := DetectAnomalies(records)
	require.Len(t, anomalies, 1)
	require.Equal(t, 2000, anomalies[0].Steps)
	require.Equal(t, ReasonUnusuallyLow, anomalies[0].Reason)
}

func TestDetectAnomaliesNeedsFourPriorPoints(t *testing.T) {
	require.Empty(t, DetectAnomalies(stepsSeries(8000, 8000, 8000, 20000)),
		"fewer than four prior points never flags")
	require.Empty(t, DetectAnomalies(nil))
}

func TestDetectAnomaliesUsesRunningMeanOfPriorDays(t *testing.T) {
	// The spike itself must not drag the mean it is compared against.
	records := stepsSeries(8000, 8000, 8000, 8000, 20000, 8000)
	anomalies := DetectAnomalies(records)
	require.Len(t, anomalies, 1, "the normal day after the spike stays within the threshold")
}

func TestProjectAppliesDayOfWeekMultipliers(t *testing.T) {
	// 2026-08-27 is a Thursday; the following week covers every multiplier.
	today := time.Date(2026, time.August, 27, 15, 4, 0, 0, time.UTC)
	records := weekOf(8000, 30)

	projections := Project(records, today)
	require.Len(t, projections, 7)

	byDay := map[string]Projection{}
	for _, p := range projections {
		byDay[p.DayOfWeek] = p
	}

	require.Equal(t, int(math.Round(8000*1.15)), byDay["Saturday"].ProjectedSteps)
	require.Equal(t, int(math.Round(8000*1.15)), byDay["Sunday"].ProjectedSteps)
	require.Equal(t, int(math.Round(8000*0.9)), byDay["Monday"].ProjectedSteps)
	require.Equal(t, 8000, byDay["Wednesday"].ProjectedSteps)
	require.Equal(t, "2026-08-28", projections[0].Date, "projection starts tomorrow")
}

func TestActionableInsightsNameConcreteNumbers(t *testing.T) {
	engine := NewEngine(DefaultGoals())
	records := weekOf(7000, 15)

	insights := engine.ActionableInsights(records)
	require.NotEmpty(t, insights)
	require.Contains(t, insights[0], "7000 steps")
	require.Contains(t, insights[0], "3000 short")
}

func TestPredictOnEmptyHistoryStaysComplete(t *testing.T) {
	engine := NewEngine(DefaultGoals())
	prediction := engine.Predict(nil, time.Date(2026, time.August, 27, 0, 0, 0, 0, time.UTC))

	require.Equal(t, VerdictLow, prediction.GoalAchievement.StepGoalLikelihood)
	require.NotNil(t, prediction.AnomalyDetection.Anomalies)
	require.Len(t, prediction.FutureProjections, 7)
	for _, p := range prediction.FutureProjections {
		require.Zero(t, p.ProjectedSteps)
	}
}

func TestNewEngineDefaultsZeroGoals(t *testing.T) {
	engine := NewEngine(Goals{})
	require.Equal(t, DefaultGoals(), engine.goals)
}

func weekOfSteps(steps int) []domain.ActivityRecord {
	return weekOf(steps, 30)
}

func weekOf(steps, activeMinutes int) []domain.ActivityRecord {
	base := time.Date(2026, time.August, 17, 0, 0, 0, 0, time.UTC)
	records := make([]domain.ActivityRecord, 0, 7)
	for day := 0; day < 7; day++ {
		records = append(records, domain.ActivityRecord{
			Date:          base.AddDate(0, 0, day),
			Steps:         steps,
			ActiveMinutes: activeMinutes,
		})
	}
	return records
}

func stepsSeries(steps ...int) []domain.ActivityRecord {
	base := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	records := make([]domain.ActivityRecord, 0, len(steps))
	for i, s := range steps {
		records = append(records, domain.ActivityRecord{
			Date:  base.AddDate(0, 0, i),
			Steps: s,
		})
	}
	return records
}
