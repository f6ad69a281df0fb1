// Package insight computes deterministic goal, anomaly, and projection
// analytics over a window of activity records. It is the default
// single-day insight source and the fallback used whenever the
// generative backend is unavailable or unparseable.
package insight

import (
	"fmt"
	"math"
	"time"

	"example.com/insights/internal/domain"
)

// Tuning constants carried over from the upstream feed analytics.
// They are deliberate heuristics, not fitted parameters.
const (
	// AnomalyThreshold flags a day whose steps deviate from the running
	// mean by more than this fraction of the mean.
	AnomalyThreshold = 0.3
	// AnomalyHighRatio splits flagged days into high vs low activity.
	AnomalyHighRatio = 1.3
	// minAnomalyHistory is the number of prior points required before
	// anomaly detection starts.
	minAnomalyHistory = 4

	// WeekendMultiplier scales projections for Saturday and Sunday.
	WeekendMultiplier = 1.15
	// MondayMultiplier scales projections for Monday.
	MondayMultiplier = 0.9

	// moderateGoalRatio is the lower bound of the "moderate" verdict band.
	moderateGoalRatio = 0.8
)

// Anomaly reasons exposed on the wire.
const (
	ReasonUnusuallyHigh = "unusually high activity"
	ReasonUnusuallyLow  = "unusually low activity"
)

// Goals holds the thresholds verdicts are computed against.
type Goals struct {
	DailySteps          int `json:"daily_steps"`
	WeeklyActiveMinutes int `json:"weekly_active_minutes"`
}

// DefaultGoals returns the product defaults.
func DefaultGoals() Goals {
	return Goals{DailySteps: 10000, WeeklyActiveMinutes: 150}
}

// Verdict is the coarse classification of goal attainment.
type Verdict string

const (
	VerdictHigh     Verdict = "high"
	VerdictModerate Verdict = "moderate"
	VerdictLow      Verdict = "low"
)

// GoalAchievement carries one verdict per goal dimension.
type GoalAchievement struct {
	StepGoalLikelihood          Verdict `json:"step_goal_likelihood"`
	DailyStepGoal               int     `json:"daily_step_goal"`
	ActiveMinutesGoalLikelihood Verdict `json:"active_minutes_goal_likelihood"`
	WeeklyActiveMinutesGoal     int     `json:"weekly_active_minutes_goal"`
}

// Anomaly is a day whose step count deviates sharply from the recent
// running average.
type Anomaly struct {
	Date   string `json:"date"`
	Steps  int    `json:"steps"`
	Reason string `json:"reason"`
}

// AnomalyDetection wraps the anomaly list for the wire payload.
type AnomalyDetection struct {
	Anomalies []Anomaly `json:"anomalies"`
}

// Projection is a heuristic forward estimate for one future date.
type Projection struct {
	Date                   string `json:"date"`
	DayOfWeek              string `json:"day_of_week"`
	ProjectedSteps         int    `json:"projected_steps"`
	ProjectedActiveMinutes int    `json:"projected_active_minutes"`
}

// Prediction is the full deterministic prediction payload.
type Prediction struct {
	GoalAchievement    GoalAchievement  `json:"goal_achievement"`
	AnomalyDetection   AnomalyDetection `json:"anomaly_detection"`
	FutureProjections  []Projection     `json:"future_projections"`
	ActionableInsights []string         `json:"actionable_insights"`
}

// Engine evaluates windows of records against a fixed goal set. All
// methods are pure and deterministic.
type Engine struct {
	goals Goals
}

// NewEngine constructs an Engine. Zero-valued goals fall back to the
// product defaults.
func NewEngine(goals Goals) *Engine {
	if goals.DailySteps <= 0 {
		goals.DailySteps = DefaultGoals().DailySteps
	}
	if goals.WeeklyActiveMinutes <= 0 {
		goals.WeeklyActiveMinutes = DefaultGoals().WeeklyActiveMinutes
	}
	return &Engine{goals: goals}
}

// Predict produces the full prediction payload for a chronologically
// ordered window of records. "today" anchors the 7-day projection.
func (e *Engine) Predict(records []domain.ActivityRecord, today time.Time) Prediction {
	return Prediction{
		GoalAchievement:    e.GoalAchievement(records),
		AnomalyDetection:   AnomalyDetection{Anomalies: DetectAnomalies(records)},
		FutureProjections:  Project(records, today),
		ActionableInsights: e.ActionableInsights(records),
	}
}

// GoalAchievement classifies the window's averages against both goals.
func (e *Engine) GoalAchievement(records []domain.ActivityRecord) GoalAchievement {
	avgSteps, avgActive, _ := averages(records)
	return GoalAchievement{
		StepGoalLikelihood:          verdict(avgSteps, float64(e.goals.DailySteps)),
		DailyStepGoal:               e.goals.DailySteps,
		ActiveMinutesGoalLikelihood: verdict(avgActive*7, float64(e.goals.WeeklyActiveMinutes)),
		WeeklyActiveMinutesGoal:     e.goals.WeeklyActiveMinutes,
	}
}

func verdict(avg, goal float64) Verdict {
	switch {
	case avg >= goal:
		return VerdictHigh
	case avg >= moderateGoalRatio*goal:
		return VerdictModerate
	default:
		return VerdictLow
	}
}

// DetectAnomalies flags days whose steps deviate from the running mean
// of all prior days by more than AnomalyThreshold. Detection starts
// once minAnomalyHistory prior points exist.
func DetectAnomalies(records []domain.ActivityRecord) []Anomaly {
	anomalies := make([]Anomaly, 0)

	var sum float64
	for i, r := range records {
		if i >= minAnomalyHistory {
			mean := sum / float64(i)
			steps := float64(r.Steps)
			if math.Abs(steps-mean) > AnomalyThreshold*mean {
				reason := ReasonUnusuallyLow
				if steps > AnomalyHighRatio*mean {
					reason = ReasonUnusuallyHigh
				}
				anomalies = append(anomalies, Anomaly{
					Date:   r.Date.Format("2006-01-02"),
					Steps:  r.Steps,
					Reason: reason,
				})
			}
		}
		sum += float64(r.Steps)
	}
	return anomalies
}

// Project estimates steps and active minutes for each of the next 7
// calendar days by applying a day-of-week multiplier to the window's
// averages.
func Project(records []domain.ActivityRecord, today time.Time) []Projection {
	avgSteps, avgActive, _ := averages(records)

	projections := make([]Projection, 0, 7)
	for offset := 1; offset <= 7; offset++ {
		day := domain.Day(today).AddDate(0, 0, offset)
		mult := dayMultiplier(day.Weekday())
		projections = append(projections, Projection{
			Date:                   day.Format("2006-01-02"),
			DayOfWeek:              day.Weekday().String(),
			ProjectedSteps:         int(math.Round(avgSteps * mult)),
			ProjectedActiveMinutes: int(math.Round(avgActive * mult)),
		})
	}
	return projections
}

func dayMultiplier(day time.Weekday) float64 {
	switch day {
	case time.Saturday, time.Sunday:
		return WeekendMultiplier
	case time.Monday:
		return MondayMultiplier
	default:
		return 1.0
	}
}

// ActionableInsights renders concrete, numeric guidance strings from
// the window's averages.
func (e *Engine) ActionableInsights(records []domain.ActivityRecord) []string {
	avgSteps, avgActive, _ := averages(records)
	insights := make([]string, 0, 3)

	if avgSteps < float64(e.goals.DailySteps) {
		deficit := e.goals.DailySteps - int(math.Round(avgSteps))
		insights = append(insights, fmt.Sprintf(
			"You average %d steps per day, %d short of your %d-step daily goal.",
			int(math.Round(avgSteps)), deficit, e.goals.DailySteps))
	}

	weeklyActive := avgActive * 7
	if weeklyActive < float64(e.goals.WeeklyActiveMinutes) {
		shortfall := int(math.Ceil((float64(e.goals.WeeklyActiveMinutes) - weeklyActive) / 7))
		insights = append(insights, fmt.Sprintf(
			"Add about %d more active minutes per day to reach your weekly goal of %d minutes.",
			shortfall, e.goals.WeeklyActiveMinutes))
	}

	if len(records) >= 7 {
		weekdayAvg, weekendAvg, hasBoth := weekdayWeekendAverages(records)
		if hasBoth && weekendAvg < weekdayAvg {
			insights = append(insights, fmt.Sprintf(
				"Your weekend average of %d steps trails your weekday average of %d; keeping weekends active improves consistency.",
				int(math.Round(weekendAvg)), int(math.Round(weekdayAvg))))
		}
	}

	return insights
}

func weekdayWeekendAverages(records []domain.ActivityRecord) (weekday, weekend float64, hasBoth bool) {
	var weekdaySum, weekendSum float64
	var weekdayN, weekendN int
	for _, r := range records {
		switch r.Date.Weekday() {
		case time.Saturday, time.Sunday:
			weekendSum += float64(r.Steps)
			weekendN++
		default:
			weekdaySum += float64(r.Steps)
			weekdayN++
		}
	}
	if weekdayN == 0 || weekendN == 0 {
		return 0, 0, false
	}
	return weekdaySum / float64(weekdayN), weekendSum / float64(weekendN), true
}

// averages returns the window's mean steps, active minutes, and
// distance. An empty window yields zeros so downstream formatting
// still produces a complete response.
func averages(records []domain.ActivityRecord) (steps, active, distance float64) {
	if len(records) == 0 {
		return 0, 0, 0
	}
	for _, r := range records {
		steps += float64(r.Steps)
		active += float64(r.ActiveMinutes)
		distance += r.DistanceKM
	}
	n := float64(len(records))
	return steps / n, active / n, distance / n
}
