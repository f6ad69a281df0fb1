package insight

import (
	"fmt"
	"math"

	"example.com/insights/internal/domain"
)

// Fixed benchmarks used by the single-day insight bundle. These are
// the commonly cited public-health reference points, independent of
// the owner's configured goals.
const (
	excellentStepThreshold = 10000
	goodStepThreshold      = 7500
	dailyActiveBenchmark   = 30
)

// ActivityMetrics is the single-day metric triple sent by the API layer.
type ActivityMetrics struct {
	DailySteps    int     `json:"daily_steps"`
	ActiveMinutes int     `json:"active_minutes"`
	Distance      float64 `json:"distance"`
}

// Insight is the single-day insight bundle rendered for the dashboard.
type Insight struct {
	Summary          string   `json:"summary"`
	HealthImpact     []string `json:"health_impact"`
	Recommendations  []string `json:"recommendations"`
	NextSteps        []string `json:"next_steps"`
	LongTermBenefits []string `json:"long_term_benefits"`
}

// DailyInsight compares today's metrics against the averages of the
// supplied history window (14 days in practice) and renders the full
// bundle. With no history all averages default to 0 and the bundle is
// still complete.
func (e *Engine) DailyInsight(metrics ActivityMetrics, history []domain.ActivityRecord) Insight {
	avgSteps, avgActive, avgDistance := averages(history)

	return Insight{
		Summary:          summaryText(metrics, avgSteps, avgActive, avgDistance),
		HealthImpact:     healthImpact(metrics),
		Recommendations:  recommendations(metrics),
		NextSteps:        nextSteps(metrics),
		LongTermBenefits: longTermBenefits(metrics),
	}
}

func summaryText(m ActivityMetrics, avgSteps, avgActive, avgDistance float64) string {
	base := fmt.Sprintf("Today you logged %d steps, %d active minutes, and %.1f km.",
		m.DailySteps, m.ActiveMinutes, m.Distance)

	if avgSteps <= 0 {
		return base + " No recent history is available yet, so today stands on its own."
	}

	diff := float64(m.DailySteps) - avgSteps
	pct := math.Abs(diff) / avgSteps * 100
	switch {
	case pct < 5:
		return base + fmt.Sprintf(" That is right on your 14-day average of %d steps.", int(math.Round(avgSteps)))
	case diff > 0:
		return base + fmt.Sprintf(" That is %.0f%% above your 14-day average of %d steps.", pct, int(math.Round(avgSteps)))
	default:
		return base + fmt.Sprintf(" That is %.0f%% below your 14-day average of %d steps.", pct, int(math.Round(avgSteps)))
	}
}

func healthImpact(m ActivityMetrics) []string {
	impact := make([]string, 0, 2)

	switch {
	case m.DailySteps >= excellentStepThreshold:
		impact = append(impact, "An excellent step count that meets the widely cited 10,000-step mark.")
	case m.DailySteps >= goodStepThreshold:
		impact = append(impact, "A good step count associated with meaningful cardiovascular benefit.")
	default:
		impact = append(impact, "Step volume is below recommended daily activity levels.")
	}

	if m.ActiveMinutes >= dailyActiveBenchmark {
		impact = append(impact, "Your active minutes meet the 30-minute daily guideline for moderate exercise.")
	} else {
		impact = append(impact, "Active minutes fall short of the 30-minute daily guideline.")
	}

	return impact
}

func recommendations(m ActivityMetrics) []string {
	recs := make([]string, 0, 2)

	if gap := excellentStepThreshold - m.DailySteps; gap > 0 {
		recs = append(recs, fmt.Sprintf("Walk %d more steps to reach the 10,000-step benchmark.", gap))
	} else {
		recs = append(recs, "Keep up your current step volume; you are meeting the 10,000-step benchmark.")
	}

	if gap := dailyActiveBenchmark - m.ActiveMinutes; gap > 0 {
		recs = append(recs, fmt.Sprintf("Add %d more active minutes to hit the 30-minute daily benchmark.", gap))
	} else {
		recs = append(recs, "Maintain your active minutes; you are meeting the 30-minute daily benchmark.")
	}

	return recs
}

// nextSteps and longTermBenefits are templated from fixed rule sets,
// not generated.
func nextSteps(m ActivityMetrics) []string {
	steps := make([]string, 0, 3)
	if m.DailySteps < excellentStepThreshold {
		steps = append(steps, "Schedule two 15-minute walks tomorrow to close the step gap.")
	}
	if m.ActiveMinutes < dailyActiveBenchmark {
		steps = append(steps, "Break activity into short sessions spread across the day.")
	}
	steps = append(steps, "Sync your tracker tomorrow so the next day is captured in full.")
	return steps
}

func longTermBenefits(m ActivityMetrics) []string {
	benefits := []string{
		"Sustained daily activity lowers cardiovascular risk.",
		"Regular step volume supports weight management and sleep quality.",
	}
	if m.DailySteps >= goodStepThreshold {
		benefits = append(benefits, "Holding this level of activity protects mobility and bone density over time.")
	} else {
		benefits = append(benefits, "Small daily increases compound into measurable fitness gains within weeks.")
	}
	return benefits
}
