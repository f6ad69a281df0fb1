package generative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/insights/internal/domain"
	"example.com/insights/internal/insight"
	"example.com/insights/internal/observability"
)

// Messages attached to degraded responses.
const (
	fallbackMessage = "AI service unavailable; results were generated by the local analytics engine."
	partialMessage  = "AI response was partially recovered; missing sections were filled by the local analytics engine."
)

// completer is the single backend operation the service depends on.
type completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Service wraps the generative backend with the deterministic fallback
// required for the insight and prediction endpoints. No error branch
// surfaces a hard failure: every path yields a complete payload.
type Service struct {
	backend completer
	timeout time.Duration
	goals   insight.Goals
	log     *zap.SugaredLogger
}

// NewService constructs a Service. The goals seed the local engine's
// thresholds; zero values fall back to the product defaults.
func NewService(backend completer, timeout time.Duration, goals insight.Goals, log *zap.SugaredLogger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{backend: backend, timeout: timeout, goals: goals, log: log}
}

// InsightResponse augments the insight bundle with the fallback tag.
type InsightResponse struct {
	insight.Insight
	IsFallback bool   `json:"is_fallback"`
	Message    string `json:"message,omitempty"`
}

// PredictionResponse augments the prediction payload with the fallback tag.
type PredictionResponse struct {
	insight.Prediction
	IsFallback bool   `json:"is_fallback"`
	Message    string `json:"message,omitempty"`
}

// HistoryPoint is the activity history entry accepted from the API.
type HistoryPoint struct {
	Date          string  `json:"date"`
	Steps         int     `json:"steps"`
	ActiveMinutes int     `json:"active_minutes"`
	Distance      float64 `json:"distance"`
}

// ToRecords converts request history points into domain records,
// dropping entries whose date does not parse.
func ToRecords(points []HistoryPoint) []domain.ActivityRecord {
	records := make([]domain.ActivityRecord, 0, len(points))
	for _, p := range points {
		date, err := time.Parse("2006-01-02", strings.TrimSpace(p.Date))
		if err != nil {
			continue
		}
		records = append(records, domain.ActivityRecord{
			Date:          domain.Day(date),
			Steps:         p.Steps,
			ActiveMinutes: p.ActiveMinutes,
			DistanceKM:    p.Distance,
		})
	}
	return records
}

// Insights returns the single-day insight bundle, preferring the
// generative backend and degrading to the local engine.
func (s *Service) Insights(ctx context.Context, metrics insight.ActivityMetrics, history []domain.ActivityRecord) InsightResponse {
	engine := insight.NewEngine(s.goals)
	local := engine.DailyInsight(metrics, history)

	text, err := s.complete(ctx, "insights", insightSystemPrompt, insightUserPrompt(metrics))
	if err != nil {
		s.log.Warnw("insights falling back to local engine", "error", err)
		observability.RecordFallback("insights")
		return InsightResponse{Insight: local, IsFallback: true, Message: fallbackMessage}
	}

	norm := Normalize(text)
	switch norm.Kind {
	case KindStructured:
		var parsed insight.Insight
		if decodeInto(norm.Object, &parsed) && insightConforms(parsed) {
			return InsightResponse{Insight: parsed}
		}
	case KindPartialSections:
		merged := mergeInsightSections(local, norm.Sections)
		return InsightResponse{Insight: merged, Message: partialMessage}
	}

	s.log.Warnw("insights falling back to local engine", "reason", "non-conforming backend output")
	observability.RecordFallback("insights")
	return InsightResponse{Insight: local, IsFallback: true, Message: fallbackMessage}
}

// Predictions returns the prediction payload, preferring the generative
// backend and degrading to the local engine.
func (s *Service) Predictions(ctx context.Context, goals insight.Goals, history []domain.ActivityRecord, today time.Time) PredictionResponse {
	engine := insight.NewEngine(goals)
	local := engine.Predict(history, today)

	text, err := s.complete(ctx, "predictions", predictionSystemPrompt, predictionUserPrompt(history))
	if err != nil {
		s.log.Warnw("predictions falling back to local engine", "error", err)
		observability.RecordFallback("predictions")
		return PredictionResponse{Prediction: local, IsFallback: true, Message: fallbackMessage}
	}

	if norm := Normalize(text); norm.Kind == KindStructured {
		var parsed insight.Prediction
		if decodeInto(norm.Object, &parsed) && predictionConforms(parsed) {
			return PredictionResponse{Prediction: parsed}
		}
	}

	s.log.Warnw("predictions falling back to local engine", "reason", "non-conforming backend output")
	observability.RecordFallback("predictions")
	return PredictionResponse{Prediction: local, IsFallback: true, Message: fallbackMessage}
}

// Health reports whether the backend answers its model probe. Only
// available when the backend is the HTTP client.
func (s *Service) Health(ctx context.Context) error {
	if probe, ok := s.backend.(interface{ Health(context.Context) error }); ok {
		return probe.Health(ctx)
	}
	return nil
}

func (s *Service) complete(ctx context.Context, endpoint, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.backend.Complete(callCtx, system, user)
	observability.ObserveGenerativeRequest(endpoint, time.Since(start))
	return text, err
}

const insightSystemPrompt = "You are a health analytics AI that provides insights based on fitness metrics. " +
	"Respond with a JSON object containing the keys summary, health_impact, recommendations, next_steps, and long_term_benefits."

const predictionSystemPrompt = "You are a fitness analysis AI that predicts activity trends based on historical data. " +
	"Respond with a JSON object containing the keys goal_achievement, anomaly_detection, future_projections, and actionable_insights."

func insightUserPrompt(metrics insight.ActivityMetrics) string {
	var b strings.Builder
	b.WriteString("Based on these activity metrics, provide insights:\n")
	fmt.Fprintf(&b, "Daily steps: %d\n", metrics.DailySteps)
	fmt.Fprintf(&b, "Active minutes: %d\n", metrics.ActiveMinutes)
	fmt.Fprintf(&b, "Distance: %.2f\n", metrics.Distance)
	b.WriteString("\nAnalyze this data and provide health insights.")
	return b.String()
}

func predictionUserPrompt(history []domain.ActivityRecord) string {
	var b strings.Builder
	b.WriteString("Based on this activity history, predict future trends:\n")
	for _, r := range history {
		fmt.Fprintf(&b, "Date: %s, Steps: %d\n", r.Date.Format("2006-01-02"), r.Steps)
	}
	b.WriteString("\nProvide a prediction of future activity trends.")
	return b.String()
}

// decodeInto round-trips a generic object into a typed payload.
func decodeInto(obj map[string]any, target any) bool {
	raw, err := json.Marshal(obj)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, target) == nil
}

// insightConforms requires at least one expected section to be present;
// an unrelated JSON object is treated as non-conforming output.
func insightConforms(parsed insight.Insight) bool {
	return parsed.Summary != "" ||
		len(parsed.HealthImpact) > 0 ||
		len(parsed.Recommendations) > 0 ||
		len(parsed.NextSteps) > 0 ||
		len(parsed.LongTermBenefits) > 0
}

func predictionConforms(parsed insight.Prediction) bool {
	return parsed.GoalAchievement.StepGoalLikelihood != "" || len(parsed.FutureProjections) > 0
}

// mergeInsightSections overlays recovered sections onto the locally
// computed bundle so missing sections stay populated.
func mergeInsightSections(base insight.Insight, sections map[string]any) insight.Insight {
	if v, ok := sections["summary"]; ok {
		if s := toString(v); s != "" {
			base.Summary = s
		}
	}
	if v, ok := sections["health_impact"]; ok {
		if list := toStringSlice(v); len(list) > 0 {
			base.HealthImpact = list
		}
	}
	if v, ok := sections["recommendations"]; ok {
		if list := toStringSlice(v); len(list) > 0 {
			base.Recommendations = list
		}
	}
	if v, ok := sections["next_steps"]; ok {
		if list := toStringSlice(v); len(list) > 0 {
			base.NextSteps = list
		}
	}
	return base
}

func toString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func toStringSlice(v any) []string {
	switch value := v.(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(value) == "" {
			return nil
		}
		return []string{value}
	default:
		return nil
	}
}
