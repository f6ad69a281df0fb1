package domain

import (
	"context"
	"math"
	"time"
)

// Service orchestrates activity queries for the API layer.
type Service struct {
	records RecordStore
}

// NewService constructs a Service.
func NewService(records RecordStore) *Service {
	return &Service{records: records}
}

// DailyMetrics is the per-day slice of a summary payload.
type DailyMetrics struct {
	Date          time.Time `json:"date"`
	Steps         int       `json:"steps"`
	DistanceKM    float64   `json:"distance_km"`
	ActiveMinutes int       `json:"active_minutes"`
}

// WeeklySummary aggregates the trailing seven days of records.
type WeeklySummary struct {
	TotalSteps                 int            `json:"total_steps"`
	TotalDistanceKM            float64        `json:"total_distance_km"`
	TotalActiveMinutes         int            `json:"total_active_minutes"`
	AverageStepsPerDay         int            `json:"average_steps_per_day"`
	AverageDistancePerDay      float64        `json:"average_distance_per_day"`
	AverageActiveMinutesPerDay int            `json:"average_active_minutes_per_day"`
	DailyData                  []DailyMetrics `json:"daily_data"`
}

// BestDay captures the owner's strongest recorded day.
type BestDay struct {
	Date          *time.Time `json:"date,omitempty"`
	Steps         int        `json:"steps"`
	DistanceKM    float64    `json:"distance_km"`
	ActiveMinutes int        `json:"active_minutes"`
}

// Stats aggregates the owner's full history.
type Stats struct {
	TotalSteps                 int     `json:"total_steps"`
	TotalDistanceKM            float64 `json:"total_distance_km"`
	TotalActiveMinutes         int     `json:"total_active_minutes"`
	AverageStepsPerDay         int     `json:"average_steps_per_day"`
	AverageDistancePerDay      float64 `json:"average_distance_per_day"`
	AverageActiveMinutesPerDay int     `json:"average_active_minutes_per_day"`
	TotalDaysTracked           int     `json:"total_days_tracked"`
	BestDay                    BestDay `json:"best_day"`
}

// ListActivity returns every record for the owner in chronological order.
func (s *Service) ListActivity(ctx context.Context, ownerID string) ([]ActivityRecord, error) {
	return s.records.ListByOwner(ctx, ownerID)
}

// ActivityForDate fetches the single record for a calendar date.
func (s *Service) ActivityForDate(ctx context.Context, ownerID string, date time.Time) (*ActivityRecord, error) {
	record, err := s.records.FindByOwnerAndDate(ctx, ownerID, Day(date))
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// HistoryWindow returns the records from the trailing N days ending at
// now, oldest first. The insight engine consumes this window.
func (s *Service) HistoryWindow(ctx context.Context, ownerID string, days int, now time.Time) ([]ActivityRecord, error) {
	to := Day(now)
	from := to.AddDate(0, 0, -days)
	return s.records.ListByDateRange(ctx, ownerID, from, to)
}

// GetWeeklySummary aggregates the trailing seven days.
func (s *Service) GetWeeklySummary(ctx context.Context, ownerID string, now time.Time) (WeeklySummary, error) {
	records, err := s.HistoryWindow(ctx, ownerID, 7, now)
	if err != nil {
		return WeeklySummary{}, err
	}

	summary := WeeklySummary{DailyData: make([]DailyMetrics, 0, len(records))}
	for _, r := range records {
		summary.TotalSteps += r.Steps
		summary.TotalDistanceKM += r.DistanceKM
		summary.TotalActiveMinutes += r.ActiveMinutes
		summary.DailyData = append(summary.DailyData, DailyMetrics{
			Date:          r.Date,
			Steps:         r.Steps,
			DistanceKM:    r.DistanceKM,
			ActiveMinutes: r.ActiveMinutes,
		})
	}
	if n := len(records); n > 0 {
		summary.AverageStepsPerDay = int(math.Round(float64(summary.TotalSteps) / float64(n)))
		summary.AverageDistancePerDay = math.Round(summary.TotalDistanceKM/float64(n)*100) / 100
		summary.AverageActiveMinutesPerDay = int(math.Round(float64(summary.TotalActiveMinutes) / float64(n)))
	}
	return summary, nil
}

// GetStats aggregates the owner's full history.
func (s *Service) GetStats(ctx context.Context, ownerID string) (Stats, error) {
	records, err := s.records.ListByOwner(ctx, ownerID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{TotalDaysTracked: len(records)}
	var best *ActivityRecord
	for i := range records {
		r := records[i]
		stats.TotalSteps += r.Steps
		stats.TotalDistanceKM += r.DistanceKM
		stats.TotalActiveMinutes += r.ActiveMinutes
		if best == nil || r.Steps > best.Steps {
			best = &records[i]
		}
	}
	if n := len(records); n > 0 {
		stats.AverageStepsPerDay = int(math.Round(float64(stats.TotalSteps) / float64(n)))
		stats.AverageDistancePerDay = math.Round(stats.TotalDistanceKM/float64(n)*100) / 100
		stats.AverageActiveMinutesPerDay = int(math.Round(float64(stats.TotalActiveMinutes) / float64(n)))
	}
	if best != nil {
		stats.BestDay = BestDay{
			Date:          &best.Date,
			Steps:         best.Steps,
			DistanceKM:    best.DistanceKM,
			ActiveMinutes: best.ActiveMinutes,
		}
	}
	return stats, nil
}
