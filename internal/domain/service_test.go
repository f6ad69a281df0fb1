package domain

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var serviceNow = time.Date(2026, time.August, 27, 9, 0, 0, 0, time.UTC)

func TestGetWeeklySummaryAveragesTrailingWeek(t *testing.T) {
	store := &fakeRecords{}
	for day := 1; day <= 10; day++ {
		store.add(ActivityRecord{
			OwnerID: "owner-1",
			Date:    Day(serviceNow).AddDate(0, 0, -day),
			Steps:   1000 * day, DistanceKM: float64(day), ActiveMinutes: 10 * day,
		})
	}
	service := NewService(store)

	summary, err := service.GetWeeklySummary(context.Background(), "owner-1", serviceNow)
	require.NoError(t, err)

	// Days 1..7 back: steps 1000..7000.
	require.Equal(t, 28000, summary.TotalSteps)
	require.Equal(t, 4000, summary.AverageStepsPerDay)
	require.Equal(t, 280, summary.TotalActiveMinutes)
	require.Len(t, summary.DailyData, 7)
	require.True(t, summary.DailyData[0].Date.Before(summary.DailyData[6].Date))
}

func TestGetWeeklySummaryEmptyHistory(t *testing.T) {
	service := NewService(&fakeRecords{})

	summary, err := service.GetWeeklySummary(context.Background(), "owner-1", serviceNow)
	require.NoError(t, err)
	require.Zero(t, summary.TotalSteps)
	require.Zero(t, summary.AverageStepsPerDay)
	require.Empty(t, summary.DailyData)
}

func TestGetStatsTracksBestDay(t *testing.T) {
	store := &fakeRecords{}
	store.add(ActivityRecord{OwnerID: "owner-1", Date: Day(serviceNow).AddDate(0, 0, -3), Steps: 4000, DistanceKM: 3, ActiveMinutes: 20})
	store.add(ActivityRecord{OwnerID: "owner-1", Date: Day(serviceNow).AddDate(0, 0, -2), Steps: 12000, DistanceKM: 9, ActiveMinutes: 70})
	store.add(ActivityRecord{OwnerID: "owner-1", Date: Day(serviceNow).AddDate(0, 0, -1), Steps: 8000, DistanceKM: 6, ActiveMinutes: 45})
	service := NewService(store)

	stats, err := service.GetStats(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalDaysTracked)
	require.Equal(t, 24000, stats.TotalSteps)
	require.Equal(t, 8000, stats.AverageStepsPerDay)
	require.Equal(t, 12000, stats.BestDay.Steps)
	require.NotNil(t, stats.BestDay.Date)
}

func TestActivityForDateMissing(t *testing.T) {
	service := NewService(&fakeRecords{})

	_, err := service.ActivityForDate(context.Background(), "owner-1", serviceNow)
	require.ErrorIs(t, err, ErrRecordNotFound)
}

type fakeRecords struct {
	records []ActivityRecord
}

func (f *fakeRecords) add(record ActivityRecord) {
	f.records = append(f.records, record)
}

func (f *fakeRecords) FindByOwnerAndDate(_ context.Context, ownerID string, date time.Time) (*ActivityRecord, error) {
	for i := range f.records {
		if f.records[i].OwnerID == ownerID && f.records[i].Date.Equal(Day(date)) {
			return &f.records[i], nil
		}
	}
	return nil, nil
}

func (f *fakeRecords) Update(context.Context, ActivityRecord) error { return nil }

func (f *fakeRecords) InsertMany(context.Context, []ActivityRecord) error { return nil }

func (f *fakeRecords) ListByOwner(_ context.Context, ownerID string) ([]ActivityRecord, error) {
	var out []ActivityRecord
	for _, record := range f.records {
		if record.OwnerID == ownerID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (f *fakeRecords) ListByDateRange(ctx context.Context, ownerID string, from, to time.Time) ([]ActivityRecord, error) {
	all, _ := f.ListByOwner(ctx, ownerID)
	var out []ActivityRecord
	for _, record := range all {
		if !record.Date.Before(from) && !record.Date.After(to) {
			out = append(out, record)
		}
	}
	return out, nil
}
