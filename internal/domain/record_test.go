package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBatchStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to BatchStatus }{
		{BatchPending, BatchProcessing},
		{BatchPending, BatchFailed},
		{BatchProcessing, BatchProcessed},
		{BatchProcessing, BatchPartiallyProcessed},
		{BatchProcessing, BatchFailed},
	}
	for _, tc := range allowed {
		require.NoError(t, ValidateTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to BatchStatus }{
		{BatchPending, BatchProcessed},
		{BatchProcessed, BatchProcessing},
		{BatchFailed, BatchPending},
		{BatchPartiallyProcessed, BatchProcessed},
		{BatchProcessing, BatchPending},
	}
	for _, tc := range denied {
		require.Error(t, ValidateTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	require.False(t, BatchPending.Terminal())
	require.False(t, BatchProcessing.Terminal())
	require.True(t, BatchProcessed.Terminal())
	require.True(t, BatchPartiallyProcessed.Terminal())
	require.True(t, BatchFailed.Terminal())
}

func TestDayTruncatesToUTCCalendarDate(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	local := time.Date(2026, time.August, 27, 22, 30, 0, 0, loc)
	day := Day(local)

	require.Equal(t, time.UTC, day.Location())
	require.Equal(t, "2026-08-28", day.Format("2006-01-02"), "22:30 EDT is already the next UTC day")
	require.Zero(t, day.Hour())
}
