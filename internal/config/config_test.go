package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesLocalDevDefaults(t *testing.T) {
	// Empty values read as unset, which also shields the test from
	// whatever the host environment carries.
	for _, key := range []string{
		"HTTP_ADDRESS", "CORS_ALLOWED_ORIGIN", "KAFKA_BROKERS", "INGEST_TOPIC",
		"AI_TIMEOUT", "INGEST_MAX_ATTEMPTS", "DAILY_STEP_GOAL", "WEEKLY_ACTIVE_MINUTES_GOAL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, "http://localhost:5173", cfg.CORSAllowedOrigin)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "csv_ingest_jobs", cfg.IngestTopic)
	require.Equal(t, 8*time.Second, cfg.AITimeout)
	require.Equal(t, 3, cfg.IngestMaxAttempts)
	require.Equal(t, 10000, cfg.DailyStepGoal)
	require.Equal(t, 150, cfg.WeeklyActiveMinutesGoal)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGIN", "https://app.example.com")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092 ,")
	t.Setenv("AI_TIMEOUT", "15s")
	t.Setenv("DAILY_STEP_GOAL", "6000")
	t.Setenv("WEEKLY_ACTIVE_MINUTES_GOAL", "210")

	cfg := Load()

	require.Equal(t, "https://app.example.com", cfg.CORSAllowedOrigin)
	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 15*time.Second, cfg.AITimeout)
	require.Equal(t, 6000, cfg.DailyStepGoal)
	require.Equal(t, 210, cfg.WeeklyActiveMinutesGoal)
}

func TestLoadIgnoresMalformedNumericValues(t *testing.T) {
	t.Setenv("DAILY_STEP_GOAL", "lots")
	t.Setenv("AI_TIMEOUT", "soon")

	cfg := Load()

	require.Equal(t, 10000, cfg.DailyStepGoal)
	require.Equal(t, 8*time.Second, cfg.AITimeout)
}
