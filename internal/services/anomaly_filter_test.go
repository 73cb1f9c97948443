package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0idhrt/radar/internal/config"
	"github.com/v0idhrt/radar/internal/models"
)

func testFilterConfig() config.FilterConfig {
	return config.FilterConfig{
		UTCOffsetHours: 3,
		OpenHour:       10,
		CloseHour:      18,
		CloseMinute:    45,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestFilter() *SignificanceFilter {
	return NewSignificanceFilter(testFilterConfig(), testLogger())
}

// sessionTimestamp is a Monday 12:00 in the configured session offset
// (09:00 UTC with offset +3).
const sessionTimestamp = "2025-06-02T09:00:00Z"

// weekendTimestamp is a Sunday, always outside the session.
const weekendTimestamp = "2025-06-01T09:00:00Z"

func anomaly(ticker string, z float64, deltaPct float64, timeframe, timestamp string) models.AnomalyEvent {
	price := decimal.NewFromInt(100)
	return models.AnomalyEvent{
		Ticker:    ticker,
		ZScore:    z,
		Delta:     price.Mul(decimal.NewFromFloat(deltaPct / 100)),
		Price:     price,
		Timestamp: timestamp,
		Timeframe: timeframe,
	}
}

func TestEvaluateStrongSignalIsSignificant(t *testing.T) {
	filter := newTestFilter()

	score := filter.Evaluate(anomaly("SBER", 12, 6, "H1", sessionTimestamp))

	require.True(t, score.IsSignificant)
	// 30 (z) + 25 (delta) + 15 (session) + 15 (H1) + 20 (first anomaly)
	// + 10 (z+delta combo) + 10 (session+timeframe+z combo)
	assert.InDelta(t, 125.0, score.Score, 0.001)
	assert.NotEmpty(t, score.Reasons)
}

func TestEvaluateWeakSignalIsFiltered(t *testing.T) {
	filter := newTestFilter()

	score := filter.Evaluate(anomaly("SBER", 0.5, 0, "M1", weekendTimestamp))

	require.False(t, score.IsSignificant)
	// 5 (z) + 0 (delta) + 5 (off-session) + 5 (M1) + 20 (first anomaly)
	assert.InDelta(t, 35.0, score.Score, 0.001)
}

func TestEvaluateScoreTiers(t *testing.T) {
	tests := []struct {
		name     string
		z        float64
		deltaPct float64
		want     float64
	}{
		{"very high z", 11, 0, 30 + 0 + 5 + 5 + 20},
		{"high z", 8, 0, 20 + 0 + 5 + 5 + 20},
		{"medium z", 6, 0, 10 + 0 + 5 + 5 + 20},
		{"strong delta", 0.1, 6, 5 + 25 + 5 + 5 + 20},
		{"moderate delta", 0.1, 3, 5 + 15 + 5 + 5 + 20},
		{"weak delta", 0.1, 1, 5 + 5 + 5 + 5 + 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := newTestFilter()
			score := filter.Evaluate(anomaly("GAZP", tt.z, tt.deltaPct, "M1", weekendTimestamp))
			assert.InDelta(t, tt.want, score.Score, 0.001)
		})
	}
}

func TestEvaluateNegativeSignalsUseMagnitude(t *testing.T) {
	filter := newTestFilter()

	up := filter.Evaluate(anomaly("LKOH", 12, 6, "H1", sessionTimestamp))

	filter = newTestFilter()
	down := filter.Evaluate(anomaly("LKOH", -12, -6, "H1", sessionTimestamp))

	assert.InDelta(t, up.Score, down.Score, 0.001)
}

func TestFrequencyPenaltyReducesScore(t *testing.T) {
	filter := newTestFilter()

	first := filter.Evaluate(anomaly("YNDX", 6, 1, "M5", sessionTimestamp))

	// Flood the ticker with anomalies inside the trailing hour.
	for i := 0; i < 6; i++ {
		filter.Evaluate(anomaly("YNDX", 6, 1, "M5", sessionTimestamp))
	}
	flooded := filter.Evaluate(anomaly("YNDX", 6, 1, "M5", sessionTimestamp))

	assert.Greater(t, first.Score, flooded.Score)
}

func TestIsTradingHoursBoundaries(t *testing.T) {
	filter := newTestFilter()

	tests := []struct {
		name string
		ts   string
		want bool
	}{
		{"session middle", "2025-06-02T09:00:00Z", true},
		{"session open", "2025-06-02T07:00:00Z", true},
		{"before open", "2025-06-02T06:59:00Z", false},
		{"session close", "2025-06-02T15:45:00Z", true},
		{"after close", "2025-06-02T15:46:00Z", false},
		{"saturday", "2025-06-07T09:00:00Z", false},
		{"sunday", "2025-06-01T09:00:00Z", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := time.Parse(time.RFC3339, tt.ts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, filter.isTradingHours(ts))
		})
	}
}

func TestTickerStatsTracksHistory(t *testing.T) {
	filter := newTestFilter()

	now := time.Now().UTC().Format(time.RFC3339)
	filter.Evaluate(anomaly("SBER", 6, 1, "M5", now))
	filter.Evaluate(anomaly("SBER", 6, 1, "M5", now))

	stats := filter.TickerStats("SBER")
	assert.Equal(t, "SBER", stats.Ticker)
	assert.Equal(t, 2, stats.TotalAnomalies)
	assert.Equal(t, 2, stats.AnomaliesLastHour)
	require.NotNil(t, stats.LastAnomaly)

	empty := filter.TickerStats("UNKNOWN")
	assert.Zero(t, empty.TotalAnomalies)
	assert.Nil(t, empty.LastAnomaly)
}

func TestHistoryEvictsBeyondWindow(t *testing.T) {
	filter := newTestFilter()

	old := time.Now().UTC().Add(-7 * time.Hour).Format(time.RFC3339)
	filter.Evaluate(anomaly("SBER", 6, 1, "M5", old))

	recent := time.Now().UTC().Format(time.RFC3339)
	filter.Evaluate(anomaly("SBER", 6, 1, "M5", recent))

	stats := filter.TickerStats("SBER")
	assert.Equal(t, 1, stats.TotalAnomalies)
}
