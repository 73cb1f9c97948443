package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AnomalyEvent is an incoming abnormal price movement signal for a ticker.
// Events are transient input: they are scored and optionally persisted, but the
// significance filter never mutates them.
type AnomalyEvent struct {
	Ticker    string          `json:"ticker" binding:"required"`
	ZScore    float64         `json:"z_score"`
	Delta     decimal.Decimal `json:"delta"`
	Price     decimal.Decimal `json:"price"`
	Timestamp string          `json:"timestamp"`
	Timeframe string          `json:"timeframe"`
}

// DeltaPct returns the signed percentage price change, or zero when the
// price is not positive.
func (e AnomalyEvent) DeltaPct() float64 {
	if e.Price.Sign() <= 0 {
		return 0
	}
	pct, _ := e.Delta.Div(e.Price).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// ParsedTimestamp parses the event timestamp, falling back to the current time
// when the value is missing or malformed.
func (e AnomalyEvent) ParsedTimestamp() time.Time {
	if e.Timestamp == "" {
		return time.Now().UTC()
	}
	if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
		return ts.UTC()
	}
	return time.Now().UTC()
}

// AnomalyScore is the immutable result of evaluating one anomaly event.
type AnomalyScore struct {
	IsSignificant bool     `json:"is_significant"`
	Score         float64  `json:"score"`
	Reasons       []string `json:"reasons"`
	ZScore        float64  `json:"z_score"`
	DeltaPct      float64  `json:"delta_pct"`
}

// TickerStats is a read-only snapshot of a ticker's recent anomaly history.
type TickerStats struct {
	Ticker            string     `json:"ticker"`
	TotalAnomalies    int        `json:"total_anomalies"`
	LastAnomaly       *time.Time `json:"last_anomaly,omitempty"`
	AnomaliesLastHour int        `json:"anomalies_last_hour"`
}
