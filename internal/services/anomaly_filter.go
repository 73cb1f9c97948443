package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/v0idhrt/radar/internal/config"
	"github.com/v0idhrt/radar/internal/models"
)

const (
	// historyWindow bounds how far back per-ticker anomaly history is kept.
	historyWindow = 6 * time.Hour
	// maxHistorySize bounds how many entries a single ticker may accumulate.
	maxHistorySize = 50
	// significanceThreshold is the fixed admit/drop score boundary.
	significanceThreshold = 50.0
)

// timeframeWeights maps bar granularity to a score contribution. Shorter
// bars carry more noise and therefore less weight.
var timeframeWeights = map[string]float64{
	"M1":  5,
	"M5":  10,
	"M30": 15,
	"H1":  15,
}

// SignificanceFilter scores incoming anomaly events against a rolling
// per-ticker history and decides whether they deserve downstream work.
// The history is the filter's only mutable state and is guarded by a single
// mutex around every read-modify-write sequence.
type SignificanceFilter struct {
	hours  config.FilterConfig
	logger *logrus.Logger

	mu      sync.Mutex
	history map[string][]time.Time
}

// NewSignificanceFilter creates a filter with the given trading-session
// window configuration.
func NewSignificanceFilter(hours config.FilterConfig, logger *logrus.Logger) *SignificanceFilter {
	return &SignificanceFilter{
		hours:   hours,
		logger:  logger,
		history: make(map[string][]time.Time),
	}
}

// Evaluate scores an anomaly event. Scoring is additive across independent
// capped factors; the event is recorded into history regardless of the
// outcome so the history reflects raw signal frequency. Evaluate never
// fails: a malformed timestamp only degrades scoring precision.
func (f *SignificanceFilter) Evaluate(event models.AnomalyEvent) models.AnomalyScore {
	var reasons []string
	score := 0.0

	anomalyTime := event.ParsedTimestamp()
	deltaPct := event.DeltaPct()

	zAbs := abs(event.ZScore)
	switch {
	case zAbs > 10:
		score += 30
		reasons = append(reasons, fmt.Sprintf("very high z-score: %.1f", zAbs))
	case zAbs > 7:
		score += 20
		reasons = append(reasons, fmt.Sprintf("high z-score: %.1f", zAbs))
	case zAbs > 5:
		score += 10
		reasons = append(reasons, fmt.Sprintf("medium z-score: %.1f", zAbs))
	default:
		score += 5
		reasons = append(reasons, fmt.Sprintf("low z-score: %.1f", zAbs))
	}

	deltaAbs := abs(deltaPct)
	switch {
	case deltaAbs > 5:
		score += 25
		reasons = append(reasons, fmt.Sprintf("strong price move: %.2f%%", deltaAbs))
	case deltaAbs > 2:
		score += 15
		reasons = append(reasons, fmt.Sprintf("moderate price move: %.2f%%", deltaAbs))
	case deltaAbs > 0.5:
		score += 5
		reasons = append(reasons, fmt.Sprintf("weak price move: %.2f%%", deltaAbs))
	}

	inSession := f.isTradingHours(anomalyTime)
	if inSession {
		score += 15
		reasons = append(reasons, "trading session time")
	} else {
		score += 5
		reasons = append(reasons, "off-market time (low liquidity)")
	}

	tfWeight, ok := timeframeWeights[event.Timeframe]
	if !ok {
		tfWeight = 5
	}
	score += tfWeight
	reasons = append(reasons, fmt.Sprintf("timeframe %s", event.Timeframe))

	freqBonus := f.frequencyBonus(event.Ticker, anomalyTime)
	score += freqBonus
	if freqBonus < 10 {
		reasons = append(reasons, fmt.Sprintf("frequent anomalies (penalty: %.0f)", 20-freqBonus))
	} else {
		reasons = append(reasons, "normal anomaly frequency")
	}

	if zAbs > 8 && deltaAbs > 2 {
		score += 10
		reasons = append(reasons, "combo: strong z-score + strong price move")
	}
	if inSession && tfWeight >= 15 && zAbs > 7 {
		score += 10
		reasons = append(reasons, "combo: session time + significant timeframe + strong signal")
	}

	f.record(event.Ticker, anomalyTime)

	isSignificant := score >= significanceThreshold

	f.logger.WithFields(logrus.Fields{
		"ticker":      event.Ticker,
		"score":       score,
		"significant": isSignificant,
		"z_score":     event.ZScore,
		"delta_pct":   deltaPct,
	}).Info("Anomaly evaluated")

	return models.AnomalyScore{
		IsSignificant: isSignificant,
		Score:         score,
		Reasons:       reasons,
		ZScore:        event.ZScore,
		DeltaPct:      deltaPct,
	}
}

// Threshold returns the fixed significance boundary.
func (f *SignificanceFilter) Threshold() float64 {
	return significanceThreshold
}

// isTradingHours reports whether ts falls within the configured weekday
// session window, expressed in the session's fixed UTC offset.
func (f *SignificanceFilter) isTradingHours(ts time.Time) bool {
	local := ts.UTC().Add(time.Duration(f.hours.UTCOffsetHours) * time.Hour)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	hour, minute := local.Hour(), local.Minute()
	if hour < f.hours.OpenHour {
		return false
	}
	if hour > f.hours.CloseHour {
		return false
	}
	if hour == f.hours.CloseHour && minute > f.hours.CloseMinute {
		return false
	}
	return true
}

// frequencyBonus evicts history entries older than the window and maps the
// count of anomalies within the trailing hour to a bonus. Fewer recent
// anomalies score higher; a first-ever anomaly gets the maximum.
func (f *SignificanceFilter) frequencyBonus(ticker string, now time.Time) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, ok := f.history[ticker]
	if !ok {
		return 20
	}

	entries = evictOld(entries, now.Add(-historyWindow))
	f.history[ticker] = entries

	hourAgo := now.Add(-time.Hour)
	recent := 0
	for _, ts := range entries {
		if ts.After(hourAgo) {
			recent++
		}
	}

	switch {
	case recent <= 1:
		return 20
	case recent <= 3:
		return 15
	case recent <= 5:
		return 10
	default:
		return 5
	}
}

// record appends the event timestamp to the ticker's history, evicting the
// oldest entry when the size cap is hit.
func (f *SignificanceFilter) record(ticker string, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := append(f.history[ticker], ts)
	if len(entries) > maxHistorySize {
		entries = entries[len(entries)-maxHistorySize:]
	}
	f.history[ticker] = entries
}

// TickerStats exposes the ticker's anomaly count and last-seen time within
// the history window.
func (f *SignificanceFilter) TickerStats(ticker string) models.TickerStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := models.TickerStats{Ticker: ticker}

	entries, ok := f.history[ticker]
	if !ok {
		return stats
	}

	now := time.Now().UTC()
	entries = evictOld(entries, now.Add(-historyWindow))
	f.history[ticker] = entries

	stats.TotalAnomalies = len(entries)
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		stats.LastAnomaly = &last
	}

	hourAgo := now.Add(-time.Hour)
	for _, ts := range entries {
		if ts.After(hourAgo) {
			stats.AnomaliesLastHour++
		}
	}
	return stats
}

// evictOld drops leading entries at or before cutoff; entries are kept in
// insertion (time) order.
func evictOld(entries []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(entries) && entries[idx].Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return entries
	}
	return append(entries[:0], entries[idx:]...)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
