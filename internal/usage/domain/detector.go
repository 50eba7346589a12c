package usage

import (
	"fmt"
	"math"
	"time"
)

// Severity levels for a diagnosis, ordered low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	findingSustainedHigh = "Consistently high water usage detected over recent readings"
	findingNighttime     = "Unusual water usage during nighttime hours detected"
	findingUpwardTrend   = "Water usage showing upward trend - possible leak developing"

	sustainedSampleSize = 5
	sustainedMinHits    = 4
	trendSampleSize     = 7
	nightEndHour        = 6
)

// Diagnosis is the result of analyzing one reading against recent history.
// It is ephemeral and consumed immediately to raise alerts.
type Diagnosis struct {
	HasIssues     bool      `json:"has_issues"`
	Issues        []string  `json:"issues"`
	Severity      Severity  `json:"severity"`
	CurrentUsage  float64   `json:"current_usage"`
	HistoricalAvg float64   `json:"historical_avg"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
}

// Detector evaluates leak-like anomaly patterns over a window of recent
// readings. The zero value is not usable; construct via DefaultDetector
// or from a detection config.
type Detector struct {
	// SustainedRatio is the baseline multiple a reading must exceed to
	// count toward the sustained-high check.
	SustainedRatio float64
	// NightRatio is the baseline multiple the mean nighttime usage must
	// exceed to flag nighttime activity.
	NightRatio float64
	// SpikeRatio is the baseline multiple the current reading must
	// exceed to flag a sudden spike.
	SpikeRatio float64
	// TrendRatio is the baseline multiple the recent-seven mean must
	// exceed to flag an upward trend.
	TrendRatio float64
	// BaselineFloor clamps non-positive or non-finite baselines.
	BaselineFloor float64
}

// DefaultDetector returns a detector with the reference thresholds.
func DefaultDetector() Detector {
	return Detector{
		SustainedRatio: 1.5,
		NightRatio:     0.5,
		SpikeRatio:     3,
		TrendRatio:     1.8,
		BaselineFloor:  1,
	}
}

// ClampBaseline sanitizes a historical average. A zero-usage history or
// a corrupted aggregate would otherwise make every ratio check fire.
func (d Detector) ClampBaseline(avg float64) float64 {
	floor := d.BaselineFloor
	if floor <= 0 {
		floor = 1
	}
	if math.IsNaN(avg) || math.IsInf(avg, 0) || avg < floor {
		return floor
	}
	return avg
}

// Analyze runs the four pattern checks against the current reading and
// the recent window (newest first). All four checks always run; the
// severity escalation is order-sensitive and must not be collapsed into
// a plain maximum:
//
//  1. sustained high usage  -> severity = high
//  2. nighttime anomaly     -> severity = high unless already critical
//  3. sudden spike          -> severity = critical
//  4. upward trend          -> severity = medium only if still low
//
// Findings are appended in check order. Pure function: identical inputs
// produce identical outputs apart from the supplied analysis time.
func (d Detector) Analyze(currentUsage float64, window []Reading, historicalAvg float64, now time.Time) Diagnosis {
	avg := d.ClampBaseline(historicalAvg)
	issues := []string{}
	severity := SeverityLow

	if len(window) >= sustainedSampleSize {
		hits := 0
		for _, r := range window[:sustainedSampleSize] {
			if r.Usage > avg*d.SustainedRatio {
				hits++
			}
		}
		if hits >= sustainedMinHits {
			issues = append(issues, findingSustainedHigh)
			severity = SeverityHigh
		}
	}

	var nightSum float64
	nightCount := 0
	for _, r := range window {
		if hour := r.Timestamp.Hour(); hour >= 0 && hour < nightEndHour {
			nightSum += r.Usage
			nightCount++
		}
	}
	if nightCount > 0 && nightSum/float64(nightCount) > avg*d.NightRatio {
		issues = append(issues, findingNighttime)
		if severity != SeverityCritical {
			severity = SeverityHigh
		}
	}

	if currentUsage > avg*d.SpikeRatio {
		issues = append(issues, fmt.Sprintf("Sudden spike in water usage: %.2fL (avg: %.2fL)", currentUsage, avg))
		severity = SeverityCritical
	}

	if len(window) >= trendSampleSize {
		var sum float64
		for _, r := range window[:trendSampleSize] {
			sum += r.Usage
		}
		if sum/trendSampleSize > avg*d.TrendRatio {
			issues = append(issues, findingUpwardTrend)
			if severity == SeverityLow {
				severity = SeverityMedium
			}
		}
	}

	return Diagnosis{
		HasIssues:     len(issues) > 0,
		Issues:        issues,
		Severity:      severity,
		CurrentUsage:  currentUsage,
		HistoricalAvg: avg,
		AnalyzedAt:    now.UTC(),
	}
}
