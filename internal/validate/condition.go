// Package validate implements the two-stage signal validator:
// condition validation against the signal's own fields, and
// execution validation against a live broker quote.
package validate

import (
	"fmt"
	"time"

	"arbitrage/internal/models"
)

// Severity buckets a signal's age for alerting/audit purposes.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ConditionResult is the outcome of stage-1 validation.
type ConditionResult struct {
	Passed   bool
	Reason   string
	Severity Severity
	AgeSec   float64
}

// ConditionConfig carries the thresholds stage 1 checks against.
type ConditionConfig struct {
	MaxSignalAgeSeconds int
}

// severityForAge buckets age into normal/<10s, warning/<30s, critical/>=30s.
func severityForAge(age time.Duration) Severity {
	switch {
	case age < 10*time.Second:
		return SeverityNormal
	case age < 30*time.Second:
		return SeverityWarning
	default:
		return SeverityCritical
	}
}

// ValidateCondition runs the condition-validation stage against a signal, using now
// as the reference clock so callers (and tests) control time explicitly.
func ValidateCondition(s models.Signal, cfg ConditionConfig, now time.Time) ConditionResult {
	age := now.Sub(s.Timestamp)
	maxAge := time.Duration(cfg.MaxSignalAgeSeconds) * time.Second
	if maxAge <= 0 {
		maxAge = 60 * time.Second
	}

	result := ConditionResult{
		Severity: severityForAge(age),
		AgeSec:   age.Seconds(),
	}

	if age > maxAge {
		result.Reason = "signal_stale"
		return result
	}

	if s.Price <= 0 {
		result.Reason = "invalid_price"
		return result
	}
	if s.Kind != models.KindExit && s.Kind != models.KindEODMonitor && s.Kind != models.KindMarketData {
		if s.Stop <= 0 {
			result.Reason = "invalid_stop"
			return result
		}
		if s.Stop >= s.Price {
			result.Reason = "stop_not_below_price"
			return result
		}
	}
	if !s.IsValidPositionLabel() {
		result.Reason = "invalid_position_label"
		return result
	}
	if s.Kind == models.KindExit && s.ExitReason == "" {
		result.Reason = "missing_exit_reason"
		return result
	}

	result.Passed = true
	return result
}

func (r ConditionResult) String() string {
	if r.Passed {
		return fmt.Sprintf("passed (age=%.1fs, severity=%s)", r.AgeSec, r.Severity)
	}
	return fmt.Sprintf("failed: %s (age=%.1fs, severity=%s)", r.Reason, r.AgeSec, r.Severity)
}
