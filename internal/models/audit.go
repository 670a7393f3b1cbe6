package models

import "time"

// AuditOutcome is the terminal classification of a processed signal.
type AuditOutcome string

const (
	OutcomeProcessed          AuditOutcome = "processed"
	OutcomeRejectedValidation AuditOutcome = "rejected_validation"
	OutcomeRejectedRisk       AuditOutcome = "rejected_risk"
	OutcomeRejectedDuplicate  AuditOutcome = "rejected_duplicate"
	OutcomeRejectedMarket     AuditOutcome = "rejected_market"
	OutcomeRejectedManual     AuditOutcome = "rejected_manual"
	OutcomeFailedOrder        AuditOutcome = "failed_order"
	OutcomePartialFill        AuditOutcome = "partial_fill"
	OutcomeSkippedEODExecuted AuditOutcome = "already_executed_at_eod"
)

// ValidationResult is the condition/execution-validation sub-record
// embedded in a SignalAudit row.
type ValidationResult struct {
	Stage    string // "condition" or "execution"
	Passed   bool
	Reason   string
	Severity string // normal|warning|critical
	Bypassed bool
}

// SizingResult is the position-sizing sub-record.
type SizingResult struct {
	RiskLots       int
	MarginLots     int
	VolatilityLots int
	FinalLots      int
	Limiter        string // which constraint bound the result
}

// RiskAssessment is the portfolio-risk-gate sub-record.
type RiskAssessment struct {
	Allowed           bool
	Reason            string
	EstimatedRiskPct  float64
	EstimatedVolPct   float64
}

// ExecutionResult is the order-execution sub-record.
type ExecutionResult struct {
	Status      string // EXECUTED|PARTIAL|REJECTED
	FillPrice   float64
	FilledLots  int
	SlippagePct float64
	Notes       string
}

// SignalAudit is one row per processed signal.
type SignalAudit struct {
	Fingerprint      string
	Instrument       string
	Kind             SignalKind
	Position         string
	SignalTimestamp  time.Time
	ReceivedAt       time.Time
	Outcome          AuditOutcome
	OutcomeReason    string
	Validation       *ValidationResult
	Sizing           *SizingResult
	Risk             *RiskAssessment
	Execution        *ExecutionResult
	ProcessingTimeMS int64
}
