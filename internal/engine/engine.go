// Package engine implements the live signal orchestrator:
// dispatch of an accepted, deduplicated signal by kind, wiring
// together validation, sizing, the portfolio gate, execution, and the
// audit log. Grounded on internal/bot/engine.go's Engine struct
// (injected dependencies, a single dispatch entrypoint per inbound
// event) and arbitrage.go's dispatch-by-kind shape, re-themed from
// spread-arbitrage legs to the five signal kinds this system actually
// handles.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arbitrage/internal/broker"
	"arbitrage/internal/config"
	"arbitrage/internal/dedup"
	"arbitrage/internal/execution"
	"arbitrage/internal/models"
	"arbitrage/internal/persistence"
	"arbitrage/internal/portfolio"
	"arbitrage/internal/sizing"
	"arbitrage/internal/validate"
	"arbitrage/pkg/utils"
)

// Confirmer is the subset of internal/confirm's Manager the engine
// needs, kept as an interface so tests can stub it.
type Confirmer interface {
	Request(ctx context.Context, req ConfirmRequest) ConfirmResponse
	Notify(ctx context.Context, message string, severity string)
}

// ConfirmRequest/ConfirmResponse mirror internal/confirm's Request/
// ConfirmationResult shape without importing the telegram-bot-api
// dependency into this package's test surface.
type ConfirmRequest struct {
	ID            string
	Prompt        string
	Options       []string
	DefaultOption string
}

type ConfirmResponse struct {
	Action string
	Source string
}

// Engine dispatches accepted signals to the business logic for their
// kind. Signal processing is serialized by mu, the single in-process
// lock needed to coordinate the webhook handler, EOD jobs,
// and MARKET_DATA updates against each other.
type Engine struct {
	mu sync.Mutex

	portfolio   *portfolio.Portfolio
	store       *persistence.Store
	dedupCache  *dedup.Cache
	broker      *broker.Client
	progressive *execution.Executor
	synthetic   *execution.SyntheticExecutor
	confirm     Confirmer

	risk        config.RiskConfig
	execCfg     config.ExecutionConfig
	instruments map[string]config.InstrumentConfig

	eodExecuted    map[string]bool
	lastEODSignal  map[string]models.Signal

	log *utils.Logger
}

// New builds an Engine wired to its dependencies.
func New(
	pf *portfolio.Portfolio,
	store *persistence.Store,
	dedupCache *dedup.Cache,
	brokerClient *broker.Client,
	progressive *execution.Executor,
	synthetic *execution.SyntheticExecutor,
	confirm Confirmer,
	risk config.RiskConfig,
	execCfg config.ExecutionConfig,
	instruments map[string]config.InstrumentConfig,
	log *utils.Logger,
) *Engine {
	return &Engine{
		portfolio: pf, store: store, dedupCache: dedupCache, broker: brokerClient,
		progressive: progressive, synthetic: synthetic, confirm: confirm,
		risk: risk, execCfg: execCfg, instruments: instruments,
		eodExecuted: make(map[string]bool), lastEODSignal: make(map[string]models.Signal),
		log: log,
	}
}

// Process runs the full signal pipeline for one already-deduplicated,
// leader-confirmed signal, returning the audit row that was (or will
// be) persisted.
func (e *Engine) Process(ctx context.Context, sig models.Signal) *models.SignalAudit {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	fp := sig.Fingerprint()
	audit := &models.SignalAudit{
		Fingerprint: fp, Instrument: sig.Instrument, Kind: sig.Kind,
		Position: sig.Position, SignalTimestamp: sig.Timestamp, ReceivedAt: start,
	}

	if e.eodExecuted[fp] {
		audit.Outcome = models.OutcomeSkippedEODExecuted
		audit.OutcomeReason = "signal already executed at EOD close"
		e.finish(ctx, audit, start)
		return audit
	}

	condCfg := validate.ConditionConfig{MaxSignalAgeSeconds: e.execCfg.MaxSignalAgeSeconds}
	cond := validate.ValidateCondition(sig, condCfg, time.Now())
	audit.Validation = &models.ValidationResult{Stage: "condition", Passed: cond.Passed, Reason: cond.Reason, Severity: string(cond.Severity)}

	if !cond.Passed {
		if cond.Severity == validate.SeverityCritical && e.confirm != nil {
			resp := e.confirm.Request(ctx, ConfirmRequest{
				ID: fp, Prompt: fmt.Sprintf("Signal %s/%s failed condition check (%s). Proceed anyway?", sig.Instrument, sig.Position, cond.Reason),
				Options: []string{"proceed", "abort"}, DefaultOption: "abort",
			})
			audit.Validation.Bypassed = resp.Action == "proceed"
		}
		if !audit.Validation.Bypassed {
			audit.Outcome = models.OutcomeRejectedValidation
			audit.OutcomeReason = cond.Reason
			e.finish(ctx, audit, start)
			return audit
		}
	}

	switch sig.Kind {
	case models.KindBaseEntry:
		e.processBaseEntry(ctx, sig, audit)
	case models.KindPyramid:
		e.processPyramid(ctx, sig, audit)
	case models.KindExit:
		e.processExit(ctx, sig, audit)
	case models.KindEODMonitor:
		e.lastEODSignal[sig.Instrument] = sig
		audit.Outcome = models.OutcomeProcessed
		audit.OutcomeReason = "eod_monitor_slot_updated"
	case models.KindMarketData:
		e.processMarketData(ctx, sig, audit)
	default:
		audit.Outcome = models.OutcomeRejectedValidation
		audit.OutcomeReason = "unknown_signal_kind"
	}

	e.finish(ctx, audit, start)
	return audit
}

func (e *Engine) finish(ctx context.Context, audit *models.SignalAudit, start time.Time) {
	audit.ProcessingTimeMS = time.Since(start).Milliseconds()
	if e.store != nil {
		if err := e.store.LogAudit(ctx, audit); err != nil && e.log != nil {
			e.log.Error("engine: failed to persist audit row", utils.Err(err))
		}
	}
}

// LastEODSignal returns the most recent EOD_MONITOR signal recorded
// for instrument, for the EOD scheduler's condition-check phase.
func (e *Engine) LastEODSignal(instrument string) (models.Signal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.lastEODSignal[instrument]
	return s, ok
}

// MarkEODExecuted records fingerprint as already executed at EOD so a
// later duplicate bar-close signal is skipped. Called after the EOD
// execution phase and after an EOD_MONITOR webhook signal.
func (e *Engine) MarkEODExecuted(fingerprint string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eodExecuted[fingerprint] = true
}

func (e *Engine) instrumentConfig(instrument string) config.InstrumentConfig {
	return e.instruments[instrument]
}

// KnownInstruments returns the configured instrument codes this engine
// will dispatch signals for, for structural validation at the webhook
// ingress.
func (e *Engine) KnownInstruments() []string {
	out := make([]string, 0, len(e.instruments))
	for instr := range e.instruments {
		out = append(out, instr)
	}
	return out
}

func (e *Engine) gateConfig() portfolio.GateConfig {
	return portfolio.GateConfig{RiskCeilingPct: e.risk.PortfolioRiskCeilingPct, VolCeilingPct: e.risk.PortfolioVolCeilingPct}
}

func (e *Engine) sizingInput(sig models.Signal, instr config.InstrumentConfig) sizing.Input {
	state := e.portfolio.State()
	pointValue := sizing.InstrumentPointValue(instr)
	stopDist := sig.Price - sig.Stop
	if stopDist < 0 {
		stopDist = -stopDist
	}
	return sizing.Input{
		EquityHighWater:   state.EquityHighWater,
		Equity:            state.ClosedEquity,
		AvailableMargin:   state.InitialCapital - state.MarginUsed,
		StopDistance:      stopDist,
		ATR:               sig.ATR,
		LotSize:           instr.LotSize,
		PointValue:        pointValue,
		MarginPerLot:      instr.MarginPerLot,
		RiskPercent:       e.risk.RiskPercent,
		VolatilityPercent: e.risk.VolatilityPercent,
		UseVolatility:     e.risk.UseVolatilityConstraint,
	}
}
