package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"arbitrage/internal/broker"
	"arbitrage/internal/config"
	"arbitrage/internal/execution"
	"arbitrage/internal/metrics"
	"arbitrage/internal/models"
	"arbitrage/internal/sizing"
	"arbitrage/internal/validate"
	"arbitrage/pkg/utils"
)

// processBaseEntry implements the BASE_ENTRY signal branch: size,
// gate, validate execution, execute, then persist the new position.
func (e *Engine) processBaseEntry(ctx context.Context, sig models.Signal, audit *models.SignalAudit) {
	instr := e.instrumentConfig(sig.Instrument)

	if existing := e.portfolio.BasePosition(sig.Instrument); existing != nil {
		audit.Outcome = models.OutcomeRejectedValidation
		audit.OutcomeReason = "base_position_already_open"
		return
	}

	sizeResult := sizing.SizeBaseEntry(e.sizingInput(sig, instr))
	audit.Sizing = &models.SizingResult{
		RiskLots: sizeResult.RiskLots, MarginLots: sizeResult.MarginLots,
		VolatilityLots: sizeResult.VolatilityLots, FinalLots: sizeResult.FinalLots,
		Limiter: string(sizeResult.Limiter),
	}
	if sizeResult.FinalLots <= 0 {
		audit.Outcome = models.OutcomeRejectedRisk
		audit.OutcomeReason = "zero_lots_sized"
		return
	}

	estRiskPct := e.risk.RiskPercent
	estVolPct := e.risk.VolatilityPercent
	allowed, reason := e.portfolio.CheckPortfolioGate(estRiskPct, estVolPct)
	audit.Risk = &models.RiskAssessment{Allowed: allowed, Reason: reason, EstimatedRiskPct: estRiskPct, EstimatedVolPct: estVolPct}
	if !allowed {
		audit.Outcome = models.OutcomeRejectedRisk
		audit.OutcomeReason = reason
		return
	}

	execResult := validate.ValidateExecution(ctx, e.broker, sig, sizeResult.FinalLots, validate.ExecutionConfig{
		BaseEntryDivergencePct: e.risk.BaseEntryDivergencePct, PyramidDivergencePct: e.risk.PyramidDivergencePct,
	})
	audit.Validation = &models.ValidationResult{Stage: "execution", Passed: execResult.Passed, Reason: execResult.Reason, Bypassed: execResult.Bypassed}
	if !execResult.Passed {
		audit.Outcome = models.OutcomeRejectedValidation
		audit.OutcomeReason = execResult.Reason
		return
	}
	lots := sizeResult.FinalLots
	if execResult.AdjustedLots > 0 && execResult.AdjustedLots < lots {
		lots = execResult.AdjustedLots
	}

	pos, execRes := e.executeEntry(ctx, sig, instr, lots)
	audit.Execution = execRes
	if pos == nil {
		audit.Outcome = models.OutcomeFailedOrder
		audit.OutcomeReason = execRes.Notes
		return
	}

	pos.IsBasePosition = true
	pos.Label = sig.Position
	pos.InitialStop, pos.CurrentStop = sig.Stop, sig.Stop
	pos.HighestClose = sig.Price
	pos.ID = sig.Instrument + "_" + sig.Position
	pos.Instrument = sig.Instrument
	pos.EntryTimestamp = sig.Timestamp
	pos.Lots, pos.LotSize = lots, instr.LotSize
	pos.Quantity = pos.ImpliedQuantity()
	pos.Status = models.PositionOpen

	if err := e.portfolio.AddPosition(pos); err != nil {
		audit.Outcome = models.OutcomeFailedOrder
		audit.OutcomeReason = err.Error()
		return
	}
	pyr := e.portfolio.PyramidState(sig.Instrument)
	pyr.BasePositionID, pyr.LastEntryPrice, pyr.PyramidLevel = pos.ID, sig.Price, 1

	e.persist(ctx, pos, pyr)

	audit.Outcome = models.OutcomeProcessed
	audit.OutcomeReason = "base_entry_executed"
}

// processPyramid implements the PYRAMID branch.
func (e *Engine) processPyramid(ctx context.Context, sig models.Signal, audit *models.SignalAudit) {
	instr := e.instrumentConfig(sig.Instrument)
	base := e.portfolio.BasePosition(sig.Instrument)
	if base == nil {
		audit.Outcome = models.OutcomeRejectedValidation
		audit.OutcomeReason = "no_base_position_for_pyramid"
		return
	}
	pyr := e.portfolio.PyramidState(sig.Instrument)

	priceAdvance := math.Abs(sig.Price - pyr.LastEntryPrice)
	ok, reason := sizing.PyramidGate(priceAdvance, sig.ATR, e.risk.PyramidMinATRAdvance, pyr.PyramidLevel, e.risk.PyramidMaxLevel)
	if !ok {
		audit.Outcome = models.OutcomeRejectedRisk
		audit.OutcomeReason = reason
		return
	}

	baseRisk := math.Abs(base.EntryPrice-base.InitialStop) * float64(base.Lots*base.LotSize)
	pyramidInput := sizing.PyramidInput{
		Base: e.sizingInput(sig, instr), BaseRisk: baseRisk, UnrealizedPnL: base.UnrealizedPnL,
		PyramidLevel: pyr.PyramidLevel + 1, PyramidStopDist: math.Abs(sig.Price - sig.Stop),
	}
	sizeResult := sizing.SizePyramid(pyramidInput)
	audit.Sizing = &models.SizingResult{
		RiskLots: sizeResult.RiskLots, MarginLots: sizeResult.MarginLots,
		VolatilityLots: sizeResult.VolatilityLots, FinalLots: sizeResult.FinalLots, Limiter: string(sizeResult.Limiter),
	}
	if sizeResult.FinalLots <= 0 {
		audit.Outcome = models.OutcomeRejectedRisk
		audit.OutcomeReason = "zero_lots_sized"
		return
	}

	pos, execRes := e.executeEntry(ctx, sig, instr, sizeResult.FinalLots)
	audit.Execution = execRes
	if pos == nil {
		audit.Outcome = models.OutcomeFailedOrder
		audit.OutcomeReason = execRes.Notes
		return
	}

	pos.Label = sig.Position
	pos.ID = sig.Instrument + "_" + sig.Position
	pos.Instrument = sig.Instrument
	pos.InitialStop, pos.CurrentStop = sig.Stop, sig.Stop
	pos.HighestClose = sig.Price
	pos.EntryTimestamp = sig.Timestamp
	pos.Lots, pos.LotSize = sizeResult.FinalLots, instr.LotSize
	pos.Quantity = pos.ImpliedQuantity()
	pos.Status = models.PositionOpen

	if err := e.portfolio.AddPosition(pos); err != nil {
		audit.Outcome = models.OutcomeFailedOrder
		audit.OutcomeReason = err.Error()
		return
	}
	pyr.LastEntryPrice = sig.Price
	pyr.PyramidLevel++
	e.persist(ctx, pos, pyr)

	audit.Outcome = models.OutcomeProcessed
	audit.OutcomeReason = "pyramid_executed"
}

// processExit implements the EXIT branch, including the ALL sentinel.
func (e *Engine) processExit(ctx context.Context, sig models.Signal, audit *models.SignalAudit) {
	instr := e.instrumentConfig(sig.Instrument)

	var targets []*models.Position
	if sig.Position == models.PositionAll {
		targets = e.portfolio.OpenPositionsFor(sig.Instrument)
	} else if pos := e.portfolio.GetPosition(sig.Instrument + "_" + sig.Position); pos != nil && pos.IsOpen() {
		targets = []*models.Position{pos}
	}
	if len(targets) == 0 {
		audit.Outcome = models.OutcomeRejectedValidation
		audit.OutcomeReason = "no_matching_open_position"
		return
	}

	var lastExec *models.ExecutionResult
	closedAny := false
	for _, pos := range targets {
		pos.Status = models.PositionClosing // re-entry guard before order
		execRes := e.executeExit(ctx, sig, instr, pos)
		lastExec = execRes
		if execRes.Status != string(execution.StatusExecuted) && execRes.Status != string(execution.StatusPartial) {
			pos.Status = models.PositionOpen // revert guard, exit failed
			continue
		}
		realized, err := e.portfolio.ClosePosition(pos.ID, execRes.FillPrice, sig.Timestamp)
		if err != nil {
			continue
		}
		pos.RealizedPnL = realized
		closedAny = true
		e.persist(ctx, pos, nil)
	}

	audit.Execution = lastExec
	if !closedAny {
		audit.Outcome = models.OutcomeFailedOrder
		audit.OutcomeReason = "exit_execution_failed"
		return
	}
	audit.Outcome = models.OutcomeProcessed
	audit.OutcomeReason = "exit_executed"
}

// processMarketData implements the trailing-stop MARKET_DATA branch.
func (e *Engine) processMarketData(ctx context.Context, sig models.Signal, audit *models.SignalAudit) {
	instr := e.instrumentConfig(sig.Instrument)
	positions := e.portfolio.OpenPositionsFor(sig.Instrument)
	if len(positions) == 0 {
		audit.Outcome = models.OutcomeProcessed
		audit.OutcomeReason = "no_open_positions"
		return
	}

	const trailK = 2.0
	triggered := 0
	for _, pos := range positions {
		candidate := sig.Price - trailK*sig.ATR
		pos.TrailStop(candidate)

		if sig.Price >= pos.CurrentStop {
			continue
		}
		pos.Status = models.PositionClosing
		exitSig := sig
		exitSig.Kind = models.KindExit
		exitSig.Position = pos.Label
		exitSig.ExitReason = "trailing_stop"
		execRes := e.executeExit(ctx, exitSig, instr, pos)
		if execRes.Status != string(execution.StatusExecuted) && execRes.Status != string(execution.StatusPartial) {
			pos.Status = models.PositionOpen
			continue
		}
		realized, err := e.portfolio.ClosePosition(pos.ID, execRes.FillPrice, sig.Timestamp)
		if err == nil {
			pos.RealizedPnL = realized
			triggered++
			e.persist(ctx, pos, nil)
		}
	}

	audit.Outcome = models.OutcomeProcessed
	audit.OutcomeReason = "trailing_stop_evaluated"
	if triggered > 0 {
		audit.OutcomeReason = "trailing_stop_exit_triggered"
	}
}

// executeEntry runs the progressive or synthetic entry execution depending on
// whether the instrument is two-leg, returning a freshly built
// (unpersisted, unregistered) Position on success.
func (e *Engine) executeEntry(ctx context.Context, sig models.Signal, instr config.InstrumentConfig, lots int) (*models.Position, *models.ExecutionResult) {
	if instr.IsTwoLeg {
		return e.executeSyntheticEntry(ctx, sig, instr, lots)
	}

	quote, err := e.broker.Quote(ctx, sig.Instrument)
	limitPrice := sig.Price
	if err == nil {
		limitPrice = quote.Mid()
	}
	action := broker.ActionBuy
	started := time.Now()
	res := e.progressive.Execute(ctx, execution.Request{
		Symbol: sig.Instrument, Action: action, Exchange: exchangeFor(instr), Product: "NRML",
		Quantity: float64(lots * instr.LotSize), LimitPrice: limitPrice, SignalPrice: sig.Price,
	})
	metrics.RecordOrder(sig.Instrument, "single", string(res.Status), float64(time.Since(started).Milliseconds()))
	execRes := &models.ExecutionResult{Status: string(res.Status), FillPrice: res.FillPrice, FilledLots: int(res.FilledLots), SlippagePct: res.SlippagePct, Notes: res.Notes}
	if res.Status == execution.StatusRejected {
		return nil, execRes
	}
	return &models.Position{EntryPrice: res.FillPrice}, execRes
}

func (e *Engine) executeSyntheticEntry(ctx context.Context, sig models.Signal, instr config.InstrumentConfig, lots int) (*models.Position, *models.ExecutionResult) {
	quote, err := e.broker.Quote(ctx, sig.Instrument)
	mid := sig.Price
	if err == nil {
		mid = quote.Mid()
	}
	strike := execution.RoundToStrikeInterval(mid, instr.StrikeInterval, instr.StrikeInterval >= 1000)

	started := time.Now()
	result := e.synthetic.Entry(ctx, execution.SyntheticRequest{
		Put:  execution.SyntheticLeg{Symbol: syntheticSymbol(sig.Instrument, "PE", strike), Exchange: broker.ExchangeNFO, Product: "NRML"},
		Call: execution.SyntheticLeg{Symbol: syntheticSymbol(sig.Instrument, "CE", strike), Exchange: broker.ExchangeNFO, Product: "NRML"},
		Quantity: float64(lots * instr.LotSize), PutLimit: mid, CallLimit: mid, SignalPrice: sig.Price, Strike: strike,
	})
	status := syntheticStatus(result.Outcome)
	elapsed := float64(time.Since(started).Milliseconds())
	metrics.RecordOrder(sig.Instrument, "put", string(status), elapsed)
	metrics.RecordOrder(sig.Instrument, "call", string(status), elapsed)
	if result.Outcome == execution.SyntheticRollbackFailed {
		metrics.SyntheticRollbacksTotal.WithLabelValues("rollback_failed_critical").Inc()
	} else if result.Outcome == execution.SyntheticFailedCECovered {
		metrics.SyntheticRollbacksTotal.WithLabelValues("failed_ce_covered").Inc()
	}
	execRes := &models.ExecutionResult{Status: string(status), Notes: result.Notes}
	e.notifyIfCritical(ctx, sig.Instrument, result.Outcome, result.Notes)
	if result.Outcome != execution.SyntheticSuccess {
		return nil, execRes
	}
	execRes.FillPrice = result.SyntheticPrice
	return &models.Position{
		EntryPrice: result.SyntheticPrice, IsTwoLeg: true, Strike: strike,
		PutSymbol: syntheticSymbol(sig.Instrument, "PE", strike), CallSymbol: syntheticSymbol(sig.Instrument, "CE", strike),
		PutPrice: result.PutFill.FillPrice, CallPrice: result.CallFill.FillPrice,
	}, execRes
}

func (e *Engine) executeExit(ctx context.Context, sig models.Signal, instr config.InstrumentConfig, pos *models.Position) *models.ExecutionResult {
	if instr.IsTwoLeg {
		started := time.Now()
		result := e.synthetic.Exit(ctx, execution.SyntheticRequest{
			Put: execution.SyntheticLeg{Symbol: pos.PutSymbol, Exchange: broker.ExchangeNFO, Product: "NRML"},
			Call: execution.SyntheticLeg{Symbol: pos.CallSymbol, Exchange: broker.ExchangeNFO, Product: "NRML"},
			Quantity: pos.Quantity, PutLimit: sig.Price, CallLimit: sig.Price, SignalPrice: sig.Price, Strike: pos.Strike,
		})
		status := syntheticStatus(result.Outcome)
		elapsed := float64(time.Since(started).Milliseconds())
		metrics.RecordOrder(sig.Instrument, "put", string(status), elapsed)
		metrics.RecordOrder(sig.Instrument, "call", string(status), elapsed)
		if result.Outcome == execution.SyntheticRollbackFailed {
			metrics.SyntheticRollbacksTotal.WithLabelValues("rollback_failed_critical").Inc()
		} else if result.Outcome == execution.SyntheticFailedCECovered {
			metrics.SyntheticRollbacksTotal.WithLabelValues("failed_ce_covered").Inc()
		}
		e.notifyIfCritical(ctx, sig.Instrument, result.Outcome, result.Notes)
		return &models.ExecutionResult{Status: string(status), FillPrice: result.SyntheticPrice, Notes: result.Notes}
	}

	quote, err := e.broker.Quote(ctx, sig.Instrument)
	limitPrice := sig.Price
	if err == nil {
		limitPrice = quote.Mid()
	}
	started := time.Now()
	res := e.progressive.Execute(ctx, execution.Request{
		Symbol: sig.Instrument, Action: broker.ActionSell, Exchange: exchangeFor(instr), Product: "NRML",
		Quantity: pos.Quantity, LimitPrice: limitPrice, SignalPrice: sig.Price,
	})
	metrics.RecordOrder(sig.Instrument, "single", string(res.Status), float64(time.Since(started).Milliseconds()))
	return &models.ExecutionResult{Status: string(res.Status), FillPrice: res.FillPrice, FilledLots: int(res.FilledLots), SlippagePct: res.SlippagePct, Notes: res.Notes}
}

func (e *Engine) persist(ctx context.Context, pos *models.Position, pyr *models.PyramidState) {
	if e.store == nil {
		return
	}
	if pos != nil {
		if err := e.store.SavePosition(ctx, pos); err != nil && e.log != nil {
			e.log.Error("engine: failed to persist position", utils.Err(err))
		}
	}
	if pyr != nil {
		if err := e.store.SavePyramidingState(ctx, pyr); err != nil && e.log != nil {
			e.log.Error("engine: failed to persist pyramid state", utils.Err(err))
		}
	}
	state := e.portfolio.State()
	if err := e.store.SavePortfolioState(ctx, &state); err != nil && e.log != nil {
		e.log.Error("engine: failed to persist portfolio state", utils.Err(err))
	}
}

// notifyIfCritical pushes a notify-only alert through the confirmation
// manager's chat channel when a synthetic leg could not be rolled back,
// the single outcome that requires immediate operator attention.
func (e *Engine) notifyIfCritical(ctx context.Context, instrument string, outcome execution.SyntheticOutcome, notes string) {
	if e.confirm == nil || outcome != execution.SyntheticRollbackFailed {
		return
	}
	e.confirm.Notify(ctx, fmt.Sprintf("%s: %s", instrument, notes), "critical")
}

func syntheticStatus(o execution.SyntheticOutcome) execution.Status {
	switch o {
	case execution.SyntheticSuccess:
		return execution.StatusExecuted
	case execution.SyntheticFailedCECovered:
		return execution.StatusPartial
	default:
		return execution.StatusRejected
	}
}

func exchangeFor(instr config.InstrumentConfig) string {
	if instr.IsTwoLeg {
		return broker.ExchangeNFO
	}
	return broker.ExchangeMCX
}

// syntheticSymbol builds a two-leg option symbol from the instrument,
// the integer strike and the option type, e.g. BANKNIFTY50200PE. The
// symbol carries no expiry token.
func syntheticSymbol(instrument, optionType string, strike float64) string {
	return fmt.Sprintf("%s%d%s", instrument, int(strike), optionType)
}
