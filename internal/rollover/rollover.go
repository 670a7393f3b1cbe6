// Package rollover implements the atomic close-then-open rollover
// engine: a manager holding the repositories and executor it needs, a
// Result struct accumulating outcomes, and a scan-then-act phased
// method.
package rollover

import (
	"context"
	"fmt"
	"math"
	"time"

	"arbitrage/internal/broker"
	"arbitrage/internal/config"
	"arbitrage/internal/execution"
	"arbitrage/internal/expiry"
	"arbitrage/internal/metrics"
	"arbitrage/internal/models"
	"arbitrage/internal/persistence"
	"arbitrage/internal/portfolio"
	"arbitrage/pkg/retry"
	"arbitrage/pkg/utils"
)

// Candidate is a position due for rollover.
type Candidate struct {
	Position    *models.Position
	DaysToExpiry int
}

// Outcome classifies one rollover attempt's terminal state.
type Outcome string

const (
	OutcomeRolled       Outcome = "rolled"
	OutcomeFailedFlat   Outcome = "failed_flat" // old leg closed, new leg failed: account is FLAT
	OutcomeSkipped      Outcome = "skipped"     // quote unavailable or old-leg close did not succeed
)

// Result is the per-position outcome of one rollover attempt.
type Result struct {
	PositionID string
	Instrument string
	Outcome    Outcome
	Notes      string
	NewEntryPrice float64
}

// Manager scans open positions for rollover candidates and executes
// the close-old/open-new/reconcile sequence for each.
type Manager struct {
	cfg       map[string]config.InstrumentConfig
	rollCfg   config.RolloverConfig
	store     *persistence.Store
	portfolio *portfolio.Portfolio
	broker    *broker.Client
	synthetic *execution.SyntheticExecutor
	progressive *execution.Executor
	log       *utils.Logger
}

// New builds a rollover Manager.
func New(instruments map[string]config.InstrumentConfig, rollCfg config.RolloverConfig, store *persistence.Store, pf *portfolio.Portfolio, brokerClient *broker.Client, synth *execution.SyntheticExecutor, prog *execution.Executor, log *utils.Logger) *Manager {
	return &Manager{
		cfg: instruments, rollCfg: rollCfg, store: store, portfolio: pf,
		broker: brokerClient, synthetic: synth, progressive: prog, log: log,
	}
}

// rolloverExecConfig returns the tighter progressive-executor config
// used for rollovers: initial LIMIT offset 0.25%, +0.05% per retry,
// 5 retries x 3s, then MARKET.
func rolloverExecConfig(base execution.Config, rollCfg config.RolloverConfig) execution.Config {
	offsets := make([]float64, 0, rollCfg.MaxRetries+1)
	offset := rollCfg.InitialBufferPct
	for i := 0; i <= rollCfg.MaxRetries; i++ {
		offsets = append(offsets, math.Round(offset*1e4)/1e4)
		offset += rollCfg.IncrementPct
	}
	cfg := base
	cfg.LimitOffsetsPct = offsets
	cfg.AttemptTimeout = time.Duration(rollCfg.RetryIntervalSeconds) * time.Second
	return cfg
}

// Scan finds every open position whose days-to-expiry is at or below
// its instrument's configured rollover threshold.
func (m *Manager) Scan(ctx context.Context, now time.Time, positions []*models.Position) []Candidate {
	var out []Candidate
	for _, pos := range positions {
		if pos.Status != models.PositionOpen || pos.Expiry.IsZero() {
			continue
		}
		instr, ok := m.cfg[pos.Instrument]
		if !ok {
			continue
		}
		days := expiry.DaysTo(now, pos.Expiry)
		if days <= instr.RolloverDays {
			out = append(out, Candidate{Position: pos, DaysToExpiry: days})
		}
	}
	return out
}

// Execute runs the scan-close-open-reconcile sequence for every
// candidate found, during market hours only.
func (m *Manager) Execute(ctx context.Context, now time.Time, marketOpen bool, positions []*models.Position) []Result {
	if !m.rollCfg.Enabled {
		return nil
	}
	if !marketOpen {
		if m.log != nil {
			m.log.Info("rollover: market closed, skipping scan")
		}
		return nil
	}

	candidates := m.Scan(ctx, now, positions)
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, m.rollOne(ctx, now, c))
	}
	return results
}

func (m *Manager) rollOne(ctx context.Context, now time.Time, c Candidate) (result Result) {
	started := time.Now()
	pos := c.Position
	instr := m.cfg[pos.Instrument]
	res := Result{PositionID: pos.ID, Instrument: pos.Instrument}

	defer func() {
		metrics.RolloverLatency.Observe(float64(time.Since(started).Milliseconds()))
		outcome := "failed"
		if result.Outcome == OutcomeRolled {
			outcome = "rolled"
		}
		metrics.RolloversTotal.WithLabelValues(outcome).Inc()
	}()

	newExpiry := m.selectExpiry(now, instr)

	if pos.IsTwoLeg {
		return m.rollTwoLeg(ctx, pos, instr, newExpiry, res)
	}
	return m.rollSingleLeg(ctx, pos, instr, newExpiry, res)
}

func (m *Manager) selectExpiry(now time.Time, instr config.InstrumentConfig) time.Time {
	if instr.UseMonthlyExpiry {
		return expiry.MonthlyExpiry(now, instr.RolloverDays)
	}
	return expiry.WeeklyExpiry(now)
}

func (m *Manager) rollTwoLeg(ctx context.Context, pos *models.Position, instr config.InstrumentConfig, newExpiry time.Time, res Result) Result {
	// 1. Close the old two-leg position (buy put, sell call to flatten).
	quote, err := m.broker.Quote(ctx, pos.Instrument)
	if err != nil {
		res.Outcome = OutcomeSkipped
		res.Notes = "quote unavailable for old-leg close"
		return res
	}

	closeReq := execution.SyntheticRequest{
		Put:         execution.SyntheticLeg{Symbol: pos.PutSymbol, Exchange: instrExchange(instr), Product: "NRML"},
		Call:        execution.SyntheticLeg{Symbol: pos.CallSymbol, Exchange: instrExchange(instr), Product: "NRML"},
		Quantity:    float64(pos.Quantity),
		PutLimit:    quote.Mid(),
		CallLimit:   quote.Mid(),
		SignalPrice: quote.Mid(),
	}
	closeResult := m.synthetic.Exit(ctx, closeReq)
	if closeResult.Outcome != execution.SyntheticSuccess {
		res.Outcome = OutcomeSkipped
		res.Notes = fmt.Sprintf("old-leg close failed: %s", closeResult.Outcome)
		return res
	}

	// 2. Determine new ATM strike from current underlying price.
	newStrike := execution.RoundToStrikeInterval(quote.Mid(), instr.StrikeInterval, instr.StrikeInterval >= 1000)

	// 3. Open new position at the same lot count. Rollback on this leg
	// covers only the NEW first leg; the old position is already flat,
	// so a partial-rollover failure here leaves the account FLAT.
	openReq := execution.SyntheticRequest{
		Put:         execution.SyntheticLeg{Symbol: pos.PutSymbol, Exchange: instrExchange(instr), Product: "NRML"},
		Call:        execution.SyntheticLeg{Symbol: pos.CallSymbol, Exchange: instrExchange(instr), Product: "NRML"},
		Quantity:    float64(pos.Quantity),
		PutLimit:    quote.Mid(),
		CallLimit:   quote.Mid(),
		SignalPrice: quote.Mid(),
		Strike:      newStrike,
	}
	openResult := m.synthetic.Entry(ctx, openReq)
	if openResult.Outcome != execution.SyntheticSuccess {
		res.Outcome = OutcomeFailedFlat
		res.Notes = "new-leg open failed after old-leg close: account is FLAT, manual re-entry required"
		return res
	}

	// 4. Update position record.
	pos.OriginalExpiry = pos.Expiry
	pos.OriginalStrike = pos.Strike
	pos.OriginalEntryPrice = pos.EntryPrice
	pos.Expiry = newExpiry
	pos.Strike = newStrike
	pos.EntryPrice = openResult.SyntheticPrice
	pos.RolloverCount++
	pos.RolloverStatus = models.RolloverRolled
	pos.RolloverPnL += closeResult.PutFill.FillPrice - openResult.PutFill.FillPrice

	res.Outcome = OutcomeRolled
	res.NewEntryPrice = openResult.SyntheticPrice
	return res
}

func (m *Manager) rollSingleLeg(ctx context.Context, pos *models.Position, instr config.InstrumentConfig, newExpiry time.Time, res Result) Result {
	quote, err := m.broker.Quote(ctx, pos.Instrument)
	if err != nil {
		res.Outcome = OutcomeSkipped
		res.Notes = "quote unavailable for old-contract close"
		return res
	}

	execCfg := rolloverExecConfig(m.progressive.Config(), m.rollCfg)
	rollExecutor := execution.NewExecutor(m.broker, execCfg, m.log)

	closeAction := broker.ActionSell
	if pos.Quantity < 0 {
		closeAction = broker.ActionBuy
	}
	closeResult := rollExecutor.Execute(ctx, execution.Request{
		Symbol: pos.Instrument, Action: closeAction, Exchange: instrExchange(instr), Product: "NRML",
		Quantity: absFloat(float64(pos.Quantity)), LimitPrice: quote.Mid(), SignalPrice: quote.Mid(),
	})
	if closeResult.Status == execution.StatusRejected {
		res.Outcome = OutcomeSkipped
		res.Notes = "old-contract close failed"
		return res
	}

	openAction := broker.ActionBuy
	if pos.Quantity < 0 {
		openAction = broker.ActionSell
	}
	openResult := rollExecutor.Execute(ctx, execution.Request{
		Symbol: pos.Instrument, Action: openAction, Exchange: instrExchange(instr), Product: "NRML",
		Quantity: absFloat(float64(pos.Quantity)), LimitPrice: quote.Mid(), SignalPrice: quote.Mid(),
	})
	if openResult.Status == execution.StatusRejected {
		res.Outcome = OutcomeFailedFlat
		res.Notes = "new-contract open failed after old-contract close: account is FLAT, manual re-entry required"
		return res
	}

	pos.OriginalExpiry = pos.Expiry
	pos.OriginalEntryPrice = pos.EntryPrice
	pos.Expiry = newExpiry
	pos.EntryPrice = openResult.FillPrice
	pos.RolloverCount++
	pos.RolloverStatus = models.RolloverRolled
	pos.RolloverPnL += closeResult.FillPrice - openResult.FillPrice

	res.Outcome = OutcomeRolled
	res.NewEntryPrice = openResult.FillPrice
	return res
}

// Reconcile persists every rolled position's new state, retrying once
// on a transient persistence error before giving up and logging the
// discrepancy for manual reconciliation.
func (m *Manager) Reconcile(ctx context.Context, positions []*models.Position, results []Result) error {
	byID := make(map[string]*models.Position, len(positions))
	for _, p := range positions {
		byID[p.ID] = p
	}
	for _, r := range results {
		if r.Outcome != OutcomeRolled {
			continue
		}
		pos, ok := byID[r.PositionID]
		if !ok {
			continue
		}
		err := retry.Do(ctx, func() error {
			return m.store.SavePosition(ctx, pos)
		}, retry.Config{MaxRetries: 2, InitialDelay: 200 * time.Millisecond, MaxDelay: 500 * time.Millisecond, Multiplier: 2.0})
		if err != nil {
			if m.log != nil {
				m.log.Error("rollover: failed to persist rolled position, manual reconciliation required", utils.Err(err), utils.String("position_id", pos.ID))
			}
			return err
		}
	}
	return nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func instrExchange(instr config.InstrumentConfig) string {
	if instr.IsTwoLeg {
		return broker.ExchangeNFO
	}
	return broker.ExchangeMCX
}
