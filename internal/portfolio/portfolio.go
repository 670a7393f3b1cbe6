// Package portfolio holds the leader's authoritative in-memory positions
// and account state. Ownership is arena-style:
// Portfolio owns Position values by id; nothing outside this package
// holds a pointer across a mutation boundary without going through it.
package portfolio

import (
	"fmt"
	"sync"
	"time"

	"arbitrage/internal/metrics"
	"arbitrage/internal/models"
	"arbitrage/pkg/utils"
)

// GateConfig carries the ceilings the portfolio-level risk gate enforces.
type GateConfig struct {
	RiskCeilingPct float64
	VolCeilingPct  float64
}

// Portfolio is the process-wide, leader-owned holder of open positions
// and account state. All mutating methods take the single global lock
// guarding all portfolio state.
type Portfolio struct {
	mu sync.Mutex

	positions map[string]*models.Position // insertion order preserved via order slice
	order     []string

	baseByInstrument map[string]string // instrument -> base position id
	pyramids         map[string]*models.PyramidState

	state models.PortfolioState
	gate  GateConfig

	log *utils.Logger
}

// New constructs an empty Portfolio seeded with the given initial state
// and gate thresholds.
func New(initial models.PortfolioState, gate GateConfig, log *utils.Logger) *Portfolio {
	return &Portfolio{
		positions:        make(map[string]*models.Position),
		baseByInstrument: make(map[string]string),
		pyramids:         make(map[string]*models.PyramidState),
		state:            initial,
		gate:             gate,
		log:              log,
	}
}

// AddPosition inserts a new position, registering it as the instrument's
// base when IsBasePosition is set. Exactly one base position may exist
// per instrument at a time.
func (p *Portfolio) AddPosition(pos *models.Position) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pos.IsBasePosition {
		if existing, ok := p.baseByInstrument[pos.Instrument]; ok && existing != "" {
			return fmt.Errorf("instrument %s already has base position %s", pos.Instrument, existing)
		}
		p.baseByInstrument[pos.Instrument] = pos.ID
	}

	if _, exists := p.positions[pos.ID]; !exists {
		p.order = append(p.order, pos.ID)
	}
	p.positions[pos.ID] = pos
	metrics.OpenPositions.WithLabelValues(pos.Instrument).Set(float64(p.openCountLocked(pos.Instrument)))
	return nil
}

// openCountLocked counts non-closed positions for instrument. Callers
// must hold p.mu.
func (p *Portfolio) openCountLocked(instrument string) int {
	count := 0
	for _, id := range p.order {
		pos := p.positions[id]
		if pos.Instrument == instrument && pos.Status != models.PositionClosed {
			count++
		}
	}
	return count
}

// ClosePosition marks a position closed, computes realized P&L at
// exitPrice, updates account equity and the high-water mark, and — if
// the position was the instrument's base — clears the base/pyramid
// reference.
func (p *Portfolio) ClosePosition(id string, exitPrice float64, timestamp time.Time) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[id]
	if !ok {
		return 0, fmt.Errorf("position %s not found", id)
	}

	side := "long"
	if pos.IsTwoLeg {
		// Synthetic futures are always modeled long from the combined
		// strike+call-put entry price; direction is baked into EntryPrice.
		side = "long"
	}
	realized := utils.CalculatePNL(side, pos.EntryPrice, exitPrice, pos.Quantity)

	pos.RealizedPnL = realized
	pos.Status = models.PositionClosed

	p.state.ClosedEquity += realized
	p.state.UpdateHighWaterMark()

	if pos.IsBasePosition {
		delete(p.baseByInstrument, pos.Instrument)
		if pyr, ok := p.pyramids[pos.Instrument]; ok {
			pyr.BasePositionID = ""
		}
	}

	metrics.OpenPositions.WithLabelValues(pos.Instrument).Set(float64(p.openCountLocked(pos.Instrument)))
	metrics.EquityHighWater.Set(p.state.EquityHighWater)

	return realized, nil
}

// CheckPortfolioGate enforces the configured ceilings on total portfolio
// risk and volatility percent of equity, given the estimated incremental
// risk/vol a candidate new position would add.
func (p *Portfolio) CheckPortfolioGate(estRiskPct, estVolPct float64) (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	equity := p.state.ClosedEquity
	if equity <= 0 {
		equity = p.state.InitialCapital
	}

	projectedRiskPct := 0.0
	if equity > 0 {
		projectedRiskPct = (p.state.TotalRisk)/equity*100 + estRiskPct
	}
	if p.gate.RiskCeilingPct > 0 && projectedRiskPct > p.gate.RiskCeilingPct {
		return false, "portfolio_risk_ceiling_exceeded"
	}

	projectedVolPct := 0.0
	if equity > 0 {
		projectedVolPct = (p.state.TotalVolatility)/equity*100 + estVolPct
	}
	if p.gate.VolCeilingPct > 0 && projectedVolPct > p.gate.VolCeilingPct {
		return false, "portfolio_volatility_ceiling_exceeded"
	}

	metrics.PortfolioRiskPercent.Set(projectedRiskPct)
	return true, ""
}

// GetPosition returns the position by id, or nil if unknown.
func (p *Portfolio) GetPosition(id string) *models.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[id]
}

// BasePosition returns the current base position for instrument, or nil.
func (p *Portfolio) BasePosition(instrument string) *models.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.baseByInstrument[instrument]
	if !ok {
		return nil
	}
	return p.positions[id]
}

// OpenPositionsFor returns every open/closing position on instrument, in
// insertion order, for EXIT-ALL and MARKET_DATA trailing.
func (p *Portfolio) OpenPositionsFor(instrument string) []*models.Position {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*models.Position
	for _, id := range p.order {
		pos := p.positions[id]
		if pos.Instrument == instrument && pos.Status != models.PositionClosed {
			out = append(out, pos)
		}
	}
	return out
}

// PyramidState returns (creating if absent) the pyramid bookkeeping
// record for instrument.
func (p *Portfolio) PyramidState(instrument string) *models.PyramidState {
	p.mu.Lock()
	defer p.mu.Unlock()
	pyr, ok := p.pyramids[instrument]
	if !ok {
		pyr = &models.PyramidState{Instrument: instrument}
		p.pyramids[instrument] = pyr
	}
	return pyr
}

// State returns a copy of the current account-wide state.
func (p *Portfolio) State() models.PortfolioState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// WithLock runs fn holding the portfolio's single process-wide lock,
// for multi-step transactions that must be atomic in-process (e.g. "add
// position + persist + update pyramid state").
func (p *Portfolio) WithLock(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}
