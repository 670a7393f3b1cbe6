package models

// PortfolioState is the single-row account-wide accounting record.
type PortfolioState struct {
	ClosedEquity    float64
	EquityHighWater float64
	TotalRisk       float64 // sum over open positions
	TotalVolatility float64
	MarginUsed      float64
	InitialCapital  float64
}

// UpdateHighWaterMark advances the high-water mark only on a positive
// transition of closed equity.
func (p *PortfolioState) UpdateHighWaterMark() {
	if p.ClosedEquity > p.EquityHighWater {
		p.EquityHighWater = p.ClosedEquity
	}
}

// PyramidState is the per-instrument pyramiding bookkeeping record.
type PyramidState struct {
	Instrument        string
	LastEntryPrice    float64
	BasePositionID    string // empty when no base position is open
	PyramidLevel      int
}

// HasBase reports whether this instrument currently has a base position.
func (p *PyramidState) HasBase() bool {
	return p.BasePositionID != ""
}
