// Package sizing implements the three-constraint position sizer:
// risk-based, margin-based, and optional volatility-based lot
// counts, taking the minimum, plus the pyramid profit constraint.
package sizing

import (
	"math"

	"arbitrage/internal/config"
)

// Limiter names which constraint bound the final lot count.
type Limiter string

const (
	LimiterRisk       Limiter = "risk"
	LimiterMargin     Limiter = "margin"
	LimiterVolatility Limiter = "volatility"
	LimiterProfit     Limiter = "profit" // pyramid-only
)

// Input bundles everything BaseEntry needs, consulting the portfolio's
// equity high-water mark.
type Input struct {
	EquityHighWater  float64
	Equity           float64
	AvailableMargin  float64
	StopDistance     float64
	ATR              float64
	LotSize          int
	PointValue       float64
	MarginPerLot     float64
	RiskPercent      float64
	VolatilityPercent float64
	UseVolatility    bool
}

// Result is the sizer's full output, persisted as the audit row's
// SizingResult sub-record.
type Result struct {
	RiskLots       int
	MarginLots     int
	VolatilityLots int
	FinalLots      int
	Limiter        Limiter
}

// SizeBaseEntry computes the three candidate lot counts and returns the
// minimum, tagging which constraint bound it. Zero lots is a valid
// result; callers reject on FinalLots == 0.
func SizeBaseEntry(in Input) Result {
	riskLots := 0
	if in.StopDistance > 0 && in.LotSize > 0 && in.PointValue > 0 {
		riskLots = int(math.Floor((in.EquityHighWater * in.RiskPercent / 100) / (in.StopDistance * float64(in.LotSize) * in.PointValue)))
	}

	marginLots := 0
	if in.MarginPerLot > 0 {
		marginLots = int(math.Floor(in.AvailableMargin / in.MarginPerLot))
	}

	volLots := riskLots // default: don't constrain further when disabled
	if in.UseVolatility && in.ATR > 0 && in.LotSize > 0 && in.PointValue > 0 {
		volLots = int(math.Floor((in.Equity * in.VolatilityPercent / 100) / (in.ATR * float64(in.LotSize) * in.PointValue)))
	}

	final := riskLots
	limiter := LimiterRisk
	if marginLots < final {
		final = marginLots
		limiter = LimiterMargin
	}
	if in.UseVolatility && volLots < final {
		final = volLots
		limiter = LimiterVolatility
	}
	if final < 0 {
		final = 0
	}

	return Result{
		RiskLots:       riskLots,
		MarginLots:     marginLots,
		VolatilityLots: volLots,
		FinalLots:      final,
		Limiter:        limiter,
	}
}

// PyramidInput bundles the additional fields needed for a pyramid add's
// profit constraint.
type PyramidInput struct {
	Base            Input
	BaseRisk        float64 // currently committed risk amount for the instrument
	UnrealizedPnL   float64 // base position's current unrealized profit
	PyramidLevel    int     // 1-indexed level of this add
	PyramidStopDist float64
}

// shrinkFactor returns the multiplier applied to successive pyramid
// levels, halving the effective add size every level beyond the first.
func shrinkFactor(level int) float64 {
	if level <= 1 {
		return 1.0
	}
	return 1.0 / math.Pow(2, float64(level-1))
}

// SizePyramid applies the base three-constraint sizing and then caps the
// result so that post-entry total risk (including the new stop distance)
// never exceeds base risk plus the excess unrealized profit beyond that
// base risk — only "house money" funds the add.
func SizePyramid(in PyramidInput) Result {
	result := SizeBaseEntry(in.Base)

	excessProfit := in.UnrealizedPnL - in.BaseRisk
	if excessProfit < 0 {
		excessProfit = 0
	}

	if in.PyramidStopDist > 0 && in.Base.LotSize > 0 && in.Base.PointValue > 0 {
		riskBudget := in.BaseRisk + excessProfit
		maxLotsByProfit := int(math.Floor(riskBudget / (in.PyramidStopDist * float64(in.Base.LotSize) * in.Base.PointValue)))
		if maxLotsByProfit < result.FinalLots {
			result.FinalLots = maxLotsByProfit
			result.Limiter = LimiterProfit
		}
	}

	shrink := shrinkFactor(in.PyramidLevel)
	result.FinalLots = int(math.Floor(float64(result.FinalLots) * shrink))
	if result.FinalLots < 0 {
		result.FinalLots = 0
	}

	return result
}

// PyramidGate admits or rejects a pyramid add based on price advance
// since the last pyramid entry, the configured level cap, and ATR.
func PyramidGate(priceAdvance, atr float64, minATRAdvance float64, currentLevel, maxLevel int) (bool, string) {
	if currentLevel >= maxLevel {
		return false, "pyramid_level_cap_reached"
	}
	if atr <= 0 {
		return false, "missing_atr"
	}
	if priceAdvance < minATRAdvance*atr {
		return false, "insufficient_price_advance"
	}
	return true, ""
}

// ApplyTestModeOverride implements the test-mode sizing override: the
// sizer's calculated value is logged, but the quantity actually sent to
// the broker is forced to 1 lot.
func ApplyTestModeOverride(testMode bool, result Result) (orderLots int, calculatedLots int) {
	if testMode {
		return 1, result.FinalLots
	}
	return result.FinalLots, result.FinalLots
}

// InstrumentPointValue returns the value of a one-point move per unit of
// an instrument; the sizer multiplies it by the lot size separately. It
// returns 1.0 for every instrument: InstrumentConfig has no point-value
// field.
func InstrumentPointValue(instr config.InstrumentConfig) float64 {
	if instr.LotSize <= 0 {
		return 1.0
	}
	return 1.0
}
