package sizing

import (
	"testing"

	"arbitrage/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestSizeBaseEntry_RiskLimited(t *testing.T) {
	in := Input{
		EquityHighWater: 100000,
		Equity:          100000,
		AvailableMargin: 1000000,
		StopDistance:    50,
		LotSize:         25,
		PointValue:      1,
		RiskPercent:     1.5,
		MarginPerLot:    1,
	}
	result := SizeBaseEntry(in)

	assert.Equal(t, LimiterRisk, result.Limiter)
	assert.Equal(t, result.RiskLots, result.FinalLots)
	assert.Greater(t, result.FinalLots, 0)
}

func TestSizeBaseEntry_MarginLimited(t *testing.T) {
	in := Input{
		EquityHighWater: 1000000,
		Equity:          1000000,
		AvailableMargin: 10000,
		StopDistance:    10,
		LotSize:         25,
		PointValue:      1,
		RiskPercent:     1.5,
		MarginPerLot:    5000,
	}
	result := SizeBaseEntry(in)

	assert.Equal(t, LimiterMargin, result.Limiter)
	assert.Equal(t, 2, result.MarginLots)
	assert.Equal(t, result.MarginLots, result.FinalLots)
}

func TestSizeBaseEntry_VolatilityLimited(t *testing.T) {
	in := Input{
		EquityHighWater:   1000000,
		Equity:            1000000,
		AvailableMargin:   10000000,
		StopDistance:      1,
		ATR:               100,
		LotSize:           25,
		PointValue:        1,
		RiskPercent:       10,
		VolatilityPercent: 0.5,
		UseVolatility:     true,
		MarginPerLot:      1,
	}
	result := SizeBaseEntry(in)

	assert.Equal(t, LimiterVolatility, result.Limiter)
	assert.Less(t, result.VolatilityLots, result.RiskLots)
}

func TestSizeBaseEntry_ZeroInputsYieldZeroLots(t *testing.T) {
	result := SizeBaseEntry(Input{})
	assert.Equal(t, 0, result.FinalLots)
}

func TestSizePyramid_ShrinksBySuccessiveLevel(t *testing.T) {
	base := Input{
		EquityHighWater: 1000000,
		Equity:          1000000,
		AvailableMargin: 1000000,
		StopDistance:    10,
		LotSize:         25,
		PointValue:      1,
		RiskPercent:     5,
		MarginPerLot:    1,
	}
	level1 := SizePyramid(PyramidInput{Base: base, BaseRisk: 100000, UnrealizedPnL: 200000, PyramidLevel: 1, PyramidStopDist: 10})
	level2 := SizePyramid(PyramidInput{Base: base, BaseRisk: 100000, UnrealizedPnL: 200000, PyramidLevel: 2, PyramidStopDist: 10})

	assert.GreaterOrEqual(t, level1.FinalLots, level2.FinalLots)
}

func TestSizePyramid_ProfitConstraintCapsLots(t *testing.T) {
	base := Input{
		EquityHighWater: 1000000,
		Equity:          1000000,
		AvailableMargin: 1000000,
		StopDistance:    1,
		LotSize:         25,
		PointValue:      1,
		RiskPercent:     50,
		MarginPerLot:    1,
	}
	result := SizePyramid(PyramidInput{
		Base: base, BaseRisk: 1000, UnrealizedPnL: 1000, PyramidLevel: 1, PyramidStopDist: 100,
	})

	assert.Equal(t, LimiterProfit, result.Limiter)
}

func TestPyramidGate(t *testing.T) {
	ok, reason := PyramidGate(100, 10, 1.0, 1, 6)
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = PyramidGate(100, 10, 1.0, 6, 6)
	assert.False(t, ok)
	assert.Equal(t, "pyramid_level_cap_reached", reason)

	ok, reason = PyramidGate(100, 0, 1.0, 1, 6)
	assert.False(t, ok)
	assert.Equal(t, "missing_atr", reason)

	ok, reason = PyramidGate(5, 10, 1.0, 1, 6)
	assert.False(t, ok)
	assert.Equal(t, "insufficient_price_advance", reason)
}

func TestApplyTestModeOverride(t *testing.T) {
	orderLots, calcLots := ApplyTestModeOverride(true, Result{FinalLots: 10})
	assert.Equal(t, 1, orderLots)
	assert.Equal(t, 10, calcLots)

	orderLots, calcLots = ApplyTestModeOverride(false, Result{FinalLots: 10})
	assert.Equal(t, 10, orderLots)
	assert.Equal(t, 10, calcLots)
}

func TestInstrumentPointValue(t *testing.T) {
	assert.Equal(t, 1.0, InstrumentPointValue(config.InstrumentConfig{LotSize: 25}))
	assert.Equal(t, 1.0, InstrumentPointValue(config.InstrumentConfig{LotSize: 0}))
}
