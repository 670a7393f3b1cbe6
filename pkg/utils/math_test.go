package utils

import "testing"

func floatEquals(a, b float64) bool {
	const eps = 1e-9
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < eps
}

func TestRoundToLotSizeNearest(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		lotSize  float64
		expected float64
	}{
		{"exact match", 0.123, 0.001, 0.123},
		{"round down", 0.1234, 0.001, 0.123},
		{"round up", 0.1236, 0.001, 0.124},
		{"midpoint rounds up", 0.1235, 0.001, 0.124},
		{"non-positive lot size disables rounding", 0.123, 0, 0.123},
		{"strike interval", 24365.0, 100.0, 24400.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundToLotSizeNearest(tt.value, tt.lotSize)
			if !floatEquals(result, tt.expected) {
				t.Errorf("RoundToLotSizeNearest(%v, %v) = %v, want %v",
					tt.value, tt.lotSize, result, tt.expected)
			}
		})
	}
}

func TestCalculateSpread(t *testing.T) {
	tests := []struct {
		name      string
		priceHigh float64
		priceLow  float64
		expected  float64
	}{
		{"1% spread", 101.0, 100.0, 1.0},
		{"0.2% spread", 25050.0, 25000.0, 0.2},
		{"0.5% spread", 100.5, 100.0, 0.5},
		{"zero spread", 100.0, 100.0, 0.0},
		{"zero priceLow", 100.0, 0.0, 0.0},
		{"negative priceLow", 100.0, -50.0, 0.0},
		{"fill below reference is negative", 99.0, 100.0, -1.0},
		{"10% spread", 110.0, 100.0, 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateSpread(tt.priceHigh, tt.priceLow)
			if !floatEquals(result, tt.expected) {
				t.Errorf("CalculateSpread(%v, %v) = %v, want %v",
					tt.priceHigh, tt.priceLow, result, tt.expected)
			}
		})
	}
}

func TestCalculatePNL(t *testing.T) {
	tests := []struct {
		name         string
		side         string
		entryPrice   float64
		currentPrice float64
		quantity     float64
		expected     float64
	}{
		{"long profit", "long", 100.0, 110.0, 10.0, 100.0},
		{"long loss", "long", 100.0, 90.0, 10.0, -100.0},
		{"short profit", "short", 100.0, 90.0, 10.0, 100.0},
		{"short loss", "short", 100.0, 110.0, 10.0, -100.0},
		{"unrecognized side yields zero", "flat", 100.0, 110.0, 10.0, 0.0},
		{"zero quantity", "long", 100.0, 110.0, 0.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculatePNL(tt.side, tt.entryPrice, tt.currentPrice, tt.quantity)
			if !floatEquals(result, tt.expected) {
				t.Errorf("CalculatePNL(%q, %v, %v, %v) = %v, want %v",
					tt.side, tt.entryPrice, tt.currentPrice, tt.quantity, result, tt.expected)
			}
		})
	}
}
