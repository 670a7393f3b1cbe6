package validate

import (
	"context"
	"math"
	"time"

	"arbitrage/internal/broker"
	"arbitrage/internal/models"
	"arbitrage/pkg/retry"
)

// quoteRetryConfig implements the 2s-timeout, 3-retry,
// 0/0.5s/1.0s-backoff broker quote fetch.
var quoteRetryConfig = retry.Config{
	MaxRetries:   3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     time.Second,
	Multiplier:   2.0,
}

// ExecutionResult is the outcome of stage-2 validation.
type ExecutionResult struct {
	Passed           bool
	Bypassed         bool // broker quote unavailable; signal price used instead
	Reason           string
	BrokerMid        float64
	DivergencePct    float64
	RiskIncreasePct  float64
	AdjustedLots     int // 0 without a risk increase; lots below a 10% increase; reduced by the increase % at >=10% (min 0)
}

// ExecutionConfig carries the per-kind divergence thresholds.
type ExecutionConfig struct {
	BaseEntryDivergencePct float64
	PyramidDivergencePct   float64
}

// ValidateExecution runs the execution-validation stage. brokerClient.Quote is
// attempted with a 2s per-call timeout and up to 3 retries; total
// failure bypasses the check and uses the signal's own price.
func ValidateExecution(ctx context.Context, brokerClient *broker.Client, s models.Signal, lots int, cfg ExecutionConfig) ExecutionResult {
	quote, err := fetchQuoteWithRetry(ctx, brokerClient, s.Instrument)
	if err != nil {
		return ExecutionResult{Passed: true, Bypassed: true, Reason: "broker_quote_unavailable", BrokerMid: s.Price}
	}

	mid := quote.Mid()
	divergence := math.Abs(mid-s.Price) / s.Price * 100

	threshold := cfg.BaseEntryDivergencePct
	if s.Kind == models.KindPyramid {
		threshold = cfg.PyramidDivergencePct
	}

	result := ExecutionResult{BrokerMid: mid, DivergencePct: divergence}

	if divergence > threshold {
		result.Reason = "excessive_divergence"
		return result
	}

	if s.Price > s.Stop {
		riskIncrease := (mid - s.Price) / (s.Price - s.Stop) * 100
		result.RiskIncreasePct = riskIncrease
		if riskIncrease > 0 {
			adjusted := lots
			if riskIncrease >= 10 {
				adjusted = int(math.Floor(float64(lots) * (1 - riskIncrease/100)))
				if adjusted < 0 {
					adjusted = 0
				}
			}
			result.AdjustedLots = adjusted
		}
	}

	result.Passed = true
	return result
}

func fetchQuoteWithRetry(ctx context.Context, c *broker.Client, symbol string) (*broker.QuoteResponse, error) {
	return retry.DoWithResult(ctx, func() (*broker.QuoteResponse, error) {
		qctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return c.Quote(qctx, symbol)
	}, quoteRetryConfig)
}
