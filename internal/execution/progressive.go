package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"arbitrage/internal/broker"
	"arbitrage/pkg/utils"
)

// Executor runs the progressive limit-improve strategy.
type Executor struct {
	broker *broker.Client
	cfg    Config
	log    *utils.Logger
}

// NewExecutor builds a progressive Executor bound to a broker client.
func NewExecutor(brokerClient *broker.Client, cfg Config, log *utils.Logger) *Executor {
	if len(cfg.LimitOffsetsPct) == 0 {
		cfg.LimitOffsetsPct = []float64{0, 0.5, 1.0, 1.5}
	}
	return &Executor{broker: brokerClient, cfg: cfg, log: log}
}

// Config returns the executor's configuration, for callers (e.g. the
// rollover engine) that build a derived Executor with tighter params.
func (e *Executor) Config() Config {
	return e.cfg
}

// Execute runs req through the full progressive strategy: limit attempts
// at increasing offsets, partial-fill handling, and a final market
// fallback.
func (e *Executor) Execute(ctx context.Context, req Request) *Result {
	var filledLots float64
	var weightedFillSum float64

	for i, offsetPct := range e.cfg.LimitOffsetsPct {
		limitPrice := offsetPrice(req.LimitPrice, offsetPct, req.Action)

		if hardSlip := math.Abs(slippagePct(limitPrice, req.SignalPrice)); hardSlip > e.cfg.HardSlippageLimitPct {
			return &Result{Status: StatusRejected, Notes: "hard_slippage_limit_exceeded"}
		}

		remaining := req.Quantity - filledLots
		if remaining <= 0 {
			break
		}

		orderID, err := e.placeLimit(ctx, req, remaining, limitPrice)
		if err != nil {
			if e.log != nil {
				e.log.Error("progressive: place limit failed, continuing to next attempt", utils.Err(err))
			}
			continue
		}

		fillPrice, filled, status := e.pollAttempt(ctx, orderID, e.cfg.AttemptTimeout)

		switch status {
		case broker.StatusComplete:
			weightedFillSum += fillPrice * filled
			filledLots += filled
			avg := weightedFillSum / filledLots
			return &Result{
				Status:      StatusExecuted,
				FillPrice:   avg,
				FilledLots:  filledLots,
				SlippagePct: slippagePct(avg, req.SignalPrice),
			}

		case broker.StatusPartial:
			weightedFillSum += fillPrice * filled
			filledLots += filled
			res := e.handlePartial(ctx, req, orderID, filledLots, req.Quantity-filledLots, weightedFillSum, limitPrice)
			if res != nil {
				return res
			}
			// reattempt strategy falls through to continue the loop with
			// the merged fill state already recorded above.

		default:
			// Timed out without any fill: modify to next offset, or
			// cancel+replace if modify fails.
			if i+1 < len(e.cfg.LimitOffsetsPct) {
				nextPrice := offsetPrice(req.LimitPrice, e.cfg.LimitOffsetsPct[i+1], req.Action)
				if err := e.broker.ModifyOrder(ctx, broker.ModifyOrderRequest{OrderID: orderID, Price: nextPrice}); err != nil {
					_ = e.broker.CancelOrder(ctx, orderID)
				}
			} else {
				_ = e.broker.CancelOrder(ctx, orderID)
			}
		}
	}

	return e.marketFallback(ctx, req, filledLots, weightedFillSum)
}

func (e *Executor) placeLimit(ctx context.Context, req Request, qty, price float64) (string, error) {
	resp, err := e.broker.PlaceOrder(ctx, broker.PlaceOrderRequest{
		Symbol:    req.Symbol,
		Action:    req.Action,
		Quantity:  qty,
		OrderType: broker.OrderTypeLimit,
		Product:   req.Product,
		Exchange:  req.Exchange,
		Price:     price,
	})
	if err != nil {
		return "", err
	}
	return resp.OrderID, nil
}

// pollAttempt polls order status every PollInterval up to timeout,
// returning the last known fill price/qty and a terminal status:
// StatusComplete; StatusPartial if the attempt window expired with a
// partial fill; StatusPending if it expired without a fill; or
// StatusCancelled if the broker rejected or cancelled the order.
func (e *Executor) pollAttempt(ctx context.Context, orderID string, timeout time.Duration) (fillPrice, filled float64, status string) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		st, err := e.broker.GetOrderStatus(ctx, orderID)
		if err == nil {
			switch st.Status {
			case broker.StatusComplete:
				return st.FillPrice, st.FilledLots, broker.StatusComplete
			case broker.StatusPartial:
				fillPrice, filled = st.FillPrice, st.FilledLots
			case broker.StatusRejected, broker.StatusCancelled:
				return fillPrice, filled, broker.StatusCancelled
			}
		}

		if time.Now().After(deadline) {
			if filled > 0 {
				return fillPrice, filled, broker.StatusPartial
			}
			return fillPrice, filled, broker.StatusPending
		}

		select {
		case <-ctx.Done():
			if filled > 0 {
				return fillPrice, filled, broker.StatusPartial
			}
			return fillPrice, filled, broker.StatusPending
		case <-ticker.C:
		}
	}
}

// handlePartial dispatches a partial fill to the configured strategy.
// Returns a non-nil *Result when the strategy concludes this execution
// outright (cancel, or wait that times out); returns nil when the caller
// should continue the progressive loop (reattempt).
func (e *Executor) handlePartial(ctx context.Context, req Request, orderID string, filledSoFar, remaining, weightedSum, lastPrice float64) *Result {
	switch e.cfg.PartialFillStrategy {
	case "wait":
		fillPrice, moreFilled, status := e.pollAttempt(ctx, orderID, e.cfg.WaitFillWindow)
		if status == broker.StatusComplete {
			total := weightedSum + fillPrice*moreFilled
			totalLots := filledSoFar + moreFilled
			avg := total / totalLots
			return &Result{Status: StatusExecuted, FillPrice: avg, FilledLots: totalLots, SlippagePct: slippagePct(avg, req.SignalPrice)}
		}
		_ = e.broker.CancelOrder(ctx, orderID)
		avg := weightedSum / filledSoFar
		return &Result{Status: StatusPartial, FillPrice: avg, FilledLots: filledSoFar, CancelledLots: remaining, SlippagePct: slippagePct(avg, req.SignalPrice)}

	case "reattempt":
		_ = e.broker.CancelOrder(ctx, orderID)
		aggressivePrice := offsetPrice(lastPrice, e.cfg.ReattemptAggressivePct, req.Action)
		newOrderID, err := e.placeLimit(ctx, req, remaining, aggressivePrice)
		if err != nil {
			avg := weightedSum / filledSoFar
			return &Result{Status: StatusPartial, FillPrice: avg, FilledLots: filledSoFar, CancelledLots: remaining, SlippagePct: slippagePct(avg, req.SignalPrice)}
		}
		fillPrice, moreFilled, status := e.pollAttempt(ctx, newOrderID, e.cfg.AttemptTimeout)
		if status == broker.StatusComplete || moreFilled > 0 {
			total := weightedSum + fillPrice*moreFilled
			totalLots := filledSoFar + moreFilled
			if totalLots <= 0 {
				return nil
			}
			avg := total / totalLots
			if totalLots >= req.Quantity {
				return &Result{Status: StatusExecuted, FillPrice: avg, FilledLots: totalLots, SlippagePct: slippagePct(avg, req.SignalPrice)}
			}
		}
		return nil // fall through to market fallback via caller's loop end

	default: // "cancel"
		_ = e.broker.CancelOrder(ctx, orderID)
		avg := weightedSum / filledSoFar
		return &Result{Status: StatusPartial, FillPrice: avg, FilledLots: filledSoFar, CancelledLots: remaining, SlippagePct: slippagePct(avg, req.SignalPrice)}
	}
}

// marketFallback cancels whatever remains and places a MARKET order as
// last resort, waiting MarketConfirmWindow for a fill confirmation.
func (e *Executor) marketFallback(ctx context.Context, req Request, filledLots, weightedSum float64) *Result {
	remaining := req.Quantity - filledLots
	if remaining <= 0 {
		avg := weightedSum / filledLots
		return &Result{Status: StatusExecuted, FillPrice: avg, FilledLots: filledLots, SlippagePct: slippagePct(avg, req.SignalPrice)}
	}

	resp, err := e.broker.PlaceOrder(ctx, broker.PlaceOrderRequest{
		Symbol:    req.Symbol,
		Action:    req.Action,
		Quantity:  remaining,
		OrderType: broker.OrderTypeMarket,
		Product:   req.Product,
		Exchange:  req.Exchange,
	})
	if err != nil {
		if filledLots > 0 {
			avg := weightedSum / filledLots
			return &Result{Status: StatusPartial, FillPrice: avg, FilledLots: filledLots, CancelledLots: remaining, Notes: fmt.Sprintf("market fallback failed: %v", err)}
		}
		return &Result{Status: StatusRejected, Notes: fmt.Sprintf("market fallback failed: %v", err)}
	}

	fillPrice, moreFilled, _ := e.pollAttempt(ctx, resp.OrderID, e.cfg.MarketConfirmWindow)
	total := weightedSum + fillPrice*moreFilled
	totalLots := filledLots + moreFilled
	if totalLots <= 0 {
		return &Result{Status: StatusRejected, Notes: "market order unfilled within confirmation window"}
	}
	avg := total / totalLots
	status := StatusExecuted
	if totalLots < req.Quantity {
		status = StatusPartial
	}
	return &Result{Status: status, FillPrice: avg, FilledLots: totalLots, CancelledLots: req.Quantity - totalLots, SlippagePct: slippagePct(avg, req.SignalPrice)}
}
