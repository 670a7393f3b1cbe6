package execution

import (
	"context"
	"fmt"
	"time"

	"arbitrage/internal/broker"
	"arbitrage/pkg/utils"
)

// SyntheticLeg identifies one leg of a two-leg synthetic-future position.
type SyntheticLeg struct {
	Symbol   string
	Exchange string
	Product  string
}

// SyntheticRequest describes a synthetic-future entry or exit.
type SyntheticRequest struct {
	Put         SyntheticLeg
	Call        SyntheticLeg
	Quantity    float64
	PutLimit    float64
	CallLimit   float64
	SignalPrice float64
	Strike      float64
}

// SyntheticOutcome classifies a two-leg execution's terminal state.
type SyntheticOutcome string

const (
	SyntheticSuccess         SyntheticOutcome = "success"
	SyntheticAbortedNoLegs   SyntheticOutcome = "aborted_no_legs"
	SyntheticFailedCECovered SyntheticOutcome = "failed_ce_covered"
	SyntheticRollbackFailed  SyntheticOutcome = "ROLLBACK_FAILED_CRITICAL"
)

// SyntheticResult is the outcome of an entry or exit sequence.
type SyntheticResult struct {
	Outcome        SyntheticOutcome
	PutFill        *Result
	CallFill       *Result
	PutCover       *Result // set only on rollback
	SyntheticPrice float64
	Notes          string
}

// StrikePrice computes the synthetic entry/exit price: strike + call -
// put.
func StrikePrice(strike, callPrice, putPrice float64) float64 {
	return strike + callPrice - putPrice
}

// RoundToStrikeInterval rounds a reference price to the nearest strike,
// preferring 1000-multiples when preferThousand is set.
func RoundToStrikeInterval(price, interval float64, preferThousand bool) float64 {
	step := interval
	if preferThousand {
		step = 1000
	}
	if step <= 0 {
		return price
	}
	return utils.RoundToLotSizeNearest(price, step)
}

// SyntheticExecutor runs the two-leg entry/exit sequences on top of the
// progressive executor, applying order-critical rollback on second-leg
// failure.
type SyntheticExecutor struct {
	progressive *Executor
	broker      *broker.Client
	log         *utils.Logger
}

// NewSyntheticExecutor builds a SyntheticExecutor sharing a progressive
// Executor (and therefore its broker client and retry configuration).
func NewSyntheticExecutor(progressive *Executor, brokerClient *broker.Client, log *utils.Logger) *SyntheticExecutor {
	return &SyntheticExecutor{progressive: progressive, broker: brokerClient, log: log}
}

// Entry executes SELL put then BUY call. On call failure, it emergency
// covers the put with a MARKET buy; failure to cover is the single
// critical, never-auto-resolved outcome in the system.
func (s *SyntheticExecutor) Entry(ctx context.Context, req SyntheticRequest) *SyntheticResult {
	putResult := s.progressive.Execute(ctx, Request{
		Symbol: req.Put.Symbol, Action: broker.ActionSell, Exchange: req.Put.Exchange,
		Product: req.Put.Product, Quantity: req.Quantity, LimitPrice: req.PutLimit, SignalPrice: req.SignalPrice,
	})
	if putResult.Status == StatusRejected {
		return &SyntheticResult{Outcome: SyntheticAbortedNoLegs, PutFill: putResult, Notes: "put leg failed, no positions opened"}
	}

	callResult := s.progressive.Execute(ctx, Request{
		Symbol: req.Call.Symbol, Action: broker.ActionBuy, Exchange: req.Call.Exchange,
		Product: req.Call.Product, Quantity: putResult.FilledLots, LimitPrice: req.CallLimit, SignalPrice: req.SignalPrice,
	})
	if callResult.Status != StatusRejected {
		return &SyntheticResult{
			Outcome:        SyntheticSuccess,
			PutFill:        putResult,
			CallFill:       callResult,
			SyntheticPrice: StrikePrice(req.Strike, callResult.FillPrice, putResult.FillPrice),
		}
	}

	// Call leg failed: emergency cover the put via MARKET BUY to flatten.
	if s.log != nil {
		s.log.Error("synthetic entry: call leg failed, emergency covering put")
	}
	cover, err := s.marketCover(ctx, req.Put, putResult.FilledLots, broker.ActionBuy)
	if err != nil {
		return &SyntheticResult{Outcome: SyntheticRollbackFailed, PutFill: putResult, CallFill: callResult, Notes: "operator intervention required: put cover failed"}
	}
	return &SyntheticResult{Outcome: SyntheticFailedCECovered, PutFill: putResult, CallFill: callResult, PutCover: cover}
}

// Exit executes BUY put then SELL call (the symmetric reverse of Entry).
// On call failure after the put cover, emergency SELL covers the call.
func (s *SyntheticExecutor) Exit(ctx context.Context, req SyntheticRequest) *SyntheticResult {
	putResult := s.progressive.Execute(ctx, Request{
		Symbol: req.Put.Symbol, Action: broker.ActionBuy, Exchange: req.Put.Exchange,
		Product: req.Put.Product, Quantity: req.Quantity, LimitPrice: req.PutLimit, SignalPrice: req.SignalPrice,
	})
	if putResult.Status == StatusRejected {
		return &SyntheticResult{Outcome: SyntheticAbortedNoLegs, PutFill: putResult, Notes: "put leg failed, position remains open"}
	}

	callResult := s.progressive.Execute(ctx, Request{
		Symbol: req.Call.Symbol, Action: broker.ActionSell, Exchange: req.Call.Exchange,
		Product: req.Call.Product, Quantity: putResult.FilledLots, LimitPrice: req.CallLimit, SignalPrice: req.SignalPrice,
	})
	if callResult.Status != StatusRejected {
		return &SyntheticResult{
			Outcome:        SyntheticSuccess,
			PutFill:        putResult,
			CallFill:       callResult,
			SyntheticPrice: StrikePrice(req.Strike, callResult.FillPrice, putResult.FillPrice),
		}
	}

	if s.log != nil {
		s.log.Error("synthetic exit: call leg failed, emergency market sell of call")
	}
	cover, err := s.marketCover(ctx, req.Call, putResult.FilledLots, broker.ActionSell)
	if err != nil {
		return &SyntheticResult{Outcome: SyntheticRollbackFailed, PutFill: putResult, CallFill: callResult, Notes: "operator intervention required: call cover failed"}
	}
	return &SyntheticResult{Outcome: SyntheticFailedCECovered, PutFill: putResult, CallFill: callResult, PutCover: cover}
}

func (s *SyntheticExecutor) marketCover(ctx context.Context, leg SyntheticLeg, qty float64, action string) (*Result, error) {
	if qty <= 0 {
		return &Result{Status: StatusExecuted}, nil
	}
	resp, err := s.broker.PlaceOrder(ctx, broker.PlaceOrderRequest{
		Symbol: leg.Symbol, Action: action, Quantity: qty, OrderType: broker.OrderTypeMarket,
		Product: leg.Product, Exchange: leg.Exchange,
	})
	if err != nil {
		return nil, err
	}
	fillPrice, filled, status := s.progressive.pollAttempt(ctx, resp.OrderID, 2*time.Second)
	if status != broker.StatusComplete || filled < qty {
		return nil, fmt.Errorf("cover order %s not filled: status %s, filled %v of %v", resp.OrderID, status, filled, qty)
	}
	return &Result{Status: StatusExecuted, FillPrice: fillPrice, FilledLots: filled}, nil
}
