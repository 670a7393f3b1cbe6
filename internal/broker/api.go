package broker

import "context"

// PlaceOrderRequest is the body for POST /placeorder.
type PlaceOrderRequest struct {
	Symbol    string  `json:"symbol"`
	Action    string  `json:"action"` // BUY|SELL
	Quantity  float64 `json:"quantity"`
	OrderType string  `json:"order_type"` // MARKET|LIMIT
	Product   string  `json:"product"`
	Exchange  string  `json:"exchange"` // NFO|MCX
	Price     float64 `json:"price"`
}

// PlaceOrderResponse is the response to POST /placeorder.
type PlaceOrderResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"orderid"`
}

// PlaceOrder submits a new order to the gateway.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResponse, error) {
	var resp PlaceOrderResponse
	if err := c.do(ctx, "POST", "/placeorder", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OrderStatus is one row of GET /orderbook.
type OrderStatus struct {
	OrderID    string  `json:"orderid"`
	Status     string  `json:"status"`
	FillStatus string  `json:"fill_status"`
	FillPrice  float64 `json:"fill_price"`
	FilledLots float64 `json:"filled_lots"`
}

// OrderBookResponse wraps GET /orderbook.
type OrderBookResponse struct {
	Data []OrderStatus `json:"data"`
}

// OrderBook returns all known order rows, used by the executor's poll
// loop to find a specific order id's current status.
func (c *Client) OrderBook(ctx context.Context) ([]OrderStatus, error) {
	var resp OrderBookResponse
	if err := c.do(ctx, "GET", "/orderbook", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetOrderStatus filters OrderBook down to a single order id.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	rows, err := c.OrderBook(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.OrderID == orderID {
			return &row, nil
		}
	}
	return nil, &ErrOrderNotFound{OrderID: orderID}
}

// ErrOrderNotFound is returned when an order id never appears in the
// gateway's orderbook snapshot.
type ErrOrderNotFound struct{ OrderID string }

func (e *ErrOrderNotFound) Error() string { return "broker: order not found: " + e.OrderID }

// BrokerPosition is one row of GET /positionbook.
type BrokerPosition struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Side     string  `json:"side"`
}

// PositionBookResponse wraps GET /positionbook.
type PositionBookResponse struct {
	Data []BrokerPosition `json:"data"`
}

// PositionBook lists all account positions currently known to the
// gateway, used by rollover reconciliation.
func (c *Client) PositionBook(ctx context.Context) ([]BrokerPosition, error) {
	var resp PositionBookResponse
	if err := c.do(ctx, "GET", "/positionbook", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// FundsResponse wraps GET /funds.
type FundsResponse struct {
	AvailableMargin float64 `json:"available_margin"`
	UsedMargin      float64 `json:"used_margin"`
}

// Funds returns the account's current margin availability, consumed by
// the sizer's margin-based constraint.
func (c *Client) Funds(ctx context.Context) (*FundsResponse, error) {
	var resp FundsResponse
	if err := c.do(ctx, "GET", "/funds", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QuoteRequest is the body for POST /quotes.
type QuoteRequest struct {
	Symbol string `json:"symbol"`
}

// QuoteResponse is the response to POST /quotes.
type QuoteResponse struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// Mid returns the midpoint of bid/ask.
func (q QuoteResponse) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Quote fetches the live bid/ask for a symbol, used by the execution
// validation and as the order executor's initial limit reference.
func (c *Client) Quote(ctx context.Context, symbol string) (*QuoteResponse, error) {
	var resp QuoteResponse
	if err := c.do(ctx, "POST", "/quotes", QuoteRequest{Symbol: symbol}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ModifyOrderRequest is the body for POST /modifyorder.
type ModifyOrderRequest struct {
	OrderID string  `json:"orderid"`
	Price   float64 `json:"price"`
}

// ModifyOrder updates the limit price of an open order in place,
// avoiding a cancel/replace round trip when the gateway supports it.
func (c *Client) ModifyOrder(ctx context.Context, req ModifyOrderRequest) error {
	return c.do(ctx, "POST", "/modifyorder", req, nil)
}

// CancelOrderRequest is the body for POST /cancelorder.
type CancelOrderRequest struct {
	OrderID string `json:"orderid"`
}

// CancelOrder cancels an open (or partially filled) order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, "POST", "/cancelorder", CancelOrderRequest{OrderID: orderID}, nil)
}

// ClosePositionRequest is the body for POST /closeposition.
type ClosePositionRequest struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
}

// ClosePosition flattens a position directly, used by the synthetic-leg
// executor's emergency cover path and by rollover's close-old step.
func (c *Client) ClosePosition(ctx context.Context, symbol string, quantity float64) error {
	return c.do(ctx, "POST", "/closeposition", ClosePositionRequest{Symbol: symbol, Quantity: quantity}, nil)
}
