// Package observe broadcasts leader-only state to follower/observer
// processes over a websocket stream, mirroring how followers hold
// read-only in-memory copies for observability" requirement. Grounded
// on internal/websocket/{hub,client,messages}.go, re-themed from
// broadcasting pair/balance/stats updates to UI clients, to
// broadcasting position and portfolio deltas to read-only observers.
package observe

import (
	"bytes"
	"encoding/json"
	"sync"

	"arbitrage/pkg/utils"
)

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// MessageType discriminates the payload carried by an Envelope.
type MessageType string

const (
	MessageTypePosition  MessageType = "position"
	MessageTypePortfolio MessageType = "portfolio"
	MessageTypeLeader    MessageType = "leader"
)

// Envelope is the single wire shape every broadcast message takes,
// discriminated by Type, collapsed to one type since every payload
// here is a snapshot.
type Envelope struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data"`
}

// PositionDelta is broadcast whenever the leader opens, sizes, or
// closes a position.
type PositionDelta struct {
	ID             string  `json:"id"`
	Instrument     string  `json:"instrument"`
	Label          string  `json:"label"`
	Status         string  `json:"status"`
	EntryPrice     float64 `json:"entry_price"`
	Lots           int     `json:"lots"`
	Quantity       float64 `json:"quantity"`
	CurrentStop    float64 `json:"current_stop"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	RealizedPnL    float64 `json:"realized_pnl"`
	RolloverStatus string  `json:"rollover_status"`
}

// PortfolioDelta is broadcast whenever the leader's account-wide
// accounting changes (new trade closed, margin/risk recomputed).
type PortfolioDelta struct {
	ClosedEquity    float64 `json:"closed_equity"`
	EquityHighWater float64 `json:"equity_high_water"`
	TotalRisk       float64 `json:"total_risk"`
	TotalVolatility float64 `json:"total_volatility"`
	MarginUsed      float64 `json:"margin_used"`
}

// LeaderStatus is broadcast on leader transitions so observers know
// whether the stream they're reading is authoritative right now.
type LeaderStatus struct {
	InstanceID string `json:"instance_id"`
	IsLeader   bool   `json:"is_leader"`
}

// Hub fans snapshots out to every connected observer. Only the leader
// process runs a Hub with real traffic; followers may still serve the
// endpoint so an operator can watch either process, but have nothing
// of their own to broadcast.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	log *utils.Logger
}

// NewHub builds a Hub. Call Run in its own goroutine before serving
// connections.
func NewHub(log *utils.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// Run drives the register/unregister/broadcast loop. Blocks; run it in
// a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			if h.log != nil {
				h.log.Info("observer connected", utils.Any("total_clients", n))
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			if h.log != nil {
				h.log.Info("observer disconnected", utils.Any("total_clients", n))
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				n := len(h.clients)
				h.mu.Unlock()
				if h.log != nil {
					h.log.Warn("removed slow observers", utils.Any("removed", len(toRemove)), utils.Any("total_clients", n))
				}
			}
		}
	}
}

func (h *Hub) send(env *Envelope) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(env); err != nil {
		if h.log != nil {
			h.log.Error("observe: marshal broadcast failed", utils.Err(err))
		}
		jsonBufferPool.Put(buf)
		return
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.broadcast <- msgCopy
}

// BroadcastPosition pushes a position snapshot to every observer.
func (h *Hub) BroadcastPosition(p PositionDelta) {
	h.send(&Envelope{Type: MessageTypePosition, Data: p})
}

// BroadcastPortfolio pushes an account-state snapshot to every observer.
func (h *Hub) BroadcastPortfolio(p PortfolioDelta) {
	h.send(&Envelope{Type: MessageTypePortfolio, Data: p})
}

// BroadcastLeaderStatus pushes a leader-transition notice to every
// observer.
func (h *Hub) BroadcastLeaderStatus(s LeaderStatus) {
	h.send(&Envelope{Type: MessageTypeLeader, Data: s})
}

// ClientCount reports the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
