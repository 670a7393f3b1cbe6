// Package webhook implements the HTTP ingress: the inbound
// TradingView-style signal endpoint, its stats surface, and the
// operator-facing health/metrics/debug routes. Grounded on
// internal/api/routes.go's gorilla/mux router assembly and
// internal/api/handlers/exchange_handler.go's decode → validate →
// service call → typed-error → respondWithJSON/respondWithError idiom,
// re-themed from exchange-account management to signal ingestion.
package webhook

import (
	"net/http"
	"sync"
	"time"

	"arbitrage/internal/coordinator"
	"arbitrage/internal/dedup"
	"arbitrage/internal/engine"
	"arbitrage/internal/metrics"
	"arbitrage/internal/models"
	"arbitrage/internal/persistence"
	"arbitrage/pkg/utils"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxRequestBodySize bounds the webhook payload to a 1 MB body-reader
// cap.
const MaxRequestBodySize = 1 << 20

// payload is the inbound wire shape, decoded straight into a
// models.Signal (the JSON tags already live on that struct).
type payload = models.Signal

// errorResponse is the JSON error body shape.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Stats accumulates per-outcome/per-instrument
// counters GET /webhook/stats reports, beyond the dedup cache's own
// single hit count.
type Stats struct {
	mu                sync.Mutex
	signalsReceived   int64
	signalsProcessed  int64
	dedupHits         int64
	rejectedByOutcome map[string]int64
	byInstrument      map[string]int64
}

func newStats() *Stats {
	return &Stats{
		rejectedByOutcome: make(map[string]int64),
		byInstrument:      make(map[string]int64),
	}
}

func (s *Stats) recordReceived(instrument string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signalsReceived++
	s.byInstrument[instrument]++
}

func (s *Stats) recordDedupHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dedupHits++
}

func (s *Stats) recordOutcome(outcome models.AuditOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if outcome == models.OutcomeProcessed {
		s.signalsProcessed++
		return
	}
	s.rejectedByOutcome[string(outcome)]++
}

func (s *Stats) snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcomes := make(map[string]int64, len(s.rejectedByOutcome))
	for k, v := range s.rejectedByOutcome {
		outcomes[k] = v
	}
	byInstrument := make(map[string]int64, len(s.byInstrument))
	for k, v := range s.byInstrument {
		byInstrument[k] = v
	}
	return map[string]interface{}{
		"signals_received":            s.signalsReceived,
		"signals_processed":           s.signalsProcessed,
		"dedup_hits":                  s.dedupHits,
		"signals_rejected_by_outcome": outcomes,
		"by_instrument":               byInstrument,
	}
}

// knownSignalKinds is the set of business signal kinds ServeWebhook
// accepts; anything else is a structurally invalid payload.
var knownSignalKinds = []string{
	string(models.KindBaseEntry),
	string(models.KindPyramid),
	string(models.KindExit),
	string(models.KindEODMonitor),
	string(models.KindMarketData),
}

// Handler wires the webhook ingress to the leader gate, the dedup
// cache, and the live engine.
type Handler struct {
	engine      *engine.Engine
	dedupCache  *dedup.Cache
	coordinator *coordinator.Coordinator
	store       *persistence.Store
	log         *utils.Logger
	stats       *Stats
	instruments []string
}

// New builds a Handler. coord may be nil (single-instance deployments
// with leader election disabled always treat the local process as
// leader). store may be nil; ServeAuditSummary then reports 503 instead
// of querying persistence.
func New(eng *engine.Engine, dedupCache *dedup.Cache, coord *coordinator.Coordinator, store *persistence.Store, log *utils.Logger) *Handler {
	var instruments []string
	if eng != nil {
		instruments = eng.KnownInstruments()
	}
	return &Handler{
		engine:      eng,
		dedupCache:  dedupCache,
		coordinator: coord,
		store:       store,
		log:         log,
		stats:       newStats(),
		instruments: instruments,
	}
}

// ServeWebhook handles POST /webhook: decode, leader-gate, dedup,
// dispatch to the engine, respond with the resulting audit outcome.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var sig payload
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	structure := utils.SignalStructure{Instrument: sig.Instrument, Kind: string(sig.Kind), Price: sig.Price}
	if err := utils.ValidateSignalStructure(structure, h.instruments, knownSignalKinds); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid signal", err.Error())
		return
	}
	if !sig.IsValidPositionLabel() {
		h.respondWithError(w, http.StatusBadRequest, "invalid position label", sig.Position)
		return
	}

	h.stats.recordReceived(sig.Instrument)

	if h.coordinator != nil && !h.coordinator.IsLeader() {
		h.respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_leader",
			"detail": "this instance is currently a follower; signal not processed",
		})
		return
	}

	ctx := r.Context()
	fp := sig.Fingerprint()
	if h.dedupCache != nil && h.dedupCache.Seen(ctx, fp) {
		h.stats.recordDedupHit()
		metrics.DedupHitsTotal.Inc()
		h.respondWithJSON(w, http.StatusOK, map[string]string{
			"status":      string(models.OutcomeRejectedDuplicate),
			"fingerprint": fp,
		})
		return
	}
	if h.dedupCache != nil {
		h.dedupCache.Record(ctx, fp, sig.Instrument)
	}

	started := time.Now()
	audit := h.engine.Process(ctx, sig)
	metrics.RecordSignalOutcome(string(sig.Kind), string(audit.Outcome), float64(time.Since(started).Milliseconds()))
	h.stats.recordOutcome(audit.Outcome)

	if sig.Kind == models.KindEODMonitor {
		h.engine.MarkEODExecuted(fp)
	}

	h.respondWithJSON(w, http.StatusOK, audit)
}

// ServeStats handles GET /webhook/stats.
func (h *Handler) ServeStats(w http.ResponseWriter, r *http.Request) {
	snapshot := h.stats.snapshot()
	if h.dedupCache != nil {
		snapshot["dedup_cache_size"] = h.dedupCache.Len()
	}
	h.respondWithJSON(w, http.StatusOK, snapshot)
}

// ServeAuditSummary handles GET /webhook/audits, reporting signal_audit
// outcome counts for a period (?period=day|week|month|year|all,
// default day) optionally scoped to one instrument (?instrument=...).
func (h *Handler) ServeAuditSummary(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "audit reporting unavailable", "no persistence store configured")
		return
	}

	period := utils.PeriodType(r.URL.Query().Get("period"))
	if period == "" {
		period = utils.PeriodDay
	}
	instrument := r.URL.Query().Get("instrument")

	window := utils.GetPeriodRange(period)
	rows, err := h.store.AuditSummary(r.Context(), instrument, window)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to query audit summary", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"period":       string(period),
		"instrument":   instrument,
		"window_start": window.Start,
		"window_end":   window.End,
		"outcomes":     rows,
	})
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message, details string) {
	h.respondWithJSON(w, code, errorResponse{Error: message, Details: details})
}
