package webhook

import (
	"net/http"
	"net/http/pprof"
	"time"

	"arbitrage/internal/api/middleware"
	"arbitrage/internal/observe"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies bundles everything SetupRoutes needs to wire the
// ingress, observability, and operator routes.
type Dependencies struct {
	Handler    *Handler
	Hub        *observe.Hub
	JWTSecret  string
	RatePerMin int // requests per source IP per minute on /webhook, default 120
}

// SetupRoutes assembles the router: the signal ingress (rate-limited
// per source IP ahead of the leader check), its stats
// endpoint, the websocket observer stream, health/metrics, and
// debug/pprof routes (bearer-token guarded when JWTSecret is set,
// unguarded otherwise). Grounded on
// internal/api/routes.go's middleware-chain-then-subrouter shape.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	if deps != nil && deps.Handler != nil {
		limit := deps.RatePerMin
		if limit <= 0 {
			limit = 120
		}
		webhookRoute := router.Handle("/webhook", httprate.LimitByIP(limit, time.Minute)(http.HandlerFunc(deps.Handler.ServeWebhook)))
		webhookRoute.Methods("POST")

		router.HandleFunc("/webhook/stats", deps.Handler.ServeStats).Methods("GET")
		router.HandleFunc("/webhook/audits", deps.Handler.ServeAuditSummary).Methods("GET")
	}

	if deps != nil && deps.Hub != nil {
		router.HandleFunc("/ws/observe", func(w http.ResponseWriter, r *http.Request) {
			observe.ServeWS(deps.Hub, w, r)
		}).Methods("GET")
	}

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Debug/pprof endpoints, bearer-token guarded for the operator-facing
	// API surface when a JWT secret is configured.
	debug := router.PathPrefix("/debug").Subrouter()
	if deps != nil && deps.JWTSecret != "" {
		debug.Use(middleware.JWTAuth(deps.JWTSecret))
	}

	debug.HandleFunc("/pprof/", pprof.Index)
	debug.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	debug.HandleFunc("/pprof/profile", pprof.Profile)
	debug.HandleFunc("/pprof/symbol", pprof.Symbol)
	debug.HandleFunc("/pprof/trace", pprof.Trace)
	debug.HandleFunc("/pprof/heap", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("heap").ServeHTTP(w, r)
	})
	debug.HandleFunc("/pprof/goroutine", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("goroutine").ServeHTTP(w, r)
	})

	return router
}
