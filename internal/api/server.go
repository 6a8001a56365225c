// Package api provides the HTTP and WebSocket server for the
// backtesting backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/solphase/dlmm-backend/internal/backtester"
	"github.com/solphase/dlmm-backend/internal/data"
	"github.com/solphase/dlmm-backend/internal/strategy"
	"github.com/solphase/dlmm-backend/pkg/types"
)

var (
	backtestsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlmm_backtests_started_total",
		Help: "Number of backtest runs started",
	})
	backtestsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlmm_backtests_finished_total",
		Help: "Number of backtest runs finished, by status",
	}, []string{"status"})
)

// Server is the HTTP/WebSocket API server.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *Hub
	dataSvc    *data.HistoricalService
	registry   *strategy.Registry
	backtests  map[string]*BacktestState
}

// BacktestState tracks a launched backtest.
type BacktestState struct {
	ID      string
	Config  *types.BacktestConfig
	Engine  *backtester.Engine
	Started time.Time
	Result  *types.BacktestResult
}

// NewServer creates the API server.
func NewServer(logger *zap.Logger, config *types.ServerConfig, dataSvc *data.HistoricalService, registry *strategy.Registry) *Server {
	server := &Server{
		logger:    logger,
		config:    config,
		router:    mux.NewRouter(),
		hub:       NewHub(logger),
		dataSvc:   dataSvc,
		registry:  registry,
		backtests: make(map[string]*BacktestState),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/strategies", s.handleGetStrategies).Methods("GET")
	s.router.HandleFunc("/api/v1/data/history/{pool}", s.handleGetHistory).Methods("GET")

	s.router.HandleFunc("/api/v1/backtest/validate", s.handleValidate).Methods("POST")
	s.router.HandleFunc("/api/v1/backtest/run", s.handleRunBacktest).Methods("POST")
	s.router.HandleFunc("/api/v1/backtest/sweep", s.handleRunSweep).Methods("POST")
	s.router.HandleFunc("/api/v1/backtest/{id}", s.handleGetBacktest).Methods("GET")
	s.router.HandleFunc("/api/v1/backtest/{id}/cancel", s.handleCancelBacktest).Methods("POST")
	s.router.HandleFunc("/api/v1/backtest/{id}/montecarlo", s.handleMonteCarlo).Methods("GET")

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	wsPath := s.config.WebSocketPath
	if wsPath == "" {
		wsPath = "/ws"
	}
	s.router.HandleFunc(wsPath, s.handleWebSocket)
}

// Start starts the HTTP server and the WebSocket hub.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go s.hub.Run()

	s.logger.Info("Starting API server", zap.String("addr", addr))

	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the route handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// handleGetStrategies returns the registered strategy ids.
func (s *Server) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": s.registry.Names(),
	})
}

// handleGetHistory returns historical data for a pool.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pool := vars["pool"]

	interval := types.Interval(r.URL.Query().Get("interval"))
	if interval == "" {
		interval = types.Interval1h
	}

	start := time.Now().AddDate(0, -1, 0)
	end := time.Now()
	if v := r.URL.Query().Get("start"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			start = t
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			end = t
		}
	}

	histData, err := s.dataSvc.Fetch(r.Context(), pool, start, end, interval)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, histData)
}

// handleValidate validates a config without running it.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var config types.BacktestConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, backtester.ValidateConfig(&config))
}

// handleRunBacktest validates the config and launches a run in the
// background, streaming progress over the hub.
func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var config types.BacktestConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if validation := backtester.ValidateConfig(&config); !validation.IsValid {
		writeJSON(w, http.StatusBadRequest, validation)
		return
	}

	if config.ID == "" {
		config.ID = uuid.New().String()
	}

	engine := backtester.NewEngine(s.logger, s.dataSvc, s.registry)
	state := &BacktestState{
		ID:      config.ID,
		Config:  &config,
		Engine:  engine,
		Started: time.Now(),
	}

	s.mu.Lock()
	s.backtests[config.ID] = state
	s.mu.Unlock()

	backtestsStarted.Inc()

	go func() {
		result, err := engine.Run(context.Background(), &config, func(progress types.BacktestProgress) {
			s.hub.BroadcastProgress(progress)
		})

		s.mu.Lock()
		state.Result = result
		s.mu.Unlock()

		backtestsFinished.WithLabelValues(string(result.Status)).Inc()
		if err != nil {
			s.logger.Warn("Backtest finished with error",
				zap.String("id", config.ID),
				zap.Error(err),
			)
		}
		s.hub.BroadcastCompletion(result)
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     config.ID,
		"status": types.StatusRunning,
	})
}

// handleRunSweep validates a batch of config variants and runs them
// concurrently in the background. Each variant becomes a tracked
// backtest reachable through the single-run endpoints.
func (s *Server) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variants []*types.BacktestConfig `json:"variants"`
		Workers  int                     `json:"workers"`
		Seed     int64                   `json:"seed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Variants) == 0 {
		http.Error(w, "sweep requires at least one variant", http.StatusBadRequest)
		return
	}

	for i, cfg := range req.Variants {
		if validation := backtester.ValidateConfig(cfg); !validation.IsValid {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"variant":    i,
				"validation": validation,
			})
			return
		}
	}

	ids := make([]string, len(req.Variants))
	s.mu.Lock()
	for i, cfg := range req.Variants {
		if cfg.ID == "" {
			cfg.ID = uuid.New().String()
		}
		ids[i] = cfg.ID
		s.backtests[cfg.ID] = &BacktestState{
			ID:      cfg.ID,
			Config:  cfg,
			Started: time.Now(),
		}
		backtestsStarted.Inc()
	}
	s.mu.Unlock()

	runner := backtester.NewSweepRunner(s.logger, s.dataSvc, s.registry, req.Workers)
	if req.Seed != 0 {
		runner.WithSeed(req.Seed)
	}

	variants := req.Variants
	go func() {
		outcomes, err := runner.Run(context.Background(), variants, func(progress types.BacktestProgress) {
			s.hub.BroadcastProgress(progress)
		})
		if err != nil {
			s.logger.Warn("Sweep finished with error", zap.Error(err))
		}

		s.mu.Lock()
		for _, outcome := range outcomes {
			if state, ok := s.backtests[outcome.Config.ID]; ok {
				state.Result = outcome.Result
			}
		}
		s.mu.Unlock()

		for _, outcome := range outcomes {
			backtestsFinished.WithLabelValues(string(outcome.Result.Status)).Inc()
			s.hub.BroadcastCompletion(outcome.Result)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"ids":    ids,
		"status": types.StatusRunning,
	})
}

// handleMonteCarlo bootstrap-resamples a completed run's returns.
func (s *Server) handleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	state, ok := s.backtests[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "backtest not found", http.StatusNotFound)
		return
	}
	if state.Result == nil || state.Result.Status != types.StatusCompleted {
		http.Error(w, "backtest has not completed", http.StatusConflict)
		return
	}

	config := backtester.DefaultMonteCarloConfig()
	if v := r.URL.Query().Get("simulations"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Simulations = n
		}
	}
	if v := r.URL.Query().Get("seed"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Seed = n
		}
	}

	simulator := backtester.NewMonteCarloSimulator(s.logger, config)
	mcResult, err := simulator.Resample(state.Result)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, mcResult)
}

// handleGetBacktest returns the state or result of a run.
func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	state, ok := s.backtests[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "backtest not found", http.StatusNotFound)
		return
	}

	if state.Result != nil {
		writeJSON(w, http.StatusOK, state.Result)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      state.ID,
		"status":  types.StatusRunning,
		"started": state.Started,
	})
}

// handleCancelBacktest requests cooperative cancellation.
func (s *Server) handleCancelBacktest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	state, ok := s.backtests[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "backtest not found", http.StatusNotFound)
		return
	}

	if state.Engine == nil {
		http.Error(w, "backtest is not individually cancellable", http.StatusConflict)
		return
	}

	state.Engine.Cancel()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"cancelled": true,
	})
}

// handleWebSocket upgrades the connection and attaches it to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), s.hub, conn)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
