package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/agents"
	"github.com/agentmesh/agentmesh/config"
	"github.com/agentmesh/agentmesh/events"
	"github.com/agentmesh/agentmesh/internal/metrics"
	"github.com/agentmesh/agentmesh/internal/telemetry"
	"github.com/agentmesh/agentmesh/orchestrator"
	"github.com/agentmesh/agentmesh/tools"
)

// server owns the HTTP surface and the long-lived collaborators behind it.
type server struct {
	cfg     *config.Config
	logger  *zap.Logger
	reg     *prometheus.Registry
	orch    *orchestrator.Orchestrator
	emitter events.Emitter
}

func newServer(configPath string) (*server, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("agentmesh", reg)

	var sink events.Sink = events.LogSink{Logger: logger}
	if cfg.Events.CollectorURL != "" {
		sink = events.NewWebSocketSink(cfg.Events.CollectorURL, logger)
	}
	emitter := events.NewAsyncEmitter(logger, cfg.Events.BufferSize, sink)

	var catalog tools.Catalog
	if cfg.Tools.CatalogURL != "" {
		catalog = tools.NewHTTPCatalog(cfg.Tools.CatalogURL, 0, logger)
	} else {
		catalog = tools.NewStaticCatalog(cfg.Tools.Static)
	}

	client := agents.NewClient(agents.Endpoints{
		Planner:       cfg.Agents.PlannerURL,
		Executor:      cfg.Agents.ExecutorURL,
		MultiExecutor: cfg.Agents.MultiExecutorURL,
		Verifier:      cfg.Agents.VerifierURL,
		Critic:        cfg.Agents.CriticURL,
	}, cfg.Agents.Timeout, logger, collector)

	orch := orchestrator.New(orchestrator.Params{
		Agents:         client,
		Catalog:        catalog,
		Emitter:        emitter,
		Metrics:        collector,
		MaxConcurrency: cfg.Orchestrator.MaxConcurrency,
		Logger:         logger,
	})

	return &server{
		cfg:     cfg,
		logger:  logger,
		reg:     reg,
		orch:    orch,
		emitter: emitter,
	}, nil
}

// run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (s *server) run(ctx context.Context) error {
	tel, err := telemetry.Init(ctx, s.cfg.Telemetry, s.logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/query", s.handleQuery)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:         ":" + strconv.Itoa(s.cfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	s.emitter.Close()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("telemetry shutdown incomplete", zap.Error(err))
	}
	return nil
}

// queryRequest is the body of POST /v1/query.
type queryRequest struct {
	Query          string   `json:"query"`
	SessionID      string   `json:"sessionId,omitempty"`
	ModelSelection string   `json:"modelSelection,omitempty"`
	Temperature    *float32 `json:"temperature,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	SkipCritique   *bool    `json:"skipCritique,omitempty"`
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	skipCritique := s.cfg.Orchestrator.SkipCritique
	if req.SkipCritique != nil {
		skipCritique = *req.SkipCritique
	}

	resp := s.orch.ProcessQuery(r.Context(), req.Query, orchestrator.Options{
		SessionID:      req.SessionID,
		ModelSelection: req.ModelSelection,
		Temperature:    req.Temperature,
		Seed:           req.Seed,
		SkipCritique:   skipCritique,
	})

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
