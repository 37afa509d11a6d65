package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/flowgraph/agent"
	"github.com/BaSui01/flowgraph/api/handlers"
	"github.com/BaSui01/flowgraph/config"
	"github.com/BaSui01/flowgraph/internal/metrics"
	"github.com/BaSui01/flowgraph/internal/server"
	"github.com/BaSui01/flowgraph/internal/telemetry"
	"github.com/BaSui01/flowgraph/llm"
	"github.com/BaSui01/flowgraph/llm/openaicompat"
	"github.com/BaSui01/flowgraph/ratelimit"
	"github.com/BaSui01/flowgraph/tools"
	"github.com/BaSui01/flowgraph/workflow"
)

// Server is the flowgraph service: the API listener, the metrics
// listener, and the workflow stack they serve.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler   *handlers.HealthHandler
	workflowHandler *handlers.WorkflowHandler
	vizHandler      *handlers.VizHandler

	metricsCollector *metrics.Collector
	otelProviders    *telemetry.Providers

	rateLimiterCancel context.CancelFunc
}

// NewServer creates a server from loaded configuration.
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// Start wires the workflow stack and brings up both listeners.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("flowgraph", s.logger)

	s.initHandlers()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// initHandlers builds the workflow stack: the shared agent-call rate
// limiter, the tool registry, the LLM provider, and the
// builder/engine/service pipeline the handlers expose.
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.vizHandler = handlers.NewVizHandler(s.logger)

	limiter := ratelimit.New(s.cfg.RateLimit.MinInterval, ratelimit.WithLogger(s.logger))
	registry := tools.DefaultRegistry(s.logger)

	// Without an API key the provider stays nil: function-only
	// workflows still run, agent executors fail with a clear error.
	var provider llm.Provider
	if s.cfg.LLM.APIKey != "" {
		provider = openaicompat.New(openaicompat.Config{
			ProviderName: s.cfg.LLM.Provider,
			APIKey:       s.cfg.LLM.APIKey,
			BaseURL:      s.cfg.LLM.BaseURL,
			DefaultModel: s.cfg.LLM.Model,
			Timeout:      s.cfg.LLM.Timeout,
		}, s.logger)
		s.logger.Info("LLM provider initialized",
			zap.String("provider", s.cfg.LLM.Provider),
			zap.String("model", s.cfg.LLM.Model),
		)
	} else {
		s.logger.Warn("LLM API key not configured, agent executors disabled")
	}

	invoker := agent.NewInvoker(provider, registry, limiter, s.logger,
		agent.WithModel(s.cfg.LLM.Model),
		agent.WithMaxToolRounds(s.cfg.LLM.MaxToolRounds),
	)

	builder := workflow.NewBuilder(invoker, registry,
		workflow.WithLogger(s.logger),
		workflow.WithRateLimiter(limiter),
	)
	engine := workflow.NewEngine(s.logger)
	service := workflow.NewService(builder, engine, s.logger,
		workflow.WithMetrics(s.metricsCollector),
	)

	s.workflowHandler = handlers.NewWorkflowHandler(service, s.logger)
	s.logger.Info("handlers initialized", zap.Strings("tools", registry.Names()))
}

// startHTTPServer builds the API routes and middleware chain and starts
// the main listener.
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("/api/v1/workflows/execute", s.workflowHandler.HandleExecute)
	mux.HandleFunc("/api/v1/workflows/visualize", s.vizHandler.HandleVisualize)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// startMetricsServer starts the Prometheus scrape listener.
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a shutdown signal or serve error, then
// tears everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown gracefully stops both listeners and flushes telemetry.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
