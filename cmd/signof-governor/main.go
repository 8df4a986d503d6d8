package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	sghttp "github.com/multivitaminds/signof-sub014/internal/adapter/http"
	"github.com/multivitaminds/signof-sub014/internal/adapter/mcp"
	sgotel "github.com/multivitaminds/signof-sub014/internal/adapter/otel"
	"github.com/multivitaminds/signof-sub014/internal/adapter/ws"
	"github.com/multivitaminds/signof-sub014/internal/config"
	"github.com/multivitaminds/signof-sub014/internal/domain/policy"
	"github.com/multivitaminds/signof-sub014/internal/logger"
	"github.com/multivitaminds/signof-sub014/internal/middleware"
	"github.com/multivitaminds/signof-sub014/internal/port/connector"
	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
	"github.com/multivitaminds/signof-sub014/internal/service"
)

const (
	serviceName    = "signof-governor"
	serviceVersion = "1.0.0"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"postgres", cfg.Postgres.DSN != "",
		"nats", cfg.NATS.URL != "",
		"cache_l2", cfg.Cache.L2,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOTEL, err := sgotel.Init(ctx, cfg.OTEL, serviceName, serviceVersion)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := sgotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	infra, err := openInfra(ctx, cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	// --- Services ---

	presets, err := loadPresets(cfg.Governor.PolicyDir)
	if err != nil {
		return err
	}
	sensitive := policy.NewSensitiveSet(cfg.Governor.SensitiveActions)
	hub := ws.NewHub(cfg.Server.CORSOrigin)
	defer hub.Close()

	auditSvc := service.NewAuditService(infra.store, infra.queue)
	policies := service.NewPolicyService(infra.store, infra.cache, cfg.Governor.PolicyCacheTTL, presets)
	approvals := service.NewApprovalService(infra.store, auditSvc, infra.queue)
	budgets := service.NewBudgetService(infra.store, infra.cache, cfg.Budget)
	identities := service.NewIdentityService(infra.store, auditSvc, infra.queue, sensitive)
	tenants := service.NewTenantService(infra.store, infra.cache, cfg.Governor.PolicyCacheTTL)
	governor := service.NewGovernor(policies, approvals, budgets, auditSvc, sensitive)
	governor.SetMetrics(metrics)

	breakers := service.NewBreakerService(cfg.Breaker, infra.store, infra.queue)
	breakers.SetMetrics(metrics)
	if err := breakers.Restore(ctx); err != nil {
		slog.Warn("breaker restore failed", "error", err)
	}
	defer func() {
		fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := breakers.Flush(fctx); err != nil {
			slog.Warn("breaker flush failed", "error", err)
		}
	}()

	llms, litellmClient := newLLMRegistry(cfg, breakers.Registry())
	models := service.NewModelRegistry(litellmClient, cfg.Selector.PollInterval)

	tools := connector.NewRegistry()
	registerBuiltinTools(tools)
	closeConnectors := dialConnectors(ctx, cfg.MCP.Connectors, tools)
	defer closeConnectors()

	selector := service.NewSelector(cfg.Selector, tenants, service.AllAvailable{
		models,
		service.BreakerAvailability{Breakers: breakers.Registry()},
	})
	executor := service.NewToolExecutor(tools, governor, identities, breakers.Registry(), cfg.Kernel.ModelTimeout)
	executor.SetMetrics(metrics)

	kernel := service.NewKernel(service.KernelDeps{
		Store:      infra.store,
		Selector:   selector,
		LLMs:       llms,
		Tools:      executor,
		Budgets:    budgets,
		Identities: identities,
		Breakers:   breakers.Registry(),
		Queue:      infra.queue,
		Hub:        hub,
	}, cfg.Kernel)
	kernel.SetMetrics(metrics)

	// Reviewer decisions from external channels
	if infra.queue != nil {
		cancelResolve, err := infra.queue.Subscribe(ctx, messagequeue.SubjectApprovalResolve, approvals.HandleResolveMessage)
		if err != nil {
			return fmt.Errorf("approval subscriber: %w", err)
		}
		defer cancelResolve()
	}

	// --- HTTP ---

	handlers := &sghttp.Handlers{
		Kernel:        kernel,
		Conversations: service.NewConversationService(infra.store),
		Governor:      governor,
		Policies:      policies,
		Approvals:     approvals,
		Audit:         auditSvc,
		Breakers:      breakers,
		Budgets:       budgets,
		Identities:    identities,
		Tenants:       tenants,
		Models:        models,
		Tools:         tools,
	}

	var apiMiddleware []func(http.Handler) http.Handler
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	if cfg.Server.RateLimitRPS > 0 {
		apiMiddleware = append(apiMiddleware, limiter.Handler)
	}
	if infra.cache != nil {
		apiMiddleware = append(apiMiddleware, middleware.Idempotency(infra.cache, cfg.Server.IdempotencyTTL))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(sghttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(sghttp.SecurityHeaders)
	r.Use(sghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sgotel.HTTPMiddleware(serviceName))

	r.Get("/health", handlers.Health)
	r.Get("/ws", hub.HandleWS)
	if cfg.MCP.ServerEnabled {
		mcpSrv := mcp.NewServer(mcp.ServerConfig{
			Name:    serviceName,
			Version: serviceVersion,
			APIKey:  cfg.Server.MCPAPIKey,
		}, mcp.ServerDeps{
			Governor:  governor,
			Breakers:  breakers,
			Budgets:   budgets,
			Approvals: approvals,
		})
		r.Handle("/mcp", mcpSrv.Handler())
		r.Handle("/mcp/*", mcpSrv.Handler())
	}
	sghttp.MountRoutes(r, handlers, apiMiddleware...)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Kernel.ModelTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		models.Start(gctx)
		limiter.StartCleanup(gctx, time.Minute, 10*time.Minute)
		return nil
	})
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func loadPresets(dir string) ([]policy.Policy, error) {
	if dir == "" {
		return nil, nil
	}
	ps, err := policy.LoadFromDirectory(dir)
	if err != nil {
		return nil, fmt.Errorf("policy presets: %w", err)
	}
	slog.Info("policy presets loaded", "dir", dir, "count", len(ps))
	return ps, nil
}

// dialConnectors registers every reachable MCP connector. Unreachable
// servers are logged and skipped.
func dialConnectors(ctx context.Context, defs []config.MCPConnectorDef, tools *connector.Registry) func() {
	var conns []*mcp.Connector
	for _, def := range defs {
		c, err := mcp.Dial(ctx, def)
		if err != nil {
			slog.Warn("mcp connector unavailable", "connector_id", def.ID, "error", err)
			continue
		}
		if err := tools.RegisterConnector(ctx, c); err != nil {
			slog.Warn("mcp connector tools unavailable", "connector_id", def.ID, "error", err)
			_ = c.Close()
			continue
		}
		conns = append(conns, c)
	}
	return func() {
		for _, c := range conns {
			if err := c.Close(); err != nil {
				slog.Warn("mcp connector close", "connector_id", c.ID(), "error", err)
			}
		}
	}
}
