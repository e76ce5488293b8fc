package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/masa-finance/resilient-engine/internal/alert"
	"github.com/masa-finance/resilient-engine/internal/config"
	"github.com/masa-finance/resilient-engine/internal/engine"
	"github.com/masa-finance/resilient-engine/internal/engine/stats"
	"github.com/masa-finance/resilient-engine/internal/history"
	"github.com/masa-finance/resilient-engine/internal/tools"
)

func Start(ctx context.Context, ec config.EngineConfiguration) error {

	// Echo instance
	e := echo.New()

	switch strings.ToLower(ec.GetString("log_level", "info")) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "info":
		e.Logger.SetLevel(log.INFO)
	case "warn":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	default:
		e.Logger.SetLevel(log.INFO)
	}

	// Engine wiring
	statsCollector := stats.StartCollector(ec.GetUint("stats_buf_size", 128))
	notifier := alert.NewNotifier(ec.GetString("alert_webhook_url", ""), ec.GetString("server_url", ""))
	store := engine.NewHealthStore(ec.DataDir())
	eng := engine.New(store, notifier, statsCollector, ec.FailureThreshold())
	registry := tools.NewRegistry(eng, ec)

	executions := history.NewCache(
		ec.GetInt("history_max_size", 1000),
		ec.GetDuration("history_max_age_seconds", 600),
	)

	// Initialize health metrics
	healthMetrics := NewHealthMetrics()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// API Key Authentication Middleware
	e.Use(APIKeyAuthMiddleware(ec))

	// Health metrics tracking middleware
	e.Use(HealthMetricsMiddleware(healthMetrics))

	// Routes

	// Health check endpoints (no auth required)
	e.GET(HealthCheckPath, Healthz())
	e.GET(ReadinessCheckPath, Readyz(registry, healthMetrics))

	// Set up profiling if allowed
	if ec.GetBool("profiling_enabled", false) {
		enableProfiling(e)

		debug := e.Group("/debug/pprof")
		debug.POST("/disable", func(c echo.Context) error {
			disableProfiling()
			return c.String(http.StatusOK, "pprof disabled")
		})
	}

	/*
		- POST /execute: Run a tool through its fallback chain
		- GET /execute/:execution_id: Re-fetch a recent execution result
		- POST /reset: Clear a handler's health record
		- GET /health/handlers: Dump the persisted handler health state
		- GET /stats: Engine counters
	*/
	e.POST("/execute", execute(registry, executions))
	e.GET("/execute/:execution_id", result(executions))
	e.POST("/reset", reset(registry))
	e.GET("/health/handlers", handlerHealth(registry))
	e.GET("/stats", engineStats(statsCollector))

	go func() {
		<-ctx.Done()
		if err := e.Close(); err != nil {
			e.Logger.Error("Failed to close Echo server: ", err)
		}
	}()

	listenAddress := ec.ListenAddress()
	e.Logger.Info(fmt.Sprintf("Starting server on %s", listenAddress))
	if err := e.Start(listenAddress); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// enableProfiling enables pprof profiling
func enableProfiling(e *echo.Echo) {
	e.Logger.Info("Enabling profiling - this may impact performance")

	// Sample time in nanoseconds, see https://github.com/DataDog/go-profiler-notes/blob/main/block.md#usage
	runtime.SetBlockProfileRate(500)
	// Fraction of contention events that are reported https://gist.github.com/andrewhodel/ed7625a14eb87404cafd37493849d1ba
	runtime.SetMutexProfileFraction(1)
	// CPU profiling rate samples per second https://gist.github.com/andrewhodel/ed7625a14eb87404cafd37493849d1ba
	runtime.SetCPUProfileRate(30)

	pprof.Register(e)
}

func disableProfiling() {
	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)
	runtime.SetCPUProfileRate(0)

	// The endpoints remain registered, but the most resource-intensive
	// profiling data collection is disabled.
}
