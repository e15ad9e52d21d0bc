// Package api is the HTTP surface of the engine. Searches are asynchronous:
// POST /search queues a job and hands back a UUID, GET /search/:job_id polls
// for the manifest. Everything else is introspection.
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

	"github.com/trendsift/viral-engine/internal/config"
	"github.com/trendsift/viral-engine/internal/engine"
	"github.com/trendsift/viral-engine/internal/jobserver"
)

func Start(ctx context.Context, eng *engine.Engine, ec config.EngineConfig) error {

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

	maxJobs, err := ec.GetInt("max_jobs", 10)
	if err != nil || maxJobs <= 0 {
		e.Logger.Warn("MAX_JOBS is not usable, using default of 10")
		maxJobs = 10
	}

	// Jobserver instance
	jobServer := jobserver.NewJobServer(maxJobs, ec, eng)
	go jobServer.Run(ctx)

	// Seed the provider health snapshot with one verification pass, then
	// keep it reconciled in the background.
	go eng.Verifier().VerifyProviders(ctx, eng.Capabilities().Providers())
	go eng.Health().StartReconciliationLoop(ctx)

	// Initialize health metrics
	healthMetrics := NewHealthMetrics()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// API Key Authentication Middleware
	e.Use(APIKeyAuthMiddleware(ec))

	// Health metrics tracking middleware
	e.Use(HealthMetricsMiddleware(healthMetrics))

	readinessDirs := []string{
		ec.GetString("output_dir", ""),
		ec.GetString("images_dir", ""),
		ec.GetString("screenshots_dir", ""),
	}

	// Health check endpoints (no auth required)
	e.GET("/healthz", Healthz())
	e.GET("/readyz", Readyz(jobServer, healthMetrics, eng.Health(), readinessDirs))

	// Set up profiling if allowed
	if enabled, ok := ec["profiling_enabled"].(bool); ok && enabled {
		enableProfiling(e)
	}

	debug := e.Group("/debug/pprof")
	debug.POST("/enable", func(c echo.Context) error {
		enableProfiling(e)
		return c.String(http.StatusOK, "pprof enabled")
	})
	debug.POST("/disable", func(c echo.Context) error {
		disableProfiling(e)
		return c.String(http.StatusOK, "pprof disabled")
	})

	/*
		- POST /search: queue a search, returns the job UUID
		- GET /search/:job_id: poll for the manifest
		- GET /search/queue/stats: dual-lane queue statistics
	*/
	search := e.Group("/search")
	search.POST("", add(jobServer))
	search.GET("/queue/stats", queueStats(jobServer))
	search.GET("/:job_id", status(jobServer))

	e.GET("/sessions", sessions(eng))
	e.GET("/capabilities", capabilities(eng))
	e.GET("/stats", statsSnapshot(eng))

	go func() {
		<-ctx.Done()
		jobServer.Shutdown()
		if err := e.Close(); err != nil {
			e.Logger.Error("Failed to close Echo server: ", err)
		}
	}()

	listenAddress := ec.GetString("listen_address", ":8080")
	e.Logger.Info(fmt.Sprintf("Starting server on %s", listenAddress))
	if err := e.Start(listenAddress); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// enableProfiling registers the pprof endpoints and turns the expensive
// runtime probes on.
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

func disableProfiling(e *echo.Echo) {
	e.Logger.Info("Disabling performance-intensive profiling probes")

	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)
	runtime.SetCPUProfileRate(0)

	// The endpoints stay registered; only the data collection stops.
}
