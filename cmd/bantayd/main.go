package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	echopprof "github.com/sevenNt/echo-pprof"
	"github.com/urfave/cli/v2"

	"github.com/barangay-tools/bantay/pkg/alert"
	"github.com/barangay-tools/bantay/pkg/audit"
	"github.com/barangay-tools/bantay/pkg/backend"
	"github.com/barangay-tools/bantay/pkg/feedapi"
	"github.com/barangay-tools/bantay/pkg/recon"
	"github.com/barangay-tools/bantay/pkg/seenstore"
)

func main() {
	app := cli.App{
		Name:    "bantayd",
		Usage:   "barangay notification reconciliation agent",
		Version: "0.0.1",
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "backend-url",
			Usage:   "base URL of the barangay backend REST API",
			Value:   "http://localhost:3000",
			EnvVars: []string{"BANTAY_BACKEND_URL"},
		},
		&cli.StringFlag{
			Name:     "username",
			Usage:    "username to reconcile notifications for",
			Required: true,
			EnvVars:  []string{"BANTAY_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "role",
			Usage:   "role of the user (tanod or resident), selects streams and permissions",
			Value:   "tanod",
			EnvVars: []string{"BANTAY_ROLE"},
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "port to serve the http server on",
			Value:   8080,
			EnvVars: []string{"BANTAY_PORT"},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "enable debug logging",
			Value:   false,
			EnvVars: []string{"BANTAY_DEBUG"},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "path to data directory",
			Value:   "./data/bantay",
			EnvVars: []string{"BANTAY_DATA_DIR"},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "poll interval for patrol and incident streams",
			Value:   5 * time.Second,
			EnvVars: []string{"BANTAY_POLL_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "activity-poll-interval",
			Usage:   "poll interval for the personal activity stream",
			Value:   15 * time.Second,
			EnvVars: []string{"BANTAY_ACTIVITY_POLL_INTERVAL"},
		},
		&cli.Float64Flag{
			Name:    "backend-rps",
			Usage:   "rate limit for backend requests in requests per second",
			Value:   10,
			EnvVars: []string{"BANTAY_BACKEND_RPS"},
		},
		&cli.DurationFlag{
			Name:    "snapshot-ttl",
			Usage:   "time to live for cached stream snapshots",
			Value:   168 * time.Hour,
			EnvVars: []string{"BANTAY_SNAPSHOT_TTL"},
		},
		&cli.StringFlag{
			Name:    "audit-dir",
			Usage:   "directory for parquet audit files (empty disables the audit archive)",
			EnvVars: []string{"BANTAY_AUDIT_DIR"},
		},
	}

	app.Action = Agent

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// Agent is the main function for the notification agent
func Agent(cctx *cli.Context) error {
	ctx, cancel := context.WithCancel(cctx.Context)
	defer cancel()

	// Logging
	logLevel := slog.LevelInfo
	if cctx.Bool("debug") {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel, AddSource: true}))
	slog.SetDefault(slog.New(logger.Handler()))

	logger.Info("starting up")

	// Make sure data directory exists
	dataDir := cctx.String("data-dir")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "err", err)
		return err
	}

	caps, err := recon.RoleCapabilities(cctx.String("role"))
	if err != nil {
		logger.Error("invalid role", "err", err)
		return err
	}

	store, err := seenstore.Open(logger, filepath.Join(dataDir, "bantay.db"))
	if err != nil {
		logger.Error("failed to open seen store", "err", err)
		return err
	}

	client, err := backend.NewClient(logger, cctx.String("backend-url"), cctx.Float64("backend-rps"))
	if err != nil {
		logger.Error("failed to create backend client", "err", err)
		return err
	}

	var archive *audit.Archive
	var auditRec audit.Recorder
	if cctx.String("audit-dir") != "" {
		logger.Info("audit dir set, starting audit archive")
		archive, err = audit.NewArchive(logger, cctx.String("audit-dir"), "bantay_audit", 512, time.Minute)
		if err != nil {
			logger.Error("failed to create audit archive", "err", err)
			return err
		}
		archive.StartWriter()
		auditRec = archive
		defer archive.Shutdown()
	}

	hub := alert.NewHub(logger)
	alerter := alert.Multi(alert.NewLogAlerter(logger), hub)

	engine := recon.NewEngine(
		logger,
		client,
		client,
		store,
		alerter,
		auditRec,
		cctx.String("username"),
		caps,
	)

	// Start the snapshot pruner
	go store.RunSnapshotPruner(ctx, 5*time.Minute, cctx.Duration("snapshot-ttl"))

	// Start one poller per enabled stream
	var pollers []*recon.Poller
	for _, kind := range caps.EnabledStreams() {
		interval := cctx.Duration("poll-interval")
		if kind == backend.StreamPersonalActivity {
			interval = cctx.Duration("activity-poll-interval")
		}
		p := recon.NewPoller(logger, engine, kind, interval)
		pollers = append(pollers, p)
		go func() {
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("poller exited with error", "err", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(slogecho.New(logger))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace: "bantay",
		HistogramOptsFunc: func(opts prometheus.HistogramOpts) prometheus.HistogramOpts {
			opts.Buckets = prometheus.ExponentialBuckets(0.00001, 2, 20)
			return opts
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	api := feedapi.NewAPI(engine, hub)
	api.Register(e)
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Bantay")
	})
	echopprof.Wrap(e)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cctx.Int("port")),
		Handler: e,
	}

	// Startup HTTP server
	shutdownHTTPServer := make(chan struct{})
	httpServerShutdown := make(chan struct{})
	go func() {
		logger := logger.With("source", "http_server")

		logger.Info("http server listening on port", "port", cctx.Int("port"))

		go func() {
			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("failed to start http server", "error", err)
			}
		}()
		<-shutdownHTTPServer
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shut down http server", "error", err)
		}
		logger.Info("http server shut down")
		close(httpServerShutdown)
	}()

	// Trap SIGINT to trigger a shutdown.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-signals:
		logger.Info("received signal, shutting down")
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down, waiting for routines to finish")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	for _, p := range pollers {
		if err := p.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown poller", "err", err)
		}
	}

	close(shutdownHTTPServer)
	<-httpServerShutdown

	cancel()
	logger.Info("shutdown complete")

	return nil
}
