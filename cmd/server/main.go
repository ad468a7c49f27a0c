package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/DavidGamba/go-getoptions"
	"github.com/anonto42/nano-midea/notifications/internal/router"
	"github.com/anonto42/nano-midea/notifications/internal/validators"
	"github.com/anonto42/nano-midea/notifications/pkg/config"
	"github.com/anonto42/nano-midea/notifications/pkg/logger"
	"github.com/anonto42/nano-midea/notifications/pkg/obs"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type commandLineOptionValues struct {
	Config string
}

func parseCommandLine() *commandLineOptionValues {
	optionValues := &commandLineOptionValues{}
	opt := getoptions.New()

	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&optionValues.Config, "config", "",
		opt.Alias("c"),
		opt.Description("path to a YAML configuration file"))

	_, err := opt.Parse(os.Args[1:])
	if opt.Called("help") {
		fmt.Fprint(os.Stderr, opt.Help())
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		fmt.Fprint(os.Stderr, opt.Help(getoptions.HelpSynopsis))
		os.Exit(1)
	}
	return optionValues
}

func main() {
	options := parseCommandLine()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(options.Config)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		App:        "notifications",
		Env:        cfg.Env,
		Version:    cfg.Version,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting notifications",
		zap.String("store", cfg.NotificationStore),
		zap.String("broadcast", cfg.BroadcastDriver),
	)

	otelCloser, err := obs.SetupOTel(rootCtx, &obs.OTELConfig{
		Enable:      cfg.OTel.Enable,
		Endpoint:    cfg.OTel.Endpoint,
		ServiceName: cfg.OTel.ServiceName,
		SampleRatio: cfg.OTel.SampleRatio,
	})
	if err != nil {
		l.Warn("otel init", zap.Error(err))
		otelCloser = &obs.OTel{}
	}

	db, err := config.InitDB(rootCtx, cfg, l)
	if err != nil {
		l.Fatal("Failed to initialize databases", zap.Error(err))
	}
	defer db.CloseDB()
	if err := db.Migrate(rootCtx); err != nil {
		l.Fatal("Failed to migrate", zap.Error(err))
	}

	app, err := buildApp(rootCtx, cfg, db, l)
	if err != nil {
		l.Fatal("Failed to wire service", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validators.NewValidator()
	router.SetupMiddleware(e, l)
	router.SetupRoutes(e, app.deps)

	metricsSrv := obs.BootstrapMetricsServer(":"+cfg.MetricsPort, db.Ping, l)

	httpErrCh := make(chan error, 1)
	go func() {
		l.Info("http listening", zap.String("port", cfg.Port))
		httpErrCh <- e.Start(":" + cfg.Port)
	}()

	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal", zap.String("reason", "context canceled"))
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http serve", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	// Websocket connections are hijacked, so the hub closes them itself.
	app.hub.Shutdown()
	if err := e.Shutdown(shCtx); err != nil {
		l.Warn("http shutdown", zap.Error(err))
	}
	app.close()
	_ = metricsSrv.Shutdown(shCtx)
	_ = otelCloser.Shutdown(shCtx)
	l.Info("bye")
}
