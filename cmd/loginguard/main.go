package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"loginguard/internal/api"
	"loginguard/internal/artifact"
	"loginguard/internal/config"
	"loginguard/internal/engine"
	"loginguard/internal/geo"
	"loginguard/internal/ingest"
	"loginguard/internal/logging"
	"loginguard/internal/metrics"
	"loginguard/internal/model"
	"loginguard/internal/storage"
)

var version = "dev"

// artifactLoader resolves the model directory on every load so that a
// changed model.dir takes effect on the next reload.
type artifactLoader struct {
	cfg    *config.Manager
	logger *slog.Logger
}

func (l artifactLoader) Load(name string) (artifact.Bundle, error) {
	return artifact.NewStore(l.cfg.Get().Model.Dir, l.logger).Load(name)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	configPath := flag.String("config", "loginguard.yaml", "config file (yaml or json); defaults apply when it does not exist")
	flag.Parse()

	path := config.ResolvePath(*configPath)
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	mgr, err := config.NewManager(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get()
	logger, syncLogs := logging.NewLogger(cfg.LogLevel)
	defer func() { _ = syncLogs() }()
	if path == "" {
		logger.Info("config file not found, using defaults", "path", *configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	locator := geo.New(cfg.Geo.CityDB, cfg.Geo.Fallback.Location(), logger)
	if c, ok := locator.(io.Closer); ok {
		defer c.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	eng := engine.NewEngine(artifactLoader{cfg: mgr, logger: logger}, cfg.Model.Name, logger, m)
	eng.SetDedupeWindow(cfg.Ingest.DedupeWindow.Std())
	if err := eng.Init(ctx); err != nil {
		logger.Warn("no model loaded, events pass through unscored until a reload succeeds",
			"name", cfg.Model.Name,
			"dir", cfg.Model.Dir,
			"err", err,
		)
	}

	var sinks []engine.Sink
	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
		if err := store.Init(ctx); err != nil {
			logger.Error("storage schema init failed", "driver", cfg.Storage.Driver, "err", err)
			os.Exit(1)
		}
		if cfg.Storage.SaveScored {
			sinks = append(sinks, engine.SinkFunc(store.SaveScored))
		}
	}
	if kc := cfg.Ingest.Kafka; kc.Enabled && kc.OutputTopic != "" {
		publisher := ingest.NewKafkaPublisher(kc)
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	events := make(chan model.LoginEvent, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, events, sinks...)

	src := ingest.Source{Config: mgr, Locator: locator, Out: events, Logger: logger}
	ingest.StartKafka(ctx, src)
	ingest.StartFileTail(ctx, src)
	api.Start(ctx, api.NewServer(mgr, eng, src, reg, logger, version))

	stopWatch := make(chan struct{})
	current := cfg.Model
	go mgr.Watch(3*time.Second, func(next *config.Config) {
		logger.Info("config reloaded", "path", mgr.Path())
		eng.SetDedupeWindow(next.Ingest.DedupeWindow.Std())
		if next.Model == current {
			return
		}
		current = next.Model
		if err := eng.Reload(ctx, next.Model.Name); err != nil {
			logger.Warn("model reload after config change failed", "name", next.Model.Name, "err", err)
		}
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, stopWatch)

	logger.Info("loginguard started", "version", version, "model", cfg.Model.Name, "ready", eng.Ready())
	<-ctx.Done()
	close(stopWatch)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = eng.Shutdown(shutdownCtx)
	logger.Info("loginguard stopped")
}
