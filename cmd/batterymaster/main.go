package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/topabomb/BatteryMaster/internal/alerter"
	"github.com/topabomb/BatteryMaster/internal/api"
	"github.com/topabomb/BatteryMaster/internal/archive"
	"github.com/topabomb/BatteryMaster/internal/cache"
	"github.com/topabomb/BatteryMaster/internal/collector"
	"github.com/topabomb/BatteryMaster/internal/config"
	"github.com/topabomb/BatteryMaster/internal/metrics"
	"github.com/topabomb/BatteryMaster/internal/notify"
	"github.com/topabomb/BatteryMaster/internal/store"
	"golang.org/x/sync/errgroup"
)

// @title BatteryMaster API
// @version 1.0
// @description Battery telemetry history, tier series and live change feed
// @host localhost:3801
// @BasePath /

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// buildInfo returns version, commit, build time, and VCS details from the
// embedded Go build info. ldflags-injected values take priority; VCS info
// from debug.ReadBuildInfo fills in anything left as default.
func buildInfo() (ver, sha, built, dirty string) {
	ver = version
	sha = commit
	built = buildTime
	dirty = "clean"

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if sha == "none" {
				sha = s.Value
			}
		case "vcs.time":
			if built == "unknown" {
				built = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "dirty"
			}
		}
	}

	return
}

func newLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newSource(cfg config.SourceConfig) (collector.Source, error) {
	switch cfg.Type {
	case "ssh":
		return collector.NewSSHSource(cfg.Battery, collector.SSHConfig{
			Host:    cfg.SSH.Host,
			User:    cfg.SSH.User,
			KeyPath: cfg.SSH.KeyPath,
		})
	default:
		return collector.NewSysfsSource(cfg.SysfsRoot, cfg.Battery, cfg.Backlight), nil
	}
}

func alertConfig(cfg config.AlertsConfig) alerter.AlertConfig {
	ac := alerter.DefaultAlertConfig()
	if a := cfg.StateChange; a != nil {
		ac.StateChange.Cooldown = a.Cooldown.Duration
	}
	if a := cfg.LowBattery; a != nil {
		ac.LowBattery.Threshold = a.Threshold
		if a.Severity != "" {
			ac.LowBattery.Severity = a.Severity
		}
	}
	return ac
}

func main() {
	configPath := flag.String("config", "", "path to batterymaster.yml config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	ver, sha, built, dirty := buildInfo()

	if *showVersion {
		fmt.Printf("batterymaster %s\n  commit:    %s (%s)\n  built:     %s\n  go:        %s\n  platform:  %s/%s\n",
			ver, sha, dirty, built, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigFileNotFound) {
			fmt.Fprintf(os.Stderr, "error: %s\n\n", err)
			fmt.Fprintf(os.Stderr, "Copy the example config to get started:\n")
			fmt.Fprintf(os.Stderr, "  cp batterymaster.example.yml %s\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "error: loading config (%s): %s\n", *configPath, err)
		}
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("starting batterymaster",
		"version", ver,
		"commit", sha,
		"built", built,
		"dirty", dirty,
		"go", runtime.Version(),
		"listen", cfg.Listen,
		"device", cfg.Device,
	)

	retention := store.DefaultRetention()
	retention.Realtime = cfg.RealtimeRetention.Duration
	retention.OneMinute = cfg.OneMinuteRetention.Duration

	st, err := store.Open(cfg.DBPath, cfg.IntervalSecs,
		store.WithRetention(retention),
		store.WithRealtimeBucket(cfg.RealtimeBucketSecs),
		store.WithLogger(logger.With("component", "store")),
	)
	if err != nil {
		slog.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	src, err := newSource(cfg.Source)
	if err != nil {
		slog.Error("creating source", "type", cfg.Source.Type, "error", err)
		os.Exit(1)
	}

	c := cache.New()
	pool := collector.NewWorkerPool(cfg.Source.MaxWorkers)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	hub := api.NewHub()
	g.Go(func() error { return hub.Run(ctx) })

	providers := notify.FromConfig(cfg.Notifications)
	a := alerter.NewAlerter(cfg.Device, providers, alertConfig(cfg.Alerts))
	g.Go(func() error { return a.Run(ctx) })

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, c)

	ing := collector.NewIngestor(src, st, c, pool, cfg.SampleInterval.Duration)
	ing.AddSink(m.Observe)
	ing.AddSink(hub.Observe)
	ing.AddSink(a.Observe)
	g.Go(func() error { return collector.Run(ctx, ing) })

	if cfg.Archive.Dir != "" {
		arch := archive.New(st, cfg.Archive.Dir, cfg.Archive.Interval.Duration)
		g.Go(func() error { return arch.Run(ctx) })
	}

	server := api.NewServer(cfg.Listen, c, st, hub)
	server.HandleMetrics(metrics.Handler(reg))
	g.Go(func() error { return server.Run(ctx) })

	slog.Info("all components started",
		"source", src.Name(),
		"sample_interval", cfg.SampleInterval.Duration,
		"interval_secs", cfg.IntervalSecs,
		"notifications", len(providers),
		"archive", cfg.Archive.Dir != "",
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "error", err)
	}

	slog.Info("batterymaster stopped gracefully")
}
