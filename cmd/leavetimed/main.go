package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"leavetimed/internal/cache"
	"leavetimed/internal/config"
	"leavetimed/internal/engine"
	"leavetimed/internal/ics"
	appLog "leavetimed/internal/log"
	"leavetimed/internal/notify"
	"leavetimed/internal/routing"
	"leavetimed/internal/store"
	"leavetimed/internal/timeline"
	"leavetimed/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("leavetimed starting", "version", "1.0.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone, falling back to local", err, "timezone", conf.Timezone)
		loc = time.Local
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"buffer_minutes", conf.BufferMinutes,
		"ics_count", len(conf.ICS),
		"once", flags.once,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	st, err := store.New(filepath.Join(conf.DataDir, "leavetimed.db"))
	if err != nil {
		appLog.Error("failed to open store", err, "data_dir", conf.DataDir)
		os.Exit(1)
	}
	defer st.Close()

	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		sources = append(sources, ics.Source{ID: c.ID, URL: c.URL})
	}
	calendar := ics.NewCalendar(
		ics.NewFetcher(filepath.Join(conf.DataDir, "ics-cache")),
		sources, loc,
	)

	router := routing.NewClient(routing.Options{
		GeocodeURL: conf.Routing.GeocodeURL,
		RouteURL:   conf.Routing.RouteURL,
		Origin:     conf.Origin,
		Timeout:    time.Duration(conf.Routing.TimeoutSeconds) * time.Second,
	})

	var notifier notify.Notifier
	if conf.NotifyCommand != "" {
		execNotifier := notify.NewExecNotifier(conf.NotifyCommand)
		defer execNotifier.Close()
		notifier = execNotifier
	} else {
		appLog.Info("no notify command configured, alerts are log-only")
		notifier = notify.NewMemoryNotifier()
	}

	eng := engine.New(engine.Options{
		Store:           st,
		Source:          calendar,
		Router:          router,
		Alerts:          notify.NewScheduler(notifier),
		Signal:          engine.SignalFunc(func() { appLog.Debug("snapshot changed, display will pick it up on next wake") }),
		Ranges:          cache.NewEventRangeCache(time.Duration(conf.RangeTTLMinutes) * time.Minute),
		Drives:          cache.NewDriveTimeCache(time.Duration(conf.DriveTTLMinutes) * time.Minute),
		HorizonDays:     conf.HorizonDays,
		BufferDefault:   conf.BufferMinutes,
		AlertsDefault:   conf.AlertsEnabled,
		LocationTimeout: time.Duration(conf.Routing.TimeoutSeconds) * time.Second,
	})

	if flags.once {
		if !eng.Refresh(ctx, true) {
			os.Exit(1)
		}
		appLog.Sync()
		return
	}

	// Periodic refresh on the configured cron schedule.
	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() { eng.Refresh(ctx, false) }); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	// Initial run so the display has data before the first cron tick.
	go eng.Refresh(ctx, false)

	srv := &http.Server{
		Addr:    conf.Listen,
		Handler: web.NewServer(conf, eng, st, timeline.NewGenerator()).Handler(),
	}
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}

	appLog.Info("leavetimed exiting")
	appLog.Sync()
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/leavetimed/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch+process cycle and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()
	return cfg
}
