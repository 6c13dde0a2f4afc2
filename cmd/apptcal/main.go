package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"apptcal/internal/api"
	"apptcal/internal/capture"
	"apptcal/internal/config"
	appLog "apptcal/internal/log"
	"apptcal/internal/metrics"
	"apptcal/internal/model"
	"apptcal/internal/recurrence"
	"apptcal/internal/series"
	"apptcal/internal/shell"
	"apptcal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	snapshot   string
	date       string
	view       string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	defer appLog.Sync()

	appLog.Info("apptcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"api", conf.API.BaseURL,
		"refresh", conf.RefreshCron,
		"strategy", conf.Recurrence.Strategy,
		"max_occurrences", conf.Recurrence.MaxOccurrences,
		"clinics_disabled", len(conf.ClinicsDisabled),
		"once", flags.once,
		"snapshot", flags.snapshot,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("apptcal failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Info("apptcal exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	loc, err := conf.Location()
	if err != nil {
		return err
	}

	client, err := api.NewClient(api.Options{
		BaseURL:     conf.API.BaseURL,
		TokenPath:   conf.API.TokenPath,
		TokenHeader: conf.API.TokenHeader,
		Timeout:     conf.APITimeout(),
		Location:    loc,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	calMetrics := metrics.New(reg)

	disabled := make([]model.ID, 0, len(conf.ClinicsDisabled))
	for _, id := range conf.ClinicsDisabled {
		disabled = append(disabled, model.ID(id))
	}

	sh, err := shell.New(shell.Options{
		API:               client,
		Location:          loc,
		DoubleClickWindow: conf.DoubleClickWindow(),
		Recurrence: recurrence.Config{
			Location:       loc,
			MaxOccurrences: conf.Recurrence.MaxOccurrences,
			SafetyCap:      conf.Recurrence.SafetyCap,
		},
		Strategy:        series.ParseStrategy(conf.Recurrence.Strategy),
		ClinicsDisabled: disabled,
		Metrics:         calMetrics,
	})
	if err != nil {
		return err
	}

	// A failed first fetch leaves the calendar in its errored state; the
	// scheduler or a manual refresh recovers it.
	if err := sh.Refresh(ctx); err != nil {
		appLog.Warn("initial calendar fetch failed", "error", err.Error())
	}
	if flags.date != "" || flags.view != "" {
		if _, err := sh.ApplyURL(flags.date, flags.view); err != nil {
			return fmt.Errorf("bad -date/-view: %w", err)
		}
	}

	switch {
	case flags.once:
		_, err := fmt.Fprint(os.Stdout, sh.Export("Appointments"))
		return err
	case flags.snapshot != "":
		return snapshot(ctx, conf, loc, flags)
	}

	if err := sh.StartAutoRefresh(ctx, conf.RefreshCron); err != nil {
		return err
	}
	defer sh.Stop()

	srv := web.NewServer(conf, sh, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// snapshot captures the front-end's rendering of the requested view.
func snapshot(ctx context.Context, conf *config.Config, loc *time.Location, flags flagConfig) error {
	var date time.Time
	if flags.date != "" {
		d, err := time.ParseInLocation(model.DateLayout, flags.date, loc)
		if err != nil {
			return fmt.Errorf("bad -date %q: %w", flags.date, err)
		}
		date = d
	}
	var view model.ViewMode
	if flags.view != "" {
		v, ok := model.ParseViewMode(flags.view)
		if !ok {
			return fmt.Errorf("bad -view %q", flags.view)
		}
		view = v
	}
	return capture.CaptureView(ctx, capture.ViewOptions{
		BaseURL:    conf.Snapshot.BaseURL,
		Date:       date,
		View:       view,
		OutputPath: flags.snapshot,
		Width:      conf.Snapshot.Width,
		Height:     conf.Snapshot.Height,
		Timeout:    time.Duration(conf.Snapshot.TimeoutSeconds) * time.Second,
	})
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/apptcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch once, print the visible calendar as iCalendar and exit")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Write a PNG of the front-end calendar view to this path and exit")
	flag.StringVar(&cfg.date, "date", "", "Focus date (YYYY-MM-DD) for the initial view")
	flag.StringVar(&cfg.view, "view", "", "Initial view: day, week or month")

	flag.Parse()

	return cfg
}
