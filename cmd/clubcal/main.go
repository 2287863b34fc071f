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

	"clubcal/internal/calendar"
	"clubcal/internal/capture"
	"clubcal/internal/config"
	"clubcal/internal/gcal"
	"clubcal/internal/ics"
	appLog "clubcal/internal/log"
	"clubcal/internal/refresh"
	"clubcal/internal/web"
)

const version = "0.3.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath   string
	listen       string
	capturePath  string
	captureMonth string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		if conf == nil {
			appLog.Error("failed to load config", err, "config_path", flags.configPath)
			os.Exit(1)
		}
		appLog.Warn("could not write default config; continuing with defaults", "config_path", flags.configPath, "err", err)
	}
	conf.ApplyEnv(os.LookupEnv)

	// CLI --listen overrides config file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("clubcal starting", "version", version)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"theme", conf.Site.Theme,
		"google_configured", conf.GoogleConfigured(),
		"ics_count", len(conf.ICS),
		"cache_ttl", conf.CacheTTL().String(),
		"refresh", conf.RefreshCron,
		"upcoming_count", conf.UpcomingCount,
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
		appLog.Error("clubcal failed", err)
		os.Exit(1)
	}
	appLog.Info("clubcal exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	loc := conf.Location()

	google, err := gcal.New(ctx, gcal.Options{
		APIKey:     conf.Google.APIKey,
		CalendarID: conf.Google.CalendarID,
		Endpoint:   conf.Google.Endpoint,
		MaxResults: conf.Google.MaxResults,
		Location:   loc,
	})
	if err != nil {
		return err
	}

	sources := []calendar.EventSource{google.Source("")}
	fetcher := ics.NewFetcher(nil)
	for _, src := range icsSources(conf.ICS) {
		sources = append(sources, ics.NewFeed(src, fetcher, loc))
	}

	cache := web.NewMonthCache(calendar.Merge(loc, sources...), conf.CacheTTL())
	srv, err := web.NewServer(web.Options{
		Config:   conf,
		Source:   cache,
		Metadata: google,
	})
	if err != nil {
		return err
	}

	if flags.capturePath != "" {
		return runCapture(ctx, srv, conf, flags)
	}

	sched, err := refresh.New(cache, refresh.Options{Spec: conf.RefreshCron, Location: loc})
	if err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	return srv.Run(ctx)
}

// icsSources converts configured feeds, skipping entries without a URL
// and filling in an id for logging.
func icsSources(cfgs []config.ICSConfig) []ics.Source {
	out := make([]ics.Source, 0, len(cfgs))
	for _, c := range cfgs {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			if c.Name != "" {
				id = c.Name
			} else {
				id = fmt.Sprintf("ics-%d", len(out)+1)
			}
		}
		out = append(out, ics.Source{ID: id, Name: c.Name, URL: c.URL})
	}
	return out
}

// runCapture serves the site just long enough to screenshot one month.
func runCapture(parent context.Context, srv *web.Server, conf *config.Config, flags flagConfig) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	base := "http://" + conf.Listen
	if err := waitHealthy(ctx, base+"/health", 5*time.Second); err != nil {
		return err
	}

	target := base + "/calendar"
	if flags.captureMonth != "" {
		target += "?month=" + flags.captureMonth
	}
	captureErr := capture.CalendarPNG(ctx, capture.Options{URL: target, OutputPath: flags.capturePath})

	cancel()
	if err := <-errCh; err != nil {
		appLog.Error("server stopped with error", err)
	}
	return captureErr
}

func waitHealthy(ctx context.Context, url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: time.Second}
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return errors.New("server did not become healthy in time")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/clubcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.capturePath, "capture", "", "Render the calendar page to this PNG path and exit")
	flag.StringVar(&cfg.captureMonth, "capture-month", "", "Month to capture as YYYY-MM (default: current month)")

	flag.Parse()

	return cfg
}
