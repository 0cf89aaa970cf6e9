package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rodaine/table"
	"github.com/sirupsen/logrus"

	"github.com/danpilch/tramboard/internal/api/weather"
	"github.com/danpilch/tramboard/internal/calendar"
	"github.com/danpilch/tramboard/internal/config"
	"github.com/danpilch/tramboard/internal/departures"
	"github.com/danpilch/tramboard/internal/feed"
	"github.com/danpilch/tramboard/internal/metrics"
	"github.com/danpilch/tramboard/internal/monitor"
	"github.com/danpilch/tramboard/internal/notify"
	"github.com/danpilch/tramboard/internal/scheduler"
	"github.com/danpilch/tramboard/internal/web"
)

type Globals struct {
	Config string `help:"Path to config file" default:"config.yaml" type:"path"`
}

type ServeCmd struct{}

type QueryCmd struct {
	Station  string `arg:"" optional:"" help:"Station name or part of it (defaults to lookup.station)"`
	At       string `help:"Local time as YYYY-MM-DD HH:MM:SS (defaults to now)"`
	Count    int    `short:"n" help:"Number of departures (defaults to lookup.number_of_connections)"`
	Distinct bool   `help:"Earliest departure per route and direction"`
}

var CLI struct {
	Globals

	Serve ServeCmd `cmd:"" default:"1" help:"Run the departure board"`
	Query QueryCmd `cmd:"" help:"Print the next departures once"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("tramboard"),
		kong.Description("Tram departure board for a static GTFS feed."),
	)
	ctx.FatalIfErrorf(ctx.Run(&CLI.Globals))
}

// Setup structured logging with logfmt
func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
	return logger
}

func setup(g *Globals) (*config.Config, *logrus.Logger) {
	logger := newLogger()

	// Load configuration
	cfg, err := config.Load(g.Config)
	if err != nil {
		logger.WithField("error", err).Fatal("failed to load config")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("error", err).Fatal("invalid log level")
	}
	logger.SetLevel(level)

	return cfg, logger
}

func loadEngine(cfg *config.Config, logger *logrus.Logger) (*feed.Store, *departures.Engine) {
	start := time.Now()
	store, err := feed.Load(cfg.Feed.Path)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"path":  cfg.Feed.Path,
			"error": err,
		}).Fatal("failed to load GTFS feed")
	}

	stats := store.Stats()
	logger.WithFields(logrus.Fields{
		"path":       cfg.Feed.Path,
		"stops":      stats.Stops,
		"routes":     stats.Routes,
		"trips":      stats.Trips,
		"stop_times": stats.StopTimes,
		"calendars":  stats.Calendars,
		"exceptions": stats.Exceptions,
		"duration":   time.Since(start).String(),
	}).Info("feed loaded")

	loc, err := cfg.Location()
	if err != nil {
		logger.WithField("error", err).Fatal("invalid timezone")
	}

	engine := departures.NewEngine(store, calendar.NewResolver(store), departures.Options{
		Location:          loc,
		Exclusions:        cfg.EngineExclusions(),
		DistinctLimit:     cfg.Board.DistinctLimit,
		ServiceDayOverlap: cfg.Board.ServiceDayOverlap,
		CacheSize:         cfg.Board.CacheSize,
	}, logger)

	return store, engine
}

func (c *ServeCmd) Run(g *Globals) error {
	_ = godotenv.Load()

	cfg, logger := setup(g)
	store, engine := loadEngine(cfg, logger)

	collector := metrics.NewCollector(engine, store.Stats(), cfg.Board.RefreshInterval)

	var wm *monitor.WeatherMonitor
	if cfg.Weather.Enabled {
		client := weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.Latitude, cfg.Weather.Longitude, logger)
		wm = monitor.NewWeatherMonitor(client, collector, logger)
	}

	// Get credentials from environment
	var notifier monitor.Notifier
	if cfg.Notify.Enabled {
		pushoverToken := os.Getenv("PUSHOVER_TOKEN")
		pushoverUser := os.Getenv("PUSHOVER_USER")
		if pushoverToken == "" || pushoverUser == "" {
			logger.Fatal("PUSHOVER_TOKEN and PUSHOVER_USER environment variables are required when notify is enabled")
		}
		notifier = notify.NewNotifier(pushoverToken, pushoverUser, logger)
	}

	board := monitor.NewBoardMonitor(engine, monitor.BoardOptions{
		Station:  cfg.Lookup.Station,
		Count:    cfg.Lookup.NumberOfConnections,
		Mode:     cfg.Mode(),
		LeadTime: cfg.Notify.LeadTime,
	}, notifier, wm, collector, logger)

	sched := scheduler.NewScheduler(board, wm, scheduler.Options{
		RefreshInterval: cfg.Board.RefreshInterval,
		WeatherInterval: cfg.Weather.RefreshInterval,
	}, logger)

	server := web.NewServer(board, store, collector.Handler(), web.Options{
		RefreshInterval: cfg.Board.RefreshInterval,
		Count:           cfg.Lookup.NumberOfConnections,
		Mode:            cfg.Mode(),
	}, logger)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig).Info("received signal, shutting down")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"station": cfg.Lookup.Station,
		"mode":    cfg.Mode().String(),
		"listen":  cfg.Board.Listen,
		"weather": cfg.Weather.Enabled,
		"notify":  cfg.Notify.Enabled,
	}).Info("starting tramboard")

	sched.Start(ctx)

	err := server.Run(ctx, cfg.Board.Listen)
	cancel()

	// Stop scheduler gracefully
	sched.Stop()
	if err != nil {
		return fmt.Errorf("board server: %w", err)
	}
	logger.Info("tramboard stopped")
	return nil
}

func (c *QueryCmd) Run(g *Globals) error {
	cfg, logger := setup(g)
	_, engine := loadEngine(cfg, logger)

	station := c.Station
	if station == "" {
		station = cfg.Lookup.Station
	}
	count := c.Count
	if count == 0 {
		count = cfg.Lookup.NumberOfConnections
	}
	mode := cfg.Mode()
	if c.Distinct {
		mode = departures.ModeDistinct
	}
	at := c.At
	if at == "" {
		at = time.Now().In(engine.Location()).Format(departures.TimestampLayout)
	}

	res, err := engine.NextDepartures(station, at, count, mode)
	if err != nil {
		return err
	}

	fmt.Println(res.Station)
	if res.Empty() {
		fmt.Println("No departures found.")
		return nil
	}

	tbl := table.New("Time of departure", "Tram no.", "Direction")
	for _, d := range res.Departures {
		tbl.AddRow(d.DepartureTime, d.RouteShortName, d.Headsign)
	}
	tbl.Print()

	return nil
}
