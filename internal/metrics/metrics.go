package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danpilch/tramboard/internal/departures"
	"github.com/danpilch/tramboard/internal/feed"
)

// Query outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

type Collector struct {
	reg *prometheus.Registry

	Queries       *prometheus.CounterVec // outcome label: ok|empty|error
	QueryDuration prometheus.Histogram

	WeatherFetches      prometheus.Counter
	WeatherErrors       prometheus.Counter
	WeatherTemperature  prometheus.Gauge
	NotificationsSent   prometheus.Counter
	NotificationErrors  prometheus.Counter
	LastRefreshUnixTime prometheus.Gauge
	RefreshInterval     prometheus.Gauge // seconds
}

// CacheSource reports memoization counters.
type CacheSource interface {
	CacheStats() departures.CacheStats
}

func NewCollector(cache CacheSource, stats feed.Stats, refreshInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tramboard_queries_total",
			Help: "Departure queries by outcome.",
		}, []string{"outcome"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tramboard_query_duration_seconds",
			Help:    "Duration of departure queries.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		WeatherFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tramboard_weather_fetches_total",
			Help: "Total weather refresh attempts.",
		}),
		WeatherErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tramboard_weather_errors_total",
			Help: "Total failed weather refreshes.",
		}),
		WeatherTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tramboard_weather_temperature_celsius",
			Help: "Last fetched temperature.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tramboard_notifications_sent_total",
			Help: "Total imminent departure notifications sent.",
		}),
		NotificationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tramboard_notification_errors_total",
			Help: "Total failed notifications.",
		}),
		LastRefreshUnixTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tramboard_last_refresh_timestamp_seconds",
			Help: "Unix time of the last board refresh.",
		}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tramboard_refresh_interval_seconds",
			Help: "Board refresh interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Queries, c.QueryDuration,
		c.WeatherFetches, c.WeatherErrors, c.WeatherTemperature,
		c.NotificationsSent, c.NotificationErrors,
		c.LastRefreshUnixTime, c.RefreshInterval,
	)

	if cache != nil {
		reg.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "tramboard_cache_hits_total",
				Help: "Query cache hits.",
			}, func() float64 { return float64(cache.CacheStats().Hits) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "tramboard_cache_misses_total",
				Help: "Query cache misses.",
			}, func() float64 { return float64(cache.CacheStats().Misses) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "tramboard_cache_entries",
				Help: "Entries held by the query cache.",
			}, func() float64 { return float64(cache.CacheStats().Size) }),
		)
	}

	feedRows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tramboard_feed_rows",
		Help: "Rows loaded per GTFS table.",
	}, []string{"table"})
	reg.MustRegister(feedRows)
	feedRows.WithLabelValues("stops").Set(float64(stats.Stops))
	feedRows.WithLabelValues("routes").Set(float64(stats.Routes))
	feedRows.WithLabelValues("trips").Set(float64(stats.Trips))
	feedRows.WithLabelValues("stop_times").Set(float64(stats.StopTimes))
	feedRows.WithLabelValues("calendar").Set(float64(stats.Calendars))
	feedRows.WithLabelValues("calendar_dates").Set(float64(stats.Exceptions))

	c.RefreshInterval.Set(refreshInterval.Seconds())

	return c
}

// ObserveQuery records one engine call.
func (c *Collector) ObserveQuery(outcome string, d time.Duration) {
	c.Queries.WithLabelValues(outcome).Inc()
	c.QueryDuration.Observe(d.Seconds())
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }
