package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/danpilch/tramboard/internal/api/weather"
	"github.com/danpilch/tramboard/internal/metrics"
)

// WeatherSource fetches current conditions.
type WeatherSource interface {
	Current(ctx context.Context) (weather.Reading, error)
}

// WeatherMonitor keeps the last good weather reading for the board.
type WeatherMonitor struct {
	client  WeatherSource
	metrics *metrics.Collector
	logger  *logrus.Logger

	mu      sync.RWMutex
	last    weather.Reading
	updated time.Time
	valid   bool
}

func NewWeatherMonitor(client WeatherSource, collector *metrics.Collector, logger *logrus.Logger) *WeatherMonitor {
	return &WeatherMonitor{
		client:  client,
		metrics: collector,
		logger:  logger,
	}
}

// CheckWeather fetches a new reading. On failure the previous reading is kept.
func (m *WeatherMonitor) CheckWeather(ctx context.Context) error {
	if m.metrics != nil {
		m.metrics.WeatherFetches.Inc()
	}

	reading, err := m.client.Current(ctx)
	if err != nil {
		if m.metrics != nil {
			m.metrics.WeatherErrors.Inc()
		}
		return err
	}

	m.mu.Lock()
	changed := !m.valid || m.last != reading
	m.last = reading
	m.updated = time.Now()
	m.valid = true
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.WeatherTemperature.Set(reading.Temperature)
	}

	if changed {
		m.logger.WithFields(logrus.Fields{
			"temperature": reading.Temperature,
			"code":        reading.Code,
			"condition":   reading.Description(),
		}).Info("weather updated")
	}

	return nil
}

// Current returns the last reading, when it was fetched and whether one exists.
func (m *WeatherMonitor) Current() (weather.Reading, time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.updated, m.valid
}
