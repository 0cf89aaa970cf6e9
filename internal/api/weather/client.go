package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const DefaultBaseURL = "https://api.open-meteo.com"

// Client is an Open-Meteo API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	latitude   float64
	longitude  float64
	maxRetries uint64
	retryDelay time.Duration
	logger     *logrus.Logger
}

// NewClient creates a client for the given coordinates. An empty baseURL
// uses the public Open-Meteo endpoint.
func NewClient(baseURL string, latitude, longitude float64, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		latitude:   latitude,
		longitude:  longitude,
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
		logger:     logger,
	}
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Current retrieves the current temperature and weather code. Transport
// errors and 5xx responses are retried with exponential backoff.
func (c *Client) Current(ctx context.Context) (Reading, error) {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.retryDelay,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      30 * time.Second,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	forecast, err := backoff.RetryNotifyWithData(
		func() (*Forecast, error) { return c.fetch(ctx) },
		backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx),
		func(err error, d time.Duration) {
			c.logger.WithError(err).WithField("retry_in", d).Warn("weather request failed")
		},
	)
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		Temperature: forecast.CurrentWeather.Temperature,
		Code:        forecast.CurrentWeather.WeatherCode,
	}, nil
}

func (c *Client) fetch(ctx context.Context) (*Forecast, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(c.longitude, 'f', -1, 64))
	q.Set("current_weather", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", "tramboard/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := &StatusError{Code: resp.StatusCode}
		if resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var result Forecast
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decoding response: %w", err))
	}

	return &result, nil
}
