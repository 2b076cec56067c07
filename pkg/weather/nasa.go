// Package weather fetches daily solar irradiance and surface weather from
// the NASA POWER point API.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/HatiCode/solariq/pkg/series"
)

// DefaultBaseURL is the NASA POWER daily point endpoint.
const DefaultBaseURL = "https://power.larc.nasa.gov/api/temporal/daily/point"

// CompactLayout is the date layout of the POWER API.
const CompactLayout = "20060102"

// ErrExternalService wraps every failure to obtain data from the provider.
var ErrExternalService = errors.New("external service error")

const (
	paramIrradiance  = "ALLSKY_SFC_SW_DWN"
	paramTemperature = "T2M"
	paramWindSpeed   = "WIND_SPEED"

	// POWER reports missing data with this fill value
	fillValue = -999.0
)

// Observation is one day of provider data. Fields are nil where the
// provider reported a fill value.
type Observation struct {
	Date            time.Time `json:"-"`
	SolarIrradiance *float64  `json:"solar_irradiance"`
	Temperature     *float64  `json:"temperature"`
	WindSpeed       *float64  `json:"wind_speed"`
}

// MarshalJSON renders the date in the provider's YYYYMMDD layout.
func (o Observation) MarshalJSON() ([]byte, error) {
	type plain Observation
	return json.Marshal(struct {
		Date string `json:"date"`
		plain
	}{Date: o.Date.Format(CompactLayout), plain: plain(o)})
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// Timeout bounds each attempt.
	Timeout time.Duration
	// Retries is the number of retries after the first attempt.
	Retries int
	// RPS limits outgoing requests; 0 disables limiting.
	RPS float64
	// InitialBackoff is the first retry delay; 500ms when zero.
	InitialBackoff time.Duration
}

// Client is a NASA POWER client. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient with
// per-attempt timeouts from cfg.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	return &Client{cfg: cfg, http: httpClient, limiter: limiter, logger: logger}
}

// Daily returns observations for [start, end] at the given point, sorted by
// date. Invalid coordinates or an inverted range return
// series.ErrInvalidInput; provider failures wrap ErrExternalService.
func (c *Client) Daily(ctx context.Context, lat, lon float64, start, end time.Time) ([]Observation, error) {
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("%w: latitude %v out of range [-90, 90]", series.ErrInvalidInput, lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: longitude %v out of range [-180, 180]", series.ErrInvalidInput, lon)
	}
	start, end = series.Day(start), series.Day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s", series.ErrInvalidInput,
			start.Format(CompactLayout), end.Format(CompactLayout))
	}

	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %v", ErrExternalService, err)
	}
	q := u.Query()
	q.Set("parameters", paramIrradiance+","+paramTemperature+","+paramWindSpeed)
	q.Set("community", "RE")
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("start", start.Format(CompactLayout))
	q.Set("end", end.Format(CompactLayout))
	q.Set("format", "JSON")
	u.RawQuery = q.Encode()

	body, err := c.fetch(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return parseDaily(body)
}

func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	var body []byte
	attempt := 0

	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(actx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = payload
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, truncate(payload, 256)))
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("weather request failed, retrying",
			"attempt", attempt, "retry_in_ms", wait.Milliseconds(), "error", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.Retries)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("%w: nasa power: %v", ErrExternalService, err)
	}
	return body, nil
}

func parseDaily(body []byte) ([]Observation, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: nasa power: invalid JSON response", ErrExternalService)
	}
	params := gjson.GetBytes(body, "properties.parameter")
	if !params.Exists() {
		return nil, fmt.Errorf("%w: nasa power: response has no properties.parameter", ErrExternalService)
	}

	byDay := make(map[string]*Observation)
	collect := func(name string, set func(*Observation, *float64)) error {
		var perr error
		params.Get(name).ForEach(func(key, value gjson.Result) bool {
			obs, ok := byDay[key.String()]
			if !ok {
				d, err := time.Parse(CompactLayout, key.String())
				if err != nil {
					perr = fmt.Errorf("%w: nasa power: bad date key %q", ErrExternalService, key.String())
					return false
				}
				obs = &Observation{Date: d}
				byDay[key.String()] = obs
			}
			set(obs, reading(value))
			return true
		})
		return perr
	}

	if err := collect(paramIrradiance, func(o *Observation, v *float64) { o.SolarIrradiance = v }); err != nil {
		return nil, err
	}
	if err := collect(paramTemperature, func(o *Observation, v *float64) { o.Temperature = v }); err != nil {
		return nil, err
	}
	if err := collect(paramWindSpeed, func(o *Observation, v *float64) { o.WindSpeed = v }); err != nil {
		return nil, err
	}

	out := make([]Observation, 0, len(byDay))
	for _, o := range byDay {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func reading(v gjson.Result) *float64 {
	if v.Type != gjson.Number {
		return nil
	}
	f := v.Float()
	if f == fillValue {
		return nil
	}
	return &f
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
