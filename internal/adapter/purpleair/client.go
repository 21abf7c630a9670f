// Package purpleair pulls sensor history from the PurpleAir API.
package purpleair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/adapter/csvio"
	"github.com/couchcryptid/aqi-fusion/internal/observability"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/guregu/null"
	"github.com/jonboulle/clockwork"
)

// ValidAverages are the averaging periods, in minutes, the history endpoint accepts.
var ValidAverages = []int{0, 10, 30, 60, 360, 1440, 10080, 43200, 525600}

// DefaultAverage is one-hour averaging.
const DefaultAverage = 60

// HistoryFields are the measurement fields requested per sensor.
var HistoryFields = []string{"pm2.5_atm", "temperature", "humidity", "pressure"}

// ErrInvalidAverage reports an averaging period the API does not support.
var ErrInvalidAverage = errors.New("invalid average")

const (
	maxAttempts    = 4
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Client calls the PurpleAir v1 API with a read key.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	delay      time.Duration
	backoff    time.Duration
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a PurpleAir client. delay is the pause between sensors
// when fetching several histories.
func NewClient(apiKey, baseURL string, timeout, delay time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		delay:      delay,
		backoff:    initialBackoff,
		clock:      clockwork.NewRealClock(),
		metrics:    metrics,
		logger:     logger,
	}
}

// Sensor is a sensor's metadata.
type Sensor struct {
	Index     int
	Name      string
	Latitude  null.Float
	Longitude null.Float
}

// HistoryQuery bounds a history request. Zero Start/End select the last 24
// hours; zero Average selects DefaultAverage.
type HistoryQuery struct {
	Start   time.Time
	End     time.Time
	Average int
}

func (c *Client) resolve(q HistoryQuery) (HistoryQuery, error) {
	if q.Average == 0 {
		q.Average = DefaultAverage
	} else if !slices.Contains(ValidAverages, q.Average) {
		return q, fmt.Errorf("%w: %d (want one of %v)", ErrInvalidAverage, q.Average, ValidAverages)
	}
	if q.End.IsZero() {
		q.End = c.clock.Now()
	}
	if q.Start.IsZero() {
		q.Start = q.End.Add(-24 * time.Hour)
	}
	if !q.Start.Before(q.End) {
		return q, fmt.Errorf("history start %s not before end %s", q.Start.Format(time.RFC3339), q.End.Format(time.RFC3339))
	}
	return q, nil
}

// Sensors fetches name and location for the given sensor indices.
func (c *Client) Sensors(ctx context.Context, indices []int) (map[int]Sensor, error) {
	params := url.Values{
		"fields":    {"name,latitude,longitude"},
		"show_only": {joinInts(indices)},
	}
	var resp table
	if err := c.get(ctx, "/v1/sensors?"+params.Encode(), "sensors", &resp); err != nil {
		return nil, err
	}

	out := make(map[int]Sensor, len(resp.Data))
	for _, row := range resp.Data {
		idx, ok := resp.intAt(row, "sensor_index")
		if !ok {
			continue
		}
		out[idx] = Sensor{
			Index:     idx,
			Name:      resp.stringAt(row, "name"),
			Latitude:  resp.floatAt(row, "latitude"),
			Longitude: resp.floatAt(row, "longitude"),
		}
	}
	return out, nil
}

// History fetches one sensor's averaged history, oldest first.
func (c *Client) History(ctx context.Context, sensor Sensor, q HistoryQuery) ([]csvio.PurpleAirAPIRow, error) {
	q, err := c.resolve(q)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"fields":          {strings.Join(HistoryFields, ",")},
		"start_timestamp": {strconv.FormatInt(q.Start.Unix(), 10)},
		"end_timestamp":   {strconv.FormatInt(q.End.Unix(), 10)},
		"average":         {strconv.Itoa(q.Average)},
	}
	var resp table
	path := fmt.Sprintf("/v1/sensors/%d/history?%s", sensor.Index, params.Encode())
	if err := c.get(ctx, path, "history", &resp); err != nil {
		return nil, err
	}

	out := make([]csvio.PurpleAirAPIRow, 0, len(resp.Data))
	for _, row := range resp.Data {
		ts, ok := resp.intAt(row, "time_stamp")
		if !ok {
			continue
		}
		out = append(out, csvio.PurpleAirAPIRow{
			TimeStamp:   time.Unix(int64(ts), 0).UTC(),
			SensorIndex: sensor.Index,
			SensorName:  sensor.Name,
			Latitude:    sensor.Latitude,
			Longitude:   sensor.Longitude,
			PM25Atm:     resp.floatAt(row, "pm2.5_atm"),
			Temperature: resp.floatAt(row, "temperature"),
			Humidity:    resp.floatAt(row, "humidity"),
			Pressure:    resp.floatAt(row, "pressure"),
		})
	}
	slices.SortStableFunc(out, func(a, b csvio.PurpleAirAPIRow) int { return a.TimeStamp.Compare(b.TimeStamp) })
	return out, nil
}

// FetchHistory fetches metadata and history for each index in order, pausing
// between sensors. Sensors unknown to the API are skipped with a warning.
func (c *Client) FetchHistory(ctx context.Context, indices []int, q HistoryQuery) ([]csvio.PurpleAirAPIRow, error) {
	q, err := c.resolve(q)
	if err != nil {
		return nil, err
	}
	sensors, err := c.Sensors(ctx, indices)
	if err != nil {
		return nil, fmt.Errorf("sensor metadata: %w", err)
	}

	var out []csvio.PurpleAirAPIRow
	for i, idx := range indices {
		s, ok := sensors[idx]
		if !ok {
			c.logger.Warn("purpleair sensor not found, skipping", "sensor_index", idx)
			continue
		}
		if i > 0 && !c.sleep(ctx, c.delay) {
			return nil, ctx.Err()
		}
		rows, err := c.History(ctx, s, q)
		if err != nil {
			return nil, fmt.Errorf("sensor %d history: %w", idx, err)
		}
		c.logger.Info("purpleair history fetched", "sensor_index", idx, "rows", len(rows))
		out = append(out, rows...)
	}
	return out, nil
}

// get performs a GET with retries on transport errors, 429 and 5xx.
func (c *Client) get(ctx context.Context, path, endpoint string, into any) error {
	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retry, err := c.doRequest(ctx, c.baseURL+path, endpoint, into)
		if err == nil {
			c.metrics.PurpleAirRequests.WithLabelValues(endpoint, "success").Inc()
			return nil
		}
		lastErr = err
		if !retry || attempt == maxAttempts {
			break
		}
		c.metrics.PurpleAirRequests.WithLabelValues(endpoint, "retry").Inc()
		c.logger.Warn("purpleair request failed, retrying", "endpoint", endpoint, "attempt", attempt, "backoff", backoff, "error", err)
		if !c.sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
	c.metrics.PurpleAirRequests.WithLabelValues(endpoint, "error").Inc()
	return lastErr
}

// doRequest performs one request. The bool reports whether the failure is retryable.
func (c *Client) doRequest(ctx context.Context, fullURL, endpoint string, into any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.PurpleAirDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retry, fmt.Errorf("purpleair API error: status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(d):
		return true
	}
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// PurpleAir API response types. Both endpoints return column names in
// "fields" and positional rows in "data".

type table struct {
	Fields []string `json:"fields"`
	Data   [][]any  `json:"data"`
}

func (t table) cell(row []any, field string) any {
	i := slices.Index(t.Fields, field)
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func (t table) floatAt(row []any, field string) null.Float {
	if v, ok := t.cell(row, field).(float64); ok {
		return null.FloatFrom(v)
	}
	return null.Float{}
}

func (t table) intAt(row []any, field string) (int, bool) {
	v, ok := t.cell(row, field).(float64)
	return int(v), ok
}

func (t table) stringAt(row []any, field string) string {
	s, _ := t.cell(row, field).(string)
	return s
}
