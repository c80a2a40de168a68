package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// ErrNoSession is returned by authenticated calls made without a token.
var ErrNoSession = errors.New("client: no active session")

// HTTPError is a non-2xx response.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Body)
}

// IsUnauthorized reports whether err is a 401 or 403 response.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	return he.Status == http.StatusUnauthorized || he.Status == http.StatusForbidden
}

// TokenSource supplies the current session token. *session.Store satisfies it.
type TokenSource interface {
	CurrentToken() (string, bool)
}

// StaticToken is a fixed token, mostly useful for scripts and tests.
type StaticToken string

func (t StaticToken) CurrentToken() (string, bool) { return string(t), t != "" }

// HTTPClient makes REST calls to the Dharma backend. It never retries.
type HTTPClient struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	logger  *log.Logger
}

// NewHTTPClient creates a client targeting baseURL (e.g. "http://localhost:8000").
func NewHTTPClient(baseURL string, tokens TokenSource, timeout time.Duration, logger *log.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.WithPrefix("http"),
	}
}

// Health fetches /health. It does not require a session.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h, false); err != nil {
		return nil, err
	}
	return &h, nil
}

// ParseCommand sends a natural-language prompt to the command parser.
func (c *HTTPClient) ParseCommand(ctx context.Context, prompt string) (*ParseResult, error) {
	body := map[string]string{"prompt": prompt}
	var out ParseResult
	if err := c.post(ctx, "/api/commands/parse", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartMonitor sends POST /api/monitors. Retailer defaults to shopify and the
// poll interval to 200ms.
func (c *HTTPClient) StartMonitor(ctx context.Context, req MonitorRequest) (*MonitorResult, error) {
	if req.Retailer == "" {
		req.Retailer = "shopify"
	}
	if req.IntervalMS <= 0 {
		req.IntervalMS = 200
	}
	var out MonitorResult
	if err := c.post(ctx, "/api/monitors", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopMonitor sends DELETE /api/monitors/{id}.
func (c *HTTPClient) StopMonitor(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/monitors/"+url.PathEscape(id), nil, nil, true)
}

// ListMonitors fetches /api/monitors.
func (c *HTTPClient) ListMonitors(ctx context.Context) ([]Monitor, error) {
	var out struct {
		Monitors []Monitor `json:"monitors"`
	}
	if err := c.get(ctx, "/api/monitors", &out); err != nil {
		return nil, err
	}
	return out.Monitors, nil
}

// CreateCheckoutTasks sends POST /api/checkout/tasks/batch. Mode defaults to
// request and retailer to shopify.
func (c *HTTPClient) CreateCheckoutTasks(ctx context.Context, req TaskBatchRequest) (*TaskBatchResult, error) {
	if req.Mode == "" {
		req.Mode = "request"
	}
	if req.Retailer == "" {
		req.Retailer = "shopify"
	}
	var out TaskBatchResult
	if err := c.post(ctx, "/api/checkout/tasks/batch", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks fetches /api/checkout/tasks.
func (c *HTTPClient) ListTasks(ctx context.Context) ([]Task, error) {
	var out struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.get(ctx, "/api/checkout/tasks", &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// Metrics fetches /api/metrics/dashboard.
func (c *HTTPClient) Metrics(ctx context.Context) (*Metrics, error) {
	var m Metrics
	if err := c.get(ctx, "/api/metrics/dashboard", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// QueryMetrics sends POST /api/metrics/dashboard with a timeframe.
func (c *HTTPClient) QueryMetrics(ctx context.Context, q MetricsQuery) (*Metrics, error) {
	var m Metrics
	if err := c.post(ctx, "/api/metrics/dashboard", q, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LacesBalance fetches /api/laces/balance.
func (c *HTTPClient) LacesBalance(ctx context.Context) (*LacesBalance, error) {
	var b LacesBalance
	if err := c.get(ctx, "/api/laces/balance", &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// LacesTransactions fetches the latest limit ledger entries.
func (c *HTTPClient) LacesTransactions(ctx context.Context, limit int) ([]LacesTransaction, error) {
	path := "/api/laces/transactions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Transactions []LacesTransaction `json:"transactions"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// NearbyEvents fetches heatmap events around a point. An empty or "all"
// event type is not sent.
func (c *HTTPClient) NearbyEvents(ctx context.Context, q NearbyQuery) ([]HeatmapEvent, error) {
	v := url.Values{}
	v.Set("lat", strconv.FormatFloat(q.Lat, 'f', -1, 64))
	v.Set("lng", strconv.FormatFloat(q.Lng, 'f', -1, 64))
	radius := q.RadiusKM
	if radius <= 0 {
		radius = 10
	}
	v.Set("radius_km", strconv.FormatFloat(radius, 'f', -1, 64))
	if q.EventType != "" && q.EventType != "all" {
		v.Set("event_type", q.EventType)
	}
	var out struct {
		Events []HeatmapEvent `json:"events"`
	}
	if err := c.get(ctx, "/api/heatmap/events/nearby?"+v.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// SubmitHeat reports a spot to the community heatmap. The backend echoes it on
// the event channel as new_event.
func (c *HTTPClient) SubmitHeat(ctx context.Context, spot HeatSpot) (*HeatSpotResult, error) {
	if spot.Type == "" {
		spot.Type = "drop"
	}
	var r HeatSpotResult
	if err := c.post(ctx, "/api/community/heat", spot, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Leaderboard fetches the LACES ranking, best first.
func (c *HTTPClient) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var out []LeaderboardEntry
	if err := c.get(ctx, "/api/community/leaderboard", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpcomingReleases fetches the release calendar.
func (c *HTTPClient) UpcomingReleases(ctx context.Context) ([]Release, error) {
	var out []Release
	if err := c.get(ctx, "/releases/upcoming", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AnalyticsSummary fetches checkout outcomes per retailer.
func (c *HTTPClient) AnalyticsSummary(ctx context.Context) ([]RetailerStats, error) {
	var out []RetailerStats
	if err := c.get(ctx, "/analytics/summary", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Posts fetches the public feed. It does not require a session.
func (c *HTTPClient) Posts(ctx context.Context) ([]Post, error) {
	var out []Post
	if err := c.do(ctx, http.MethodGet, "/posts", nil, &out, false); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out, true)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out, true)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}, auth bool) error {
	token, ok := c.tokens.CurrentToken()
	if auth && !ok {
		return ErrNoSession
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "encode %s %s", method, path)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	c.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &HTTPError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(respBody)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}
