package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myspacecornelius/Dharma/internal/logging"
)

type captured struct {
	method string
	uri    string
	auth   string
	body   map[string]any
}

// newBackend serves a canned JSON reply and records the last request.
func newBackend(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.uri = r.URL.RequestURI()
		got.auth = r.Header.Get("Authorization")
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &got.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newTestClient(url string, token string) *HTTPClient {
	return NewHTTPClient(url, StaticToken(token), time.Second, logging.Discard())
}

func TestHealth(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK,
		`{"status":"healthy","redis":"connected","environment":"development","timestamp":"2026-01-02T03:04:05Z"}`)
	c := newTestClient(srv.URL, "")

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Healthy())
	assert.Equal(t, "development", h.Environment)
	assert.Equal(t, "/health", got.uri)
	assert.Empty(t, got.auth)
}

func TestHealthyRequiresRedis(t *testing.T) {
	assert.False(t, (&Health{Status: "healthy", Redis: "disconnected"}).Healthy())
	assert.False(t, (&Health{Status: "unhealthy", Redis: "connected"}).Healthy())
	assert.False(t, (*Health)(nil).Healthy())
}

func TestAuthenticatedCallWithoutSession(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK, `{}`)
	c := newTestClient(srv.URL, "")

	_, err := c.ListMonitors(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, got.method, "no request should be sent")
}

func TestStartMonitorDefaults(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK, `{"success":true,"monitor_id":"m-1"}`)
	c := newTestClient(srv.URL, "tok")

	res, err := c.StartMonitor(context.Background(), MonitorRequest{SKU: "DZ5485-612"})
	require.NoError(t, err)
	assert.Equal(t, &MonitorResult{Success: true, MonitorID: "m-1"}, res)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/monitors", got.uri)
	assert.Equal(t, "Bearer tok", got.auth)
	want := map[string]any{"sku": "DZ5485-612", "retailer": "shopify", "interval_ms": float64(200)}
	if diff := cmp.Diff(want, got.body); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateCheckoutTasksDefaults(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK, `{"success":true,"task_ids":["a","b"]}`)
	c := newTestClient(srv.URL, "tok")

	res, err := c.CreateCheckoutTasks(context.Background(), TaskBatchRequest{Count: 2, ProfileID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.TaskIDs)
	assert.Equal(t, "/api/checkout/tasks/batch", got.uri)
	assert.Equal(t, "request", got.body["mode"])
	assert.Equal(t, "shopify", got.body["retailer"])
	assert.Equal(t, float64(2), got.body["count"])
}

func TestStopMonitorEscapesID(t *testing.T) {
	srv, got := newBackend(t, http.StatusNoContent, ``)
	c := newTestClient(srv.URL, "tok")

	require.NoError(t, c.StopMonitor(context.Background(), "a/b c"))
	assert.Equal(t, http.MethodDelete, got.method)
	assert.Equal(t, "/api/monitors/a%2Fb%20c", got.uri)
}

func TestListEndpointsUnwrapEnvelopes(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		call  func(*HTTPClient) (int, error)
		uri   string
	}{
		{
			name:  "monitors",
			reply: `{"monitors":[{"monitor_id":"m1","sku":"X"},{"monitor_id":"m2","sku":"Y"}]}`,
			call: func(c *HTTPClient) (int, error) {
				m, err := c.ListMonitors(context.Background())
				return len(m), err
			},
			uri: "/api/monitors",
		},
		{
			name:  "tasks",
			reply: `{"tasks":[{"task_id":"t1","status":"running"}]}`,
			call: func(c *HTTPClient) (int, error) {
				ts, err := c.ListTasks(context.Background())
				return len(ts), err
			},
			uri: "/api/checkout/tasks",
		},
		{
			name:  "transactions",
			reply: `{"transactions":[{"transaction_id":"x","amount":5,"reason":"SPOT"}]}`,
			call: func(c *HTTPClient) (int, error) {
				ts, err := c.LacesTransactions(context.Background(), 20)
				return len(ts), err
			},
			uri: "/api/laces/transactions?limit=20",
		},
		{
			name:  "leaderboard",
			reply: `[{"user_id":"u1","score":40,"rank":1},{"user_id":"u2","score":12,"rank":2}]`,
			call: func(c *HTTPClient) (int, error) {
				rows, err := c.Leaderboard(context.Background())
				return len(rows), err
			},
			uri: "/api/community/leaderboard",
		},
		{
			name:  "releases",
			reply: `[{"release_id":"r1","sneaker_name":"Air Max 1","brand":"Nike","release_date":"2026-11-01T00:00:00Z","retail_price":150}]`,
			call: func(c *HTTPClient) (int, error) {
				rs, err := c.UpcomingReleases(context.Background())
				return len(rs), err
			},
			uri: "/releases/upcoming",
		},
		{
			name:  "analytics",
			reply: `[{"name":"Nike","success":4000,"fail":2400}]`,
			call: func(c *HTTPClient) (int, error) {
				rs, err := c.AnalyticsSummary(context.Background())
				return len(rs), err
			},
			uri: "/analytics/summary",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := newBackend(t, http.StatusOK, tt.reply)
			n, err := tt.call(newTestClient(srv.URL, "tok"))
			require.NoError(t, err)
			assert.Greater(t, n, 0)
			assert.Equal(t, tt.uri, got.uri)
		})
	}
}

func TestSubmitHeat(t *testing.T) {
	srv, got := newBackend(t, http.StatusCreated, `{"event_id":"e-1","reward":5}`)
	c := newTestClient(srv.URL, "tok")

	res, err := c.SubmitHeat(context.Background(), HeatSpot{Lat: 40.7, Lng: -73.9, SKU: "DZ5485-612"})
	require.NoError(t, err)
	assert.Equal(t, &HeatSpotResult{EventID: "e-1", Reward: 5}, res)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/community/heat", got.uri)
	want := map[string]any{"type": "drop", "lat": 40.7, "lng": -73.9, "sku": "DZ5485-612"}
	if diff := cmp.Diff(want, got.body); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}
}

func TestNearbyEventsQuery(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		want      string
	}{
		{"all omitted", "all", "/api/heatmap/events/nearby?lat=40.7&lng=-73.9&radius_km=10"},
		{"empty omitted", "", "/api/heatmap/events/nearby?lat=40.7&lng=-73.9&radius_km=10"},
		{"drop kept", "drop", "/api/heatmap/events/nearby?event_type=drop&lat=40.7&lng=-73.9&radius_km=10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := newBackend(t, http.StatusOK, `{"events":[]}`)
			c := newTestClient(srv.URL, "tok")
			_, err := c.NearbyEvents(context.Background(), NearbyQuery{Lat: 40.7, Lng: -73.9, EventType: tt.eventType})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.uri)
		})
	}
}

func TestHTTPErrorFormat(t *testing.T) {
	srv, _ := newBackend(t, http.StatusUnauthorized, `{"detail":"expired"}`+"\n")
	c := newTestClient(srv.URL, "tok")

	_, err := c.Metrics(context.Background())
	require.Error(t, err)
	assert.Equal(t, `GET /api/metrics/dashboard: 401 {"detail":"expired"}`, err.Error())
	assert.True(t, IsUnauthorized(err))

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Status)
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, IsUnauthorized(&HTTPError{Status: http.StatusForbidden}))
	assert.False(t, IsUnauthorized(&HTTPError{Status: http.StatusInternalServerError}))
	assert.False(t, IsUnauthorized(ErrNoSession))
	assert.False(t, IsUnauthorized(nil))
}

func TestPostsUnauthenticated(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK,
		`[{"id":1,"content_text":"restock at 5th ave","user":{"display_name":"kai"},"location":{"name":"SoHo"}}]`)
	c := newTestClient(srv.URL, "")

	posts, err := c.Posts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "kai", posts[0].User.DisplayName)
	assert.Equal(t, "SoHo", posts[0].Location.Name)
	assert.Equal(t, "/posts", got.uri)
}

func TestParseCommand(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK,
		`{"type":"command","command":{"action":"start_monitor","parameters":{"sku":"ABC"}}}`)
	c := newTestClient(srv.URL, "tok")

	res, err := c.ParseCommand(context.Background(), "monitor ABC")
	require.NoError(t, err)
	assert.Equal(t, ResultCommand, res.Type)
	require.NotNil(t, res.Command)
	assert.Equal(t, "start_monitor", res.Command.Action)
	assert.Equal(t, "ABC", res.Command.Parameters["sku"])
	assert.Equal(t, "monitor ABC", got.body["prompt"])
}

func TestContextCancelled(t *testing.T) {
	srv, _ := newBackend(t, http.StatusOK, `{}`)
	c := newTestClient(srv.URL, "tok")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.LacesBalance(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
