// Package client is the HTTP command client for the Dharma backend.
// Types mirror the backend wire protocol without importing backend packages.
package client

import "time"

// Health is the response of GET /health.
type Health struct {
	Status      string    `json:"status"`
	Redis       string    `json:"redis"`
	Environment string    `json:"environment"`
	Timestamp   time.Time `json:"timestamp"`
	Error       string    `json:"error,omitempty"`
}

// Healthy reports whether the backend and its Redis are both up.
func (h *Health) Healthy() bool {
	return h != nil && h.Status == "healthy" && h.Redis == "connected"
}

// ParseResult kinds.
const (
	ResultCommand = "command"
	ResultChat    = "chat"
	ResultError   = "error"
)

// ParseResult is the response of POST /api/commands/parse.
type ParseResult struct {
	Type     string   `json:"type"`
	Command  *Command `json:"command,omitempty"`
	Response string   `json:"response,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Command is a structured action recognised by the backend parser.
type Command struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

// MonitorRequest starts a product monitor.
type MonitorRequest struct {
	SKU        string `json:"sku"`
	Retailer   string `json:"retailer"`
	IntervalMS int    `json:"interval_ms"`
}

// MonitorResult is the response of POST /api/monitors.
type MonitorResult struct {
	Success   bool   `json:"success"`
	MonitorID string `json:"monitor_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Monitor is a running product monitor.
type Monitor struct {
	MonitorID  string    `json:"monitor_id"`
	SKU        string    `json:"sku"`
	Retailer   string    `json:"retailer"`
	Status     string    `json:"status"`
	IntervalMS int       `json:"interval_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// TaskBatchRequest creates a batch of checkout tasks.
type TaskBatchRequest struct {
	Count     int    `json:"count"`
	ProfileID string `json:"profile_id"`
	Mode      string `json:"mode"`
	Retailer  string `json:"retailer"`
}

// TaskBatchResult is the response of POST /api/checkout/tasks/batch.
type TaskBatchResult struct {
	Success bool     `json:"success"`
	TaskIDs []string `json:"task_ids,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Task is a checkout task.
type Task struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	ProfileID string    `json:"profile_id"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

// Metrics is the dashboard metrics snapshot.
type Metrics struct {
	ActiveMonitors    int           `json:"active_monitors"`
	RunningTasks      int           `json:"running_tasks"`
	CompletedTasks    int           `json:"completed_tasks"`
	SuccessRate       float64       `json:"success_rate"`
	AvgCheckoutTimeMS float64       `json:"avg_checkout_time_ms"`
	ProxyHealth       ProxyHealth   `json:"proxy_health"`
	TopProducts       []TopProduct  `json:"top_products"`
	Costs             *CostSummary  `json:"costs,omitempty"`
	Host              *HostSnapshot `json:"host,omitempty"`
}

// ProxyHealth summarises the proxy pool.
type ProxyHealth struct {
	Active      int     `json:"active"`
	Burned      int     `json:"burned"`
	HealthScore float64 `json:"health_score"`
	CostToday   string  `json:"cost_today"`
}

// TopProduct is a frequently checked out product.
type TopProduct struct {
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	CheckoutCount int    `json:"checkout_count"`
}

// CostSummary is included when a metrics query asks for costs.
type CostSummary struct {
	Proxy float64 `json:"proxy"`
	Total float64 `json:"total"`
}

// HostSnapshot describes the machine serving the API.
type HostSnapshot struct {
	Hostname   string  `json:"hostname"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
	UptimeSecs uint64  `json:"uptime_secs"`
}

// MetricsQuery selects a metrics window.
type MetricsQuery struct {
	Timeframe    string `json:"timeframe"`
	IncludeCosts bool   `json:"include_costs"`
}

// LacesBalance is the caller's LACES token balance.
type LacesBalance struct {
	UserID         string  `json:"user_id"`
	Balance        int     `json:"balance"`
	LifetimeEarned int     `json:"lifetime_earned"`
	LifetimeSpent  int     `json:"lifetime_spent"`
	Rank           int     `json:"rank"`
	Percentile     float64 `json:"percentile"`
}

// LacesTransaction is one ledger entry.
type LacesTransaction struct {
	TransactionID string    `json:"transaction_id"`
	Amount        int       `json:"amount"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
}

// NearbyQuery locates heatmap events around a point.
type NearbyQuery struct {
	Lat       float64
	Lng       float64
	RadiusKM  float64
	EventType string
}

// HeatmapEvent is a community sighting on the heatmap.
type HeatmapEvent struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	StoreID       string    `json:"store_id"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	UserID        string    `json:"user_id"`
	VerifiedCount int       `json:"verified_count"`
	Timestamp     time.Time `json:"timestamp"`
	DistanceKM    *float64  `json:"distance_km,omitempty"`
}

// Post is a public feed post.
type Post struct {
	ID          int      `json:"id"`
	ContentText string   `json:"content_text"`
	User        PostUser `json:"user"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
}

// PostUser is the author of a Post.
type PostUser struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// HeatSpot is a community report of a drop, restock or find.
type HeatSpot struct {
	Type string  `json:"type"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	SKU  string  `json:"sku,omitempty"`
	Name string  `json:"name,omitempty"`
}

// HeatSpotResult acknowledges a submitted HeatSpot.
type HeatSpotResult struct {
	EventID string `json:"event_id"`
	Reward  int    `json:"reward"`
}

// LeaderboardEntry is one row of the LACES leaderboard.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
	Rank   int    `json:"rank"`
}

// Release is an upcoming sneaker release.
type Release struct {
	ReleaseID   string            `json:"release_id"`
	SneakerName string            `json:"sneaker_name"`
	Brand       string            `json:"brand"`
	ReleaseDate time.Time         `json:"release_date"`
	RetailPrice float64           `json:"retail_price"`
	StoreLinks  map[string]string `json:"store_links,omitempty"`
}

// RetailerStats counts checkout outcomes per retailer.
type RetailerStats struct {
	Name    string `json:"name"`
	Success int    `json:"success"`
	Fail    int    `json:"fail"`
}
