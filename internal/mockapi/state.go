package mockapi

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Monitor is a product monitor as served by GET /api/monitors.
type Monitor struct {
	MonitorID  string    `json:"monitor_id"`
	SKU        string    `json:"sku"`
	Retailer   string    `json:"retailer"`
	Status     string    `json:"status"`
	IntervalMS int       `json:"interval_ms"`
	CreatedAt  time.Time `json:"created_at"`

	pollCount int
	inStock   bool
}

// Task is a checkout task as served by GET /api/checkout/tasks.
type Task struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	ProfileID string    `json:"profile_id"`
	Mode      string    `json:"mode"`
	Retailer  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`

	progress float64
}

type transaction struct {
	TransactionID string    `json:"transaction_id"`
	Amount        int       `json:"amount"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
}

type wallet struct {
	balance int
	earned  int
	spent   int
	history []transaction
}

type heatEvent struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	StoreID       string    `json:"store_id"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	SKU           string    `json:"sku,omitempty"`
	UserID        string    `json:"user_id"`
	VerifiedCount int       `json:"verified_count"`
	Timestamp     time.Time `json:"timestamp"`
	DistanceKM    *float64  `json:"distance_km,omitempty"`
}

// State is the in-memory backend data shared by handlers and the generator.
type State struct {
	mu        sync.Mutex
	monitors  map[string]*Monitor
	tasks     map[string]*Task
	wallets   map[string]*wallet
	events    []heatEvent
	completed int
	failed    int
}

func NewState() *State {
	return &State{
		monitors: make(map[string]*Monitor),
		tasks:    make(map[string]*Task),
		wallets:  make(map[string]*wallet),
	}
}

func (s *State) AddMonitor(sku, retailer string, intervalMS int) Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &Monitor{
		MonitorID:  uuid.NewString(),
		SKU:        sku,
		Retailer:   retailer,
		Status:     "active",
		IntervalMS: intervalMS,
		CreatedAt:  time.Now().UTC(),
	}
	s.monitors[m.MonitorID] = m
	return *m
}

func (s *State) RemoveMonitor(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.monitors[id]; !ok {
		return false
	}
	delete(s.monitors, id)
	return true
}

// Monitors returns a copy of every monitor, oldest first.
func (s *State) Monitors() []Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].MonitorID < out[j].MonitorID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *State) AddTasks(count int, profileID, mode, retailer string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, count)
	now := time.Now().UTC()
	for i := 0; i < count; i++ {
		t := &Task{
			TaskID:    uuid.NewString(),
			Status:    "pending",
			ProfileID: profileID,
			Mode:      mode,
			Retailer:  retailer,
			CreatedAt: now,
		}
		s.tasks[t.TaskID] = t
		ids = append(ids, t.TaskID)
	}
	return ids
}

func (s *State) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Credit adds LACES to a user's wallet and returns the new balance.
func (s *State) Credit(userID string, amount int, reason string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.walletLocked(userID)
	w.balance += amount
	if amount >= 0 {
		w.earned += amount
	} else {
		w.spent -= amount
	}
	w.history = append(w.history, transaction{
		TransactionID: uuid.NewString(),
		Amount:        amount,
		Reason:        reason,
		Timestamp:     time.Now().UTC(),
	})
	return w.balance
}

// EnsureUser opens a wallet for userID if it has none.
func (s *State) EnsureUser(userID string) {
	s.mu.Lock()
	s.walletLocked(userID)
	s.mu.Unlock()
}

func (s *State) walletLocked(userID string) *wallet {
	w, ok := s.wallets[userID]
	if !ok {
		w = &wallet{balance: 100, earned: 100}
		s.wallets[userID] = w
	}
	return w
}

type balanceView struct {
	UserID         string  `json:"user_id"`
	Balance        int     `json:"balance"`
	LifetimeEarned int     `json:"lifetime_earned"`
	LifetimeSpent  int     `json:"lifetime_spent"`
	Rank           int     `json:"rank"`
	Percentile     float64 `json:"percentile"`
}

func (s *State) Balance(userID string) balanceView {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.walletLocked(userID)
	rank := 1
	for id, other := range s.wallets {
		if id != userID && other.balance > w.balance {
			rank++
		}
	}
	pct := 100.0
	if n := len(s.wallets); n > 1 {
		pct = math.Round(float64(n-rank)/float64(n-1)*1000) / 10
	}
	return balanceView{
		UserID:         userID,
		Balance:        w.balance,
		LifetimeEarned: w.earned,
		LifetimeSpent:  w.spent,
		Rank:           rank,
		Percentile:     pct,
	}
}

// Transactions returns up to limit entries, newest first.
func (s *State) Transactions(userID string, limit int) []transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.walletLocked(userID).history
	out := make([]transaction, 0, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, h[i])
	}
	return out
}

func (s *State) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.wallets))
	for id := range s.wallets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

const maxHeatEvents = 500

func (s *State) AddEvent(ev heatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if len(s.events) > maxHeatEvents {
		s.events = s.events[len(s.events)-maxHeatEvents:]
	}
}

// Nearby returns events within radiusKM of (lat, lng), closest first.
func (s *State) Nearby(lat, lng, radiusKM float64, eventType string) []heatEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []heatEvent{}
	for _, ev := range s.events {
		if eventType != "" && ev.Type != eventType {
			continue
		}
		d := haversineKM(lat, lng, ev.Lat, ev.Lng)
		if d > radiusKM {
			continue
		}
		d = math.Round(d*100) / 100
		ev.DistanceKM = &d
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].DistanceKM < *out[j].DistanceKM })
	return out
}

func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKM = 6371.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}

type metricsView struct {
	ActiveMonitors    int           `json:"active_monitors"`
	RunningTasks      int           `json:"running_tasks"`
	CompletedTasks    int           `json:"completed_tasks"`
	SuccessRate       float64       `json:"success_rate"`
	AvgCheckoutTimeMS float64       `json:"avg_checkout_time_ms"`
	ProxyHealth       proxyHealth   `json:"proxy_health"`
	TopProducts       []topProduct  `json:"top_products"`
	Costs             *costSummary  `json:"costs,omitempty"`
	Host              *hostSnapshot `json:"host,omitempty"`
	Timeframe         string        `json:"timeframe,omitempty"`
}

type proxyHealth struct {
	Active      int     `json:"active"`
	Burned      int     `json:"burned"`
	HealthScore float64 `json:"health_score"`
	CostToday   string  `json:"cost_today"`
}

type topProduct struct {
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	CheckoutCount int    `json:"checkout_count"`
}

type costSummary struct {
	Proxy float64 `json:"proxy"`
	Total float64 `json:"total"`
}

func (s *State) Metrics() metricsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	var running int
	counts := make(map[string]int)
	for _, t := range s.tasks {
		if t.Status == "running" || t.Status == "pending" {
			running++
		}
	}
	for _, m := range s.monitors {
		counts[m.SKU] += m.pollCount
	}
	rate := 0.0
	if total := s.completed + s.failed; total > 0 {
		rate = math.Round(float64(s.completed)/float64(total)*1000) / 10
	}
	top := make([]topProduct, 0, len(counts))
	for sku, n := range counts {
		top = append(top, topProduct{SKU: sku, Name: sku, CheckoutCount: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].CheckoutCount == top[j].CheckoutCount {
			return top[i].SKU < top[j].SKU
		}
		return top[i].CheckoutCount > top[j].CheckoutCount
	})
	if len(top) > 5 {
		top = top[:5]
	}
	return metricsView{
		ActiveMonitors:    len(s.monitors),
		RunningTasks:      running,
		CompletedTasks:    s.completed,
		SuccessRate:       rate,
		AvgCheckoutTimeMS: 1840,
		ProxyHealth: proxyHealth{
			Active:      48,
			Burned:      2,
			HealthScore: 96,
			CostToday:   "$3.20",
		},
		TopProducts: top,
	}
}
