package mockapi

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/myspacecornelius/Dharma/internal/events"
)

// Publisher receives generated events. *Broadcaster satisfies it.
type Publisher interface {
	Publish(typ string, payload any)
	PublishTo(userID, typ string, payload any)
}

var (
	heatTypes   = []string{"drop", "restock", "find"}
	sneakerSKUs = []string{"DZ5485-612", "DD1391-100", "FQ8138-002", "CW2288-111", "HQ6998-600"}
	lacesCodes  = []string{"SPOT", "VERIFY", "KNOWLEDGE", "TRADE", "GOOD_VIBES", "DROPZONE"}
	shoeSizes   = []string{"7", "8", "8.5", "9", "9.5", "10", "10.5", "11", "12"}
)

// Generator advances the in-memory state and emits channel events, at most
// rate per second.
type Generator struct {
	state    *State
	pub      Publisher
	limiter  *rate.Limiter
	interval time.Duration
	logger   *log.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewGenerator(state *State, pub Publisher, perSecond float64, interval time.Duration, logger *log.Logger) *Generator {
	if perSecond <= 0 {
		perSecond = 20
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Generator{
		state:    state,
		pub:      pub,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		interval: interval,
		logger:   logger.WithPrefix("generator"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed makes the event sequence reproducible.
func (g *Generator) Seed(seed int64) {
	g.rngMu.Lock()
	g.rng = rand.New(rand.NewSource(seed))
	g.rngMu.Unlock()
}

// Run emits events until ctx is done.
func (g *Generator) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for _, emit := range []func(){g.pollMonitors, g.advanceTasks, g.spawnActivity, g.rewardUsers} {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil
			}
			emit()
		}
	}
}

func (g *Generator) intn(n int) int {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return g.rng.Intn(n)
}

func (g *Generator) float() float64 {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return g.rng.Float64()
}

// pollMonitors bumps every monitor's poll count and occasionally flips stock.
func (g *Generator) pollMonitors() {
	type restock struct{ sku, retailer string }
	var (
		updates []events.MonitorStatus
		alerts  []restock
	)

	g.state.mu.Lock()
	for _, m := range g.state.monitors {
		m.pollCount++
		wasInStock := m.inStock
		m.inStock = g.float() < 0.15
		if m.inStock {
			m.Status = "in_stock"
		} else {
			m.Status = "active"
		}
		updates = append(updates, events.MonitorStatus{
			MonitorID: m.MonitorID,
			SKU:       m.SKU,
			Status:    m.Status,
			InStock:   m.inStock,
			PollCount: m.pollCount,
			LatencyMS: 80 + g.intn(400),
		})
		if m.inStock && !wasInStock {
			alerts = append(alerts, restock{m.SKU, m.Retailer})
		}
	}
	g.state.mu.Unlock()

	for _, u := range updates {
		g.pub.Publish(events.MonitorUpdate, u)
	}
	for _, a := range alerts {
		g.pub.Publish(events.StockAlert, events.StockAvailable{SKU: a.sku, Retailer: a.retailer, Sizes: g.sizes()})
	}
}

func (g *Generator) sizes() []string {
	start := g.intn(len(shoeSizes) - 2)
	return append([]string(nil), shoeSizes[start:start+1+g.intn(3)]...)
}

var taskSteps = []string{"Queued", "Solving queue", "Adding to cart", "Submitting shipping", "Submitting payment"}

// advanceTasks moves every unfinished task forward. Tasks end completed or,
// rarely, failed.
func (g *Generator) advanceTasks() {
	var updates []events.TaskProgress
	var done []string

	g.state.mu.Lock()
	for _, t := range g.state.tasks {
		if t.Status == "completed" || t.Status == "failed" {
			continue
		}
		t.Status = "running"
		t.progress += float64(15 + g.intn(25))
		msg := taskSteps[min(int(t.progress)/20, len(taskSteps)-1)]
		switch {
		case g.float() < 0.03:
			t.Status = "failed"
			msg = "Payment declined"
			g.state.failed++
		case t.progress >= 100:
			t.progress = 100
			t.Status = "completed"
			msg = "Checkout complete"
			g.state.completed++
			done = append(done, t.TaskID)
		}
		updates = append(updates, events.TaskProgress{
			TaskID:   t.TaskID,
			Message:  msg,
			Progress: t.progress,
			Status:   t.Status,
		})
	}
	g.state.mu.Unlock()

	for _, u := range updates {
		g.pub.Publish(events.TaskUpdate, u)
	}
	for _, id := range done {
		g.pub.Publish(events.Alert, events.AlertMessage{Message: "Task " + shortID(id) + " checked out"})
	}
}

// spawnActivity records a community sighting around lower Manhattan.
func (g *Generator) spawnActivity() {
	users := g.state.Users()
	userID := "user_community"
	if len(users) > 0 {
		userID = users[g.intn(len(users))]
	}
	sku := sneakerSKUs[g.intn(len(sneakerSKUs))]
	ev := heatEvent{
		EventID:   uuid.NewString(),
		Type:      heatTypes[g.intn(len(heatTypes))],
		Title:     sku + " sighting",
		StoreID:   "store_" + shortID(uuid.NewString()),
		Lat:       40.72 + (g.float()-0.5)*0.08,
		Lng:       -73.99 + (g.float()-0.5)*0.08,
		SKU:       sku,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	g.state.AddEvent(ev)
	g.pub.Publish(events.NewEvent, events.Activity{
		EventID:   ev.EventID,
		Type:      ev.Type,
		Lat:       ev.Lat,
		Lng:       ev.Lng,
		SKU:       ev.SKU,
		Name:      ev.Title,
		UserID:    ev.UserID,
		Timestamp: ev.Timestamp,
	})
}

// rewardUsers credits one known user now and then.
func (g *Generator) rewardUsers() {
	users := g.state.Users()
	if len(users) == 0 || g.float() > 0.3 {
		return
	}
	userID := users[g.intn(len(users))]
	amount := 1 + g.intn(10)
	reason := lacesCodes[g.intn(len(lacesCodes))]
	g.state.Credit(userID, amount, reason)
	g.pub.PublishTo(userID, events.LacesEarned, events.LacesCredit{Amount: amount, Reason: reason})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
