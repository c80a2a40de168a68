package mockapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myspacecornelius/Dharma/internal/events"
	"github.com/myspacecornelius/Dharma/internal/logging"
)

type published struct {
	to      string
	typ     string
	payload any
}

type recordingPublisher struct {
	mu  sync.Mutex
	out []published
}

func (p *recordingPublisher) Publish(typ string, payload any) {
	p.mu.Lock()
	p.out = append(p.out, published{typ: typ, payload: payload})
	p.mu.Unlock()
}

func (p *recordingPublisher) PublishTo(userID, typ string, payload any) {
	p.mu.Lock()
	p.out = append(p.out, published{to: userID, typ: typ, payload: payload})
	p.mu.Unlock()
}

func (p *recordingPublisher) ofType(typ string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.out {
		if e.typ == typ {
			out = append(out, e)
		}
	}
	return out
}

func newTestGenerator(t *testing.T) (*Generator, *State, *recordingPublisher) {
	t.Helper()
	state := NewState()
	pub := &recordingPublisher{}
	g := NewGenerator(state, pub, 1000, time.Millisecond, logging.Discard())
	g.Seed(42)
	return g, state, pub
}

func TestPollMonitorsEmitsOnePerMonitor(t *testing.T) {
	g, state, pub := newTestGenerator(t)
	state.AddMonitor("A", "shopify", 200)
	state.AddMonitor("B", "nike", 200)

	g.pollMonitors()
	g.pollMonitors()

	updates := pub.ofType(events.MonitorUpdate)
	require.Len(t, updates, 4)
	for _, u := range updates[2:] {
		assert.Equal(t, 2, u.payload.(events.MonitorStatus).PollCount)
	}
}

func TestStockAlertOnlyOnTransition(t *testing.T) {
	g, state, pub := newTestGenerator(t)
	state.AddMonitor("A", "shopify", 200)

	for i := 0; i < 200; i++ {
		g.pollMonitors()
	}

	// Count in-stock transitions from the update stream and compare.
	var transitions int
	prev := false
	for _, u := range pub.ofType(events.MonitorUpdate) {
		st := u.payload.(events.MonitorStatus)
		if st.InStock && !prev {
			transitions++
		}
		prev = st.InStock
	}
	alerts := pub.ofType(events.StockAlert)
	assert.Greater(t, transitions, 0)
	assert.Len(t, alerts, transitions)
	for _, a := range alerts {
		sa := a.payload.(events.StockAvailable)
		assert.Equal(t, "A", sa.SKU)
		assert.NotEmpty(t, sa.Sizes)
	}
}

func TestTasksRunToCompletion(t *testing.T) {
	g, state, pub := newTestGenerator(t)
	state.AddTasks(5, "p1", "request", "shopify")

	for i := 0; i < 20; i++ {
		g.advanceTasks()
	}

	for _, task := range state.Tasks() {
		assert.Contains(t, []string{"completed", "failed"}, task.Status)
	}
	var last = map[string]events.TaskProgress{}
	for _, u := range pub.ofType(events.TaskUpdate) {
		p := u.payload.(events.TaskProgress)
		if prev, ok := last[p.TaskID]; ok {
			assert.GreaterOrEqual(t, p.Progress, prev.Progress, "progress never goes back")
		}
		assert.LessOrEqual(t, p.Progress, 100.0)
		last[p.TaskID] = p
	}
	m := state.Metrics()
	assert.Equal(t, 0, m.RunningTasks)
	assert.Len(t, pub.ofType(events.Alert), m.CompletedTasks)
}

func TestRewardsGoToKnownUsers(t *testing.T) {
	g, state, pub := newTestGenerator(t)
	g.rewardUsers()
	assert.Empty(t, pub.ofType(events.LacesEarned), "no users yet")

	state.EnsureUser("user_a")
	for i := 0; i < 50; i++ {
		g.rewardUsers()
	}
	rewards := pub.ofType(events.LacesEarned)
	require.NotEmpty(t, rewards)
	total := 0
	for _, r := range rewards {
		assert.Equal(t, "user_a", r.to)
		total += r.payload.(events.LacesCredit).Amount
	}
	assert.Equal(t, 100+total, state.Balance("user_a").Balance)
}

func TestSpawnActivityRecordsEvent(t *testing.T) {
	g, state, pub := newTestGenerator(t)
	g.spawnActivity()

	acts := pub.ofType(events.NewEvent)
	require.Len(t, acts, 1)
	a := acts[0].payload.(events.Activity)
	near := state.Nearby(40.72, -73.99, 20, "")
	require.Len(t, near, 1)
	assert.Equal(t, a.EventID, near[0].EventID)
}

func TestRunStopsOnCancel(t *testing.T) {
	g, state, pub := newTestGenerator(t)
	state.AddMonitor("A", "shopify", 200)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.Eventually(t, func() bool { return len(pub.ofType(events.MonitorUpdate)) >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("generator did not stop")
	}
}
