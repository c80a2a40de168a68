package commands

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myspacecornelius/Dharma/internal/client"
	"github.com/myspacecornelius/Dharma/internal/logging"
)

type fakeAPI struct {
	mu      sync.Mutex
	parse   *client.ParseResult
	monitor *client.MonitorResult
	batch   *client.TaskBatchResult
	stopErr map[string]error
	err     error
	started []client.MonitorRequest
	batches []client.TaskBatchRequest
	stopped []string
}

func (f *fakeAPI) ParseCommand(context.Context, string) (*client.ParseResult, error) {
	return f.parse, f.err
}

func (f *fakeAPI) StartMonitor(_ context.Context, req client.MonitorRequest) (*client.MonitorResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, req)
	return f.monitor, f.err
}

func (f *fakeAPI) StopMonitor(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return f.stopErr[id]
}

func (f *fakeAPI) CreateCheckoutTasks(_ context.Context, req client.TaskBatchRequest) (*client.TaskBatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, req)
	return f.batch, f.err
}

func cmd(action string, params map[string]any) client.Command {
	return client.Command{Action: action, Parameters: params}
}

func TestStartMonitorTracksID(t *testing.T) {
	api := &fakeAPI{monitor: &client.MonitorResult{Success: true, MonitorID: "m-1"}}
	e := NewExecutor(api, logging.Discard())

	res, err := e.Execute(context.Background(), cmd("start_monitor", map[string]any{"sku": "DZ5485", "retailer": "footlocker"}))
	require.NoError(t, err)
	assert.Equal(t, KindCommand, res.Kind)
	assert.Equal(t, "Started monitoring DZ5485", res.Message)
	assert.Equal(t, []MonitorRef{{ID: "m-1", SKU: "DZ5485"}}, res.Monitors)
	assert.Equal(t, []MonitorRef{{ID: "m-1", SKU: "DZ5485"}}, e.Tracked())
	assert.Equal(t, "footlocker", api.started[0].Retailer)
}

func TestStartMonitorRejected(t *testing.T) {
	api := &fakeAPI{monitor: &client.MonitorResult{Success: false, Error: "sku not found"}}
	e := NewExecutor(api, logging.Discard())

	res, err := e.Execute(context.Background(), cmd("start_monitor", map[string]any{"sku": "NOPE"}))
	require.NoError(t, err)
	assert.Equal(t, KindError, res.Kind)
	assert.Equal(t, "Failed to start monitor: sku not found", res.Message)
	assert.Empty(t, e.Tracked())
}

func TestStartMonitorNeedsSKU(t *testing.T) {
	api := &fakeAPI{}
	e := NewExecutor(api, logging.Discard())

	res, err := e.Execute(context.Background(), cmd("start_monitor", nil))
	require.NoError(t, err)
	assert.Equal(t, KindError, res.Kind)
	assert.Empty(t, api.started)
}

func TestFireCheckout(t *testing.T) {
	tests := []struct {
		name      string
		params    map[string]any
		wantCount int
	}{
		{"json number", map[string]any{"task_count": float64(3), "profile_id": "p1"}, 3},
		{"numeric string", map[string]any{"task_count": "5", "profile_id": "p1"}, 5},
		{"missing count", map[string]any{"profile_id": "p1"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{batch: &client.TaskBatchResult{Success: true, TaskIDs: []string{"t1", "t2"}}}
			e := NewExecutor(api, logging.Discard())

			res, err := e.Execute(context.Background(), cmd("fire_checkout", tt.params))
			require.NoError(t, err)
			assert.Equal(t, "Fired 2 checkout tasks", res.Message)
			assert.Equal(t, []string{"t1", "t2"}, res.TaskIDs)
			require.Len(t, api.batches, 1)
			assert.Equal(t, tt.wantCount, api.batches[0].Count)
			assert.Equal(t, "p1", api.batches[0].ProfileID)
		})
	}
}

func TestClearDashboard(t *testing.T) {
	api := &fakeAPI{stopErr: map[string]error{"m-2": errors.New("boom")}}
	e := NewExecutor(api, logging.Discard())
	e.Track(MonitorRef{ID: "m-1", SKU: "A"}, MonitorRef{ID: "m-2", SKU: "B"}, MonitorRef{ID: "m-3", SKU: "C"})

	res, err := e.Execute(context.Background(), cmd("clear_dashboard", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"m-1", "m-2", "m-3"}, api.stopped)
	assert.Equal(t, "Dashboard cleared (2 monitors stopped), 1 failed", res.Message)
	assert.False(t, res.Cleared)
	assert.Equal(t, []MonitorRef{{ID: "m-2", SKU: "B"}}, e.Tracked())

	api.stopErr = nil
	res, err = e.Execute(context.Background(), cmd("clear_dashboard", nil))
	require.NoError(t, err)
	assert.True(t, res.Cleared)
	assert.Empty(t, e.Tracked())
}

func TestUnknownAction(t *testing.T) {
	e := NewExecutor(&fakeAPI{}, logging.Discard())
	res, err := e.Execute(context.Background(), cmd("launch_rocket", nil))
	require.NoError(t, err)
	assert.Equal(t, KindError, res.Kind)
	assert.Equal(t, "Unknown command: launch_rocket", res.Message)
}

func TestRunDispatchesByResultType(t *testing.T) {
	tests := []struct {
		name     string
		parse    *client.ParseResult
		wantKind string
		wantMsg  string
	}{
		{"chat", &client.ParseResult{Type: "chat", Response: "**Jordan 1** drops Friday"}, KindChat, "**Jordan 1** drops Friday"},
		{"error", &client.ParseResult{Type: "error", Message: "rate limited"}, KindError, "rate limited"},
		{"error without message", &client.ParseResult{Type: "error"}, KindError, "Sorry, I could not understand that."},
		{"command", &client.ParseResult{Type: "command", Command: &client.Command{Action: "nope"}}, KindError, "Unknown command: nope"},
		{"command missing", &client.ParseResult{Type: "command"}, KindError, "Command response carried no command."},
		{"odd type", &client.ParseResult{Type: "poem"}, KindError, "Unexpected response type: poem"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(&fakeAPI{parse: tt.parse}, logging.Discard())
			res, err := e.Run(context.Background(), "anything")
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantMsg, res.Message)
		})
	}
}

func TestRunTransportError(t *testing.T) {
	e := NewExecutor(&fakeAPI{err: client.ErrNoSession}, logging.Discard())
	_, err := e.Run(context.Background(), "monitor X")
	assert.ErrorIs(t, err, client.ErrNoSession)
}
