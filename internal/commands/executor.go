// Package commands turns parsed prompts into backend calls.
package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/myspacecornelius/Dharma/internal/client"
)

// API is the part of the HTTP client the executor drives.
type API interface {
	ParseCommand(ctx context.Context, prompt string) (*client.ParseResult, error)
	StartMonitor(ctx context.Context, req client.MonitorRequest) (*client.MonitorResult, error)
	StopMonitor(ctx context.Context, id string) error
	CreateCheckoutTasks(ctx context.Context, req client.TaskBatchRequest) (*client.TaskBatchResult, error)
}

// Result kinds.
const (
	KindCommand = "command"
	KindChat    = "chat"
	KindError   = "error"
)

// MonitorRef is a monitor started through the executor.
type MonitorRef struct {
	ID  string
	SKU string
}

// Result describes what a prompt did. Message is markdown for chat replies
// and plain text otherwise.
type Result struct {
	Kind     string
	Message  string
	Monitors []MonitorRef
	TaskIDs  []string
	Cleared  bool
}

// Executor runs commands and remembers the monitors it started so that
// clear_dashboard can stop them.
type Executor struct {
	api    API
	logger *log.Logger

	mu      sync.Mutex
	tracked map[string]string // monitor id -> sku
}

func NewExecutor(api API, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		api:     api,
		logger:  logger.WithPrefix("commands"),
		tracked: make(map[string]string),
	}
}

// Track adds monitors started elsewhere, e.g. listed at startup.
func (e *Executor) Track(refs ...MonitorRef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range refs {
		e.tracked[r.ID] = r.SKU
	}
}

// Tracked returns the tracked monitors ordered by id.
func (e *Executor) Tracked() []MonitorRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]MonitorRef, 0, len(e.tracked))
	for id, sku := range e.tracked {
		out = append(out, MonitorRef{ID: id, SKU: sku})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run parses prompt on the backend and executes the result.
func (e *Executor) Run(ctx context.Context, prompt string) (Result, error) {
	parsed, err := e.api.ParseCommand(ctx, prompt)
	if err != nil {
		return Result{}, errors.Wrap(err, "parse command")
	}
	switch parsed.Type {
	case client.ResultChat:
		return Result{Kind: KindChat, Message: parsed.Response}, nil
	case client.ResultError:
		msg := parsed.Message
		if msg == "" {
			msg = "Sorry, I could not understand that."
		}
		return Result{Kind: KindError, Message: msg}, nil
	case client.ResultCommand:
		if parsed.Command == nil {
			return Result{Kind: KindError, Message: "Command response carried no command."}, nil
		}
		return e.Execute(ctx, *parsed.Command)
	}
	return Result{Kind: KindError, Message: fmt.Sprintf("Unexpected response type: %s", parsed.Type)}, nil
}

// Execute runs one structured command. Backend rejections come back as a
// Result with Kind error; transport failures are returned as errors.
func (e *Executor) Execute(ctx context.Context, cmd client.Command) (Result, error) {
	e.logger.Debug("execute", "action", cmd.Action)
	switch cmd.Action {
	case "start_monitor":
		return e.startMonitor(ctx, cmd.Parameters)
	case "fire_checkout":
		return e.fireCheckout(ctx, cmd.Parameters)
	case "clear_dashboard":
		return e.clear(ctx)
	}
	return Result{Kind: KindError, Message: "Unknown command: " + cmd.Action}, nil
}

func (e *Executor) startMonitor(ctx context.Context, params map[string]any) (Result, error) {
	sku := stringParam(params, "sku")
	if sku == "" {
		return Result{Kind: KindError, Message: "start_monitor needs a sku"}, nil
	}
	res, err := e.api.StartMonitor(ctx, client.MonitorRequest{
		SKU:      sku,
		Retailer: stringParam(params, "retailer"),
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "start monitor")
	}
	if !res.Success {
		return Result{Kind: KindError, Message: "Failed to start monitor: " + res.Error}, nil
	}
	ref := MonitorRef{ID: res.MonitorID, SKU: sku}
	e.Track(ref)
	return Result{
		Kind:     KindCommand,
		Message:  fmt.Sprintf("Started monitoring %s", sku),
		Monitors: []MonitorRef{ref},
	}, nil
}

func (e *Executor) fireCheckout(ctx context.Context, params map[string]any) (Result, error) {
	count := intParam(params, "task_count")
	if count <= 0 {
		count = 1
	}
	res, err := e.api.CreateCheckoutTasks(ctx, client.TaskBatchRequest{
		Count:     count,
		ProfileID: stringParam(params, "profile_id"),
		Retailer:  stringParam(params, "retailer"),
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "create checkout tasks")
	}
	if !res.Success {
		return Result{Kind: KindError, Message: "Failed to create checkout tasks: " + res.Error}, nil
	}
	return Result{
		Kind:    KindCommand,
		Message: fmt.Sprintf("Fired %d checkout tasks", len(res.TaskIDs)),
		TaskIDs: res.TaskIDs,
	}, nil
}

// clear stops every tracked monitor. Monitors that fail to stop stay tracked.
func (e *Executor) clear(ctx context.Context) (Result, error) {
	var stopped, failed int
	for _, ref := range e.Tracked() {
		if err := e.api.StopMonitor(ctx, ref.ID); err != nil {
			e.logger.Warn("stop monitor", "id", ref.ID, "err", err)
			failed++
			continue
		}
		e.mu.Lock()
		delete(e.tracked, ref.ID)
		e.mu.Unlock()
		stopped++
	}
	msg := fmt.Sprintf("Dashboard cleared (%d monitors stopped)", stopped)
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	return Result{Kind: KindCommand, Message: msg, Cleared: failed == 0}, nil
}

func stringParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// intParam accepts JSON numbers and numeric strings.
func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}
