// Package app is the root Bubble Tea model of the terminal dashboard. It
// authenticates, connects the event channel and mirrors channel and HTTP
// results into the views.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/myspacecornelius/Dharma/internal/channel"
	"github.com/myspacecornelius/Dharma/internal/client"
	"github.com/myspacecornelius/Dharma/internal/commands"
	"github.com/myspacecornelius/Dharma/internal/events"
	"github.com/myspacecornelius/Dharma/internal/session"
	"github.com/myspacecornelius/Dharma/internal/theme"
	"github.com/myspacecornelius/Dharma/internal/views/activity"
	"github.com/myspacecornelius/Dharma/internal/views/balance"
	"github.com/myspacecornelius/Dharma/internal/views/chat"
	"github.com/myspacecornelius/Dharma/internal/views/debug"
	"github.com/myspacecornelius/Dharma/internal/views/monitors"
	"github.com/myspacecornelius/Dharma/internal/views/status"
	"github.com/myspacecornelius/Dharma/internal/views/tasks"
)

// Channel is the part of the event channel client the dashboard uses.
type Channel interface {
	On(typ string, fn channel.Listener) channel.Registration
	Off(reg channel.Registration) bool
	OnStateChange(fn func(channel.Status))
	Status() channel.Status
	Connect(token string) error
	Disconnect()
}

// Auth issues sessions. *session.Store satisfies it.
type Auth interface {
	Authenticate(ctx context.Context, cred *session.Credential) (session.Session, error)
	InvalidateToken(token string) bool
}

// API is the HTTP surface the dashboard reads. *client.HTTPClient satisfies it.
type API interface {
	commands.API
	Health(ctx context.Context) (*client.Health, error)
	ListMonitors(ctx context.Context) ([]client.Monitor, error)
	ListTasks(ctx context.Context) ([]client.Task, error)
	LacesBalance(ctx context.Context) (*client.LacesBalance, error)
}

// Options configures the dashboard.
type Options struct {
	Channel    Channel
	Auth       Auth
	API        API
	Credential *session.Credential
	Logger     *log.Logger

	// HealthInterval defaults to 10s.
	HealthInterval time.Duration
}

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDebug
)

type (
	authMsg struct {
		sess session.Session
		err  error
	}
	snapshotMsg struct {
		token    string
		monitors []client.Monitor
		tasks    []client.Task
		balance  *client.LacesBalance
		err      error
	}
	healthMsg struct {
		health *client.Health
		err    error
	}
	healthTickMsg struct{}
	balanceMsg    struct {
		token   string
		balance *client.LacesBalance
		err     error
	}
	commandMsg struct {
		token  string
		prompt string
		result commands.Result
		err    error
	}
)

// subscribed lists the event types the dashboard mirrors.
var subscribed = []string{
	events.MonitorUpdate,
	events.TaskUpdate,
	events.Alert,
	events.StockAlert,
	events.NewEvent,
	events.LacesEarned,
	events.ChannelExhausted,
}

// Model is the root Bubble Tea model.
type Model struct {
	ch       Channel
	auth     Auth
	api      API
	exec     *commands.Executor
	cred     *session.Credential
	logger   *log.Logger
	bridge   *bridge
	regs     []channel.Registration
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration

	keys    KeyMap
	width   int
	height  int
	overlay Overlay

	token   string
	authing bool
	authErr error
	notice  string

	statusBar status.Model
	monitors  monitors.Model
	tasks     tasks.Model
	activity  activity.Model
	balance   balance.Model
	chat      chat.Model
	debug     debug.Model
}

// New registers the dashboard's listeners on the channel and returns the root
// model. Call Shutdown once the program exits.
func New(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	interval := opts.HealthInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := newBridge(256)

	m := Model{
		ch:        opts.Channel,
		auth:      opts.Auth,
		api:       opts.API,
		exec:      commands.NewExecutor(opts.API, logger),
		cred:      opts.Credential,
		logger:    logger.WithPrefix("app"),
		bridge:    b,
		ctx:       ctx,
		cancel:    cancel,
		interval:  interval,
		keys:      DefaultKeyMap(),
		statusBar: status.New(),
		monitors:  monitors.New(),
		tasks:     tasks.New(),
		activity:  activity.New(),
		balance:   balance.New(),
		chat:      chat.New(),
		debug:     debug.New(),
	}
	for _, typ := range subscribed {
		m.regs = append(m.regs, m.ch.On(typ, func(payload json.RawMessage) {
			b.send(eventMsg{typ: typ, payload: payload})
		}))
	}
	m.ch.OnStateChange(func(st channel.Status) { b.sendStatus(statusMsg{status: st}) })
	m.statusBar.Channel = m.ch.Status()
	return m
}

// Shutdown removes the dashboard's listeners and disconnects the channel.
func (m Model) Shutdown() {
	m.cancel()
	for _, reg := range m.regs {
		m.ch.Off(reg)
	}
	m.ch.Disconnect()
}

// Init authenticates and starts the event bridge and health polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.authenticate(), m.bridge.wait(m.ctx), m.checkHealth())
}

func (m *Model) authenticate() tea.Cmd {
	m.authing = true
	ctx, auth, cred := m.ctx, m.auth, m.cred
	return func() tea.Msg {
		sess, err := auth.Authenticate(ctx, cred)
		return authMsg{sess: sess, err: err}
	}
}

func (m Model) checkHealth() tea.Cmd {
	ctx, api := m.ctx, m.api
	return func() tea.Msg {
		h, err := api.Health(ctx)
		return healthMsg{health: h, err: err}
	}
}

func (m Model) scheduleHealth() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return healthTickMsg{} })
}

// fetchSnapshot loads monitors, tasks and balance. It keeps whatever parts
// succeed and reports the first failure.
func (m Model) fetchSnapshot() tea.Cmd {
	ctx, api, token := m.ctx, m.api, m.token
	return func() tea.Msg {
		msg := snapshotMsg{token: token}
		var err error
		if msg.monitors, err = api.ListMonitors(ctx); err != nil {
			msg.err = err
		}
		if msg.tasks, err = api.ListTasks(ctx); err != nil && msg.err == nil {
			msg.err = err
		}
		if msg.balance, err = api.LacesBalance(ctx); err != nil && msg.err == nil {
			msg.err = err
		}
		return msg
	}
}

func (m Model) fetchBalance() tea.Cmd {
	ctx, api, token := m.ctx, m.api, m.token
	return func() tea.Msg {
		b, err := api.LacesBalance(ctx)
		return balanceMsg{token: token, balance: b, err: err}
	}
}

func (m Model) runCommand(prompt string) tea.Cmd {
	ctx, exec, token := m.ctx, m.exec, m.token
	return func() tea.Msg {
		res, err := exec.Run(ctx, prompt)
		return commandMsg{token: token, prompt: prompt, result: res, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case authMsg:
		return m.handleAuth(msg)

	case snapshotMsg:
		if msg.monitors != nil {
			m.monitors.Set(msg.monitors)
			refs := make([]commands.MonitorRef, 0, len(msg.monitors))
			for _, mon := range msg.monitors {
				refs = append(refs, commands.MonitorRef{ID: mon.MonitorID, SKU: mon.SKU})
			}
			m.exec.Track(refs...)
		}
		if msg.tasks != nil {
			m.tasks.Set(msg.tasks)
		}
		m.debug.Addf(debug.KindHTTP, "snapshot: %d monitors, %d tasks", len(msg.monitors), len(msg.tasks))
		cmd := m.balance.SetBalance(msg.balance)
		if msg.err != nil {
			retry := m.apiFailure("snapshot", msg.token, msg.err)
			return m, tea.Batch(cmd, retry)
		}
		return m, cmd

	case balanceMsg:
		if msg.err != nil {
			retry := m.apiFailure("balance", msg.token, msg.err)
			return m, retry
		}
		cmd := m.balance.SetBalance(msg.balance)
		return m, cmd

	case balance.FrameMsg:
		var cmd tea.Cmd
		m.balance, cmd = m.balance.Update(msg)
		return m, cmd

	case healthMsg:
		m.statusBar.Health, m.statusBar.HealthErr = msg.health, msg.err
		if msg.err != nil {
			m.debug.Addf(debug.KindHTTP, "health: %v", msg.err)
		}
		return m, m.scheduleHealth()

	case healthTickMsg:
		return m, m.checkHealth()

	case commandMsg:
		return m.handleCommand(msg)

	case statusMsg:
		// Observers may be delivered out of order; Status is authoritative.
		m.statusBar.Channel = m.ch.Status()
		m.debug.Addf(debug.KindChannel, "state %s attempt %d", msg.status.State, msg.status.Attempt)
		if msg.status.Err != nil {
			m.debug.Addf(debug.KindChannel, "%v", msg.status.Err)
		}
		return m, m.bridge.wait(m.ctx)

	case eventMsg:
		cmd := m.handleEvent(msg)
		return m, tea.Batch(cmd, m.bridge.wait(m.ctx))
	}

	if m.chat.Focused() {
		var cmd tea.Cmd
		m.chat, cmd = m.chat.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleAuth(msg authMsg) (tea.Model, tea.Cmd) {
	m.authing = false
	if msg.err != nil {
		m.authErr = msg.err
		m.token = ""
		m.statusBar.Offline = true
		m.debug.Addf(debug.KindError, "auth: %v", msg.err)
		m.logger.Warn("offline mode", "err", msg.err)
		return m, nil
	}
	m.authErr = nil
	m.token = msg.sess.Token
	m.statusBar.Offline = false
	m.statusBar.UserID = msg.sess.UserID
	m.debug.Addf(debug.KindHTTP, "signed in as %s", msg.sess.UserID)
	m.connect()
	return m, m.fetchSnapshot()
}

// connect (re)starts the channel with the current token, replacing any
// connection or pending retry.
func (m *Model) connect() {
	err := m.ch.Connect(m.token)
	if errors.Is(err, channel.ErrAlreadyActive) {
		m.ch.Disconnect()
		err = m.ch.Connect(m.token)
	}
	if err != nil {
		m.debug.Addf(debug.KindError, "connect: %v", err)
	}
	m.statusBar.Channel = m.ch.Status()
}

// apiFailure logs err and re-authenticates when the session a request was
// issued under was rejected. Rejections of a replaced token, or ones arriving
// while a sign-in is already running, are only logged.
func (m *Model) apiFailure(op, token string, err error) tea.Cmd {
	m.debug.Addf(debug.KindError, "%s: %v", op, err)
	if !client.IsUnauthorized(err) && !errors.Is(err, client.ErrNoSession) {
		return nil
	}
	if token != m.token || m.authing {
		m.debug.Add(debug.KindHTTP, "ignoring rejection of a replaced session")
		return nil
	}
	m.auth.InvalidateToken(token)
	m.debug.Add(debug.KindHTTP, "session rejected, signing in again")
	return m.authenticate()
}

func (m Model) handleCommand(msg commandMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.chat.Fail(msg.err.Error())
		retry := m.apiFailure("command", msg.token, msg.err)
		return m, retry
	}
	res := msg.result
	m.debug.Addf(debug.KindCommand, "%q -> %s", msg.prompt, res.Kind)
	switch res.Kind {
	case commands.KindError:
		m.chat.Fail(res.Message)
		return m, nil
	case commands.KindChat:
		m.chat.Reply(res.Message)
		return m, nil
	}
	m.chat.Reply(res.Message)
	for _, ref := range res.Monitors {
		m.monitors.Apply(events.MonitorStatus{MonitorID: ref.ID, SKU: ref.SKU, Status: "active"})
	}
	m.tasks.Add(res.TaskIDs)
	if res.Cleared {
		m.monitors.Clear()
	}
	return m, nil
}

func (m *Model) handleEvent(msg eventMsg) tea.Cmd {
	switch msg.typ {
	case events.MonitorUpdate:
		if ev, ok := decode[events.MonitorStatus](m, msg); ok {
			m.monitors.Apply(ev)
		}
	case events.TaskUpdate:
		if ev, ok := decode[events.TaskProgress](m, msg); ok {
			m.tasks.Apply(ev)
		}
	case events.Alert:
		if ev, ok := decode[events.AlertMessage](m, msg); ok {
			m.notice = ev.Message
		}
	case events.StockAlert:
		if ev, ok := decode[events.StockAvailable](m, msg); ok {
			m.notice = fmt.Sprintf("%s in stock at %s: %s", ev.SKU, ev.Retailer, strings.Join(ev.Sizes, ", "))
		}
	case events.NewEvent:
		if ev, ok := decode[events.Activity](m, msg); ok {
			m.activity.Add(ev)
		}
	case events.LacesEarned:
		if ev, ok := decode[events.LacesCredit](m, msg); ok {
			m.balance.Credit(ev)
			return m.fetchBalance()
		}
	case events.ChannelExhausted:
		if ev, ok := decode[events.Exhausted](m, msg); ok {
			m.debug.Addf(debug.KindChannel, "gave up after %d attempts", ev.Attempts)
		}
	}
	return nil
}

func decode[T any](m *Model, msg eventMsg) (T, bool) {
	v, err := events.Decode[T](msg.payload)
	if err != nil {
		m.debug.Addf(debug.KindError, "%s payload: %v", msg.typ, err)
		return v, false
	}
	return v, true
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		m.cancel()
		return m, tea.Quit
	}

	if m.overlay == OverlayDebug {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		}
		return m, nil
	}

	if m.chat.Focused() {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.chat.Blur()
			return m, nil
		case key.Matches(msg, m.keys.Enter):
			prompt := m.chat.Submit()
			if prompt == "" {
				return m, nil
			}
			if m.token == "" {
				m.chat.Fail("Offline: press esc then r to sign in again.")
				return m, nil
			}
			return m, m.runCommand(prompt)
		}
		var cmd tea.Cmd
		m.chat, cmd = m.chat.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Tab):
		cmd := m.chat.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		m.notice = ""
		return m, nil

	case key.Matches(msg, m.keys.Reconnect):
		if m.token == "" {
			m.debug.Add(debug.KindHTTP, "retrying sign in")
			cmd := m.authenticate()
			return m, cmd
		}
		m.debug.Add(debug.KindChannel, "manual reconnect")
		m.connect()
		return m, nil
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.overlay == OverlayDebug {
		return m.debug.View(m.width, m.height)
	}

	sections := []string{m.statusBar.View()}
	if m.authErr != nil {
		sections = append(sections, theme.StyleBanner.Width(m.width).
			Render(theme.Truncate("OFFLINE MODE · "+m.authErr.Error()+" · press r to retry", m.width-2)))
	}
	if m.notice != "" {
		sections = append(sections, lipgloss.NewStyle().Bold(true).Foreground(theme.ColorInStock).
			Render(theme.Truncate("» "+m.notice, m.width)))
	}

	left := m.width * 3 / 5
	right := m.width - left
	mon, tsk := m.monitors, m.tasks
	mon.Width, tsk.Width = left, left
	bal, act := m.balance, m.activity
	bal.Width, act.Width = right, right
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.JoinVertical(lipgloss.Left, mon.View(), tsk.View()),
		lipgloss.JoinVertical(lipgloss.Left, bal.View(), act.View()),
	)

	prompt := m.chat
	prompt.Width, prompt.Height = m.width, 8

	sections = append(sections, body, prompt.View(), theme.StyleDimmed.Render(m.keys.helpLine()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
