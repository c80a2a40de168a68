package app

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/myspacecornelius/Dharma/internal/channel"
)

// eventMsg carries one channel envelope into the Bubble Tea loop.
type eventMsg struct {
	typ     string
	payload json.RawMessage
}

// statusMsg reports a channel state transition.
type statusMsg struct {
	status channel.Status
}

// bridge moves listener callbacks, which run on the channel's read goroutine,
// onto the Bubble Tea update loop. Sends never block. Events are dropped when
// the queue is full; state transitions go through a one-slot mailbox where the
// newest replaces any undelivered one, so the latest state always arrives.
type bridge struct {
	queue   chan tea.Msg
	dropped atomic.Int64

	statusMu sync.Mutex
	status   chan statusMsg
}

func newBridge(size int) *bridge {
	return &bridge{
		queue:  make(chan tea.Msg, size),
		status: make(chan statusMsg, 1),
	}
}

func (b *bridge) send(msg tea.Msg) {
	select {
	case b.queue <- msg:
	default:
		b.dropped.Add(1)
	}
}

func (b *bridge) sendStatus(msg statusMsg) {
	b.statusMu.Lock()
	defer b.statusMu.Unlock()
	select {
	case <-b.status:
	default:
	}
	b.status <- msg
}

// wait returns a command that delivers the next bridged message, state
// transitions first. It is re-issued after every delivery.
func (b *bridge) wait(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.status:
			return msg
		default:
		}
		select {
		case <-ctx.Done():
			return nil
		case msg := <-b.status:
			return msg
		case msg := <-b.queue:
			return msg
		}
	}
}
