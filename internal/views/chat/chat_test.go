package chat

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitClearsInputAndRecords(t *testing.T) {
	m := New()
	m.SetValue("  monitor AB123  ")

	assert.Equal(t, "monitor AB123", m.Submit())
	assert.Empty(t, m.Value())
	assert.True(t, m.Pending)
	require.Len(t, m.History, 1)
	assert.Equal(t, Message{Role: RoleUser, Text: "monitor AB123"}, m.History[0])
}

func TestSubmitBlockedWhilePendingOrEmpty(t *testing.T) {
	m := New()
	assert.Empty(t, m.Submit())

	m.SetValue("fire 2")
	m.Submit()
	m.SetValue("fire 3")
	assert.Empty(t, m.Submit(), "a reply is still pending")

	m.Reply("Fired 2 checkout tasks")
	assert.False(t, m.Pending)
	assert.Equal(t, "fire 3", m.Submit())
}

func TestFail(t *testing.T) {
	m := New()
	m.SetValue("x")
	m.Submit()
	m.Fail("POST /api/commands/parse: 500")
	assert.False(t, m.Pending)
	assert.Equal(t, RoleError, m.History[len(m.History)-1].Role)
}

func TestHistoryCapped(t *testing.T) {
	m := New()
	for i := 0; i < maxHistory+10; i++ {
		m.Reply("hi")
	}
	assert.Len(t, m.History, maxHistory)
}

func TestFocusedTyping(t *testing.T) {
	m := New()
	m.Focus()
	assert.True(t, m.Focused())
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("ok")})
	assert.Equal(t, "ok", m.Value())

	m.Blur()
	assert.False(t, m.Focused())
}

func TestViewRendersMarkdownReply(t *testing.T) {
	m := New()
	m.Width, m.Height = 80, 20
	assert.Contains(t, m.View(), "tab to type")

	m.SetValue("hello")
	m.Submit()
	m.Reply("Try **monitor <sku>** to watch a product.")
	v := m.View()
	assert.Contains(t, v, "you: ")
	assert.Contains(t, v, "monitor")
	assert.NotContains(t, v, "**", "markdown emphasis should be rendered")
}
