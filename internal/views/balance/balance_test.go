package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myspacecornelius/Dharma/internal/client"
	"github.com/myspacecornelius/Dharma/internal/events"
)

func TestFirstBalanceShownImmediately(t *testing.T) {
	m := New()
	cmd := m.SetBalance(&client.LacesBalance{Balance: 100})
	assert.Nil(t, cmd)
	assert.Equal(t, 100, m.Shown())
	assert.False(t, m.Animating())
}

func TestChangeAnimatesToTarget(t *testing.T) {
	m := New()
	m.SetBalance(&client.LacesBalance{Balance: 100})
	cmd := m.SetBalance(&client.LacesBalance{Balance: 150})
	require.NotNil(t, cmd)
	require.True(t, m.Animating())

	var sawMidway bool
	for i := 0; i < 10*fps && m.Animating(); i++ {
		m, _ = m.Update(FrameMsg{})
		if s := m.Shown(); s > 100 && s < 150 {
			sawMidway = true
		}
	}
	assert.False(t, m.Animating(), "spring should settle")
	assert.Equal(t, 150, m.Shown())
	assert.True(t, sawMidway)
}

func TestSameBalanceDoesNotAnimate(t *testing.T) {
	m := New()
	m.SetBalance(&client.LacesBalance{Balance: 7})
	assert.Nil(t, m.SetBalance(&client.LacesBalance{Balance: 7}))
	assert.Nil(t, m.SetBalance(nil))
}

func TestFrameIgnoredWhenIdle(t *testing.T) {
	m := New()
	m.SetBalance(&client.LacesBalance{Balance: 3})
	m, cmd := m.Update(FrameMsg{})
	assert.Nil(t, cmd)
	assert.Equal(t, 3, m.Shown())
}

func TestView(t *testing.T) {
	m := New()
	m.Width = 40
	assert.Contains(t, m.View(), "loading")

	m.SetBalance(&client.LacesBalance{Balance: 115, Rank: 2, Percentile: 50})
	m.Credit(events.LacesCredit{Amount: 5, Reason: "SPOT"})
	v := m.View()
	assert.Contains(t, v, "115 LACES")
	assert.Contains(t, v, "rank #2")
	assert.Contains(t, v, "+5 Spotted a drop")
}
