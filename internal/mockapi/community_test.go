package mockapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getList(t *testing.T, url, token string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestSubmitHeatBroadcastsActivity(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	token, userID := login(t, ts, "k")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, token), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.Broadcaster().ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	resp, out := call(t, ts, http.MethodPost, "/api/community/heat", token,
		map[string]any{"type": "restock", "lat": 40.72, "lng": -73.99, "sku": "DD1391-100", "name": "Panda restock"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(heatReward), out["reward"])

	var got []string
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(got) < 2 {
		var env struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&env))
		got = append(got, env.Type)
		if env.Type == "new_event" {
			assert.Contains(t, string(env.Payload), `"name":"Panda restock"`)
			assert.Contains(t, string(env.Payload), out["event_id"].(string))
		}
	}
	assert.Equal(t, []string{"new_event", "laces_earned"}, got)

	assert.Equal(t, 100+heatReward, s.State().Balance(userID).Balance)
	assert.Len(t, s.State().Nearby(40.72, -73.99, 1, "restock"), 1)
}

func TestSubmitHeatValidates(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	token, _ := login(t, ts, "k")

	for name, body := range map[string]map[string]any{
		"type":     {"type": "rumor", "lat": 1, "lng": 1},
		"latitude": {"type": "drop", "lat": 91, "lng": 1},
	} {
		resp, _ := call(t, ts, http.MethodPost, "/api/community/heat", token, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
	resp, _ := call(t, ts, http.MethodPost, "/api/community/heat", "", map[string]any{"type": "drop"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLeaderboardSharesRanks(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	token, _ := login(t, ts, "k")
	s.State().Credit("user_b", 10, "SPOT")
	s.State().Credit("user_c", 10, "SPOT")

	var rows []leaderboardEntry
	require.Equal(t, http.StatusOK, getList(t, ts.URL+"/api/community/leaderboard", token, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, leaderboardEntry{UserID: "user_b", Score: 110, Rank: 1}, rows[0])
	assert.Equal(t, 1, rows[1].Rank)
	assert.Equal(t, 3, rows[2].Rank)
}

func TestReleasesAndAnalytics(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	token, _ := login(t, ts, "k")

	var releases []release
	assert.Equal(t, http.StatusUnauthorized, getList(t, ts.URL+"/releases/upcoming", "", &releases))
	require.Equal(t, http.StatusOK, getList(t, ts.URL+"/releases/upcoming", token, &releases))
	require.Len(t, releases, len(releaseCalendar))
	for i := 1; i < len(releases); i++ {
		assert.True(t, releases[i].ReleaseDate.After(releases[i-1].ReleaseDate), "sorted by date")
	}
	assert.True(t, releases[0].ReleaseDate.After(time.Now()))

	ids := s.State().AddTasks(3, "p", "request", "nike")
	s.State().mu.Lock()
	s.State().tasks[ids[0]].Status = "completed"
	s.State().tasks[ids[1]].Status = "failed"
	s.State().mu.Unlock()

	var stats []retailerStats
	require.Equal(t, http.StatusOK, getList(t, ts.URL+"/analytics/summary", token, &stats))
	assert.Equal(t, []retailerStats{{Name: "nike", Success: 1, Fail: 1}}, stats)
}
