package mockapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/myspacecornelius/Dharma/internal/events"
)

// heatReward is credited for every accepted heat spot.
const heatReward = 5

const leaderboardSize = 10

type leaderboardEntry struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
	Rank   int    `json:"rank"`
}

// Leaderboard ranks wallets by balance. Equal balances share a rank, matching
// the rank reported by Balance.
func (s *State) Leaderboard(limit int) []leaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]leaderboardEntry, 0, len(s.wallets))
	for id, w := range s.wallets {
		out = append(out, leaderboardEntry{UserID: id, Score: w.balance})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	for i := range out {
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type retailerStats struct {
	Name    string `json:"name"`
	Success int    `json:"success"`
	Fail    int    `json:"fail"`
}

// RetailerStats counts finished checkout tasks per retailer.
func (s *State) RetailerStats() []retailerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName := make(map[string]*retailerStats)
	for _, t := range s.tasks {
		if t.Status != "completed" && t.Status != "failed" {
			continue
		}
		st, ok := byName[t.Retailer]
		if !ok {
			st = &retailerStats{Name: t.Retailer}
			byName[t.Retailer] = st
		}
		if t.Status == "completed" {
			st.Success++
		} else {
			st.Fail++
		}
	}
	out := make([]retailerStats, 0, len(byName))
	for _, st := range byName {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type release struct {
	ReleaseID   string            `json:"release_id"`
	SneakerName string            `json:"sneaker_name"`
	Brand       string            `json:"brand"`
	ReleaseDate time.Time         `json:"release_date"`
	RetailPrice float64           `json:"retail_price"`
	StoreLinks  map[string]string `json:"store_links,omitempty"`
}

var releaseCalendar = []struct {
	name, brand, sku string
	inDays           int
	price            float64
}{
	{"Air Jordan 1 High OG Chicago", "Jordan", "DZ5485-612", 3, 180},
	{"Dunk Low Panda", "Nike", "DD1391-100", 6, 115},
	{"Samba OG Cream", "Adidas", "HQ6998-600", 9, 100},
	{"Air Force 1 '07", "Nike", "CW2288-111", 14, 115},
	{"Gel-1130 Black", "ASICS", "FQ8138-002", 21, 110},
}

// upcomingReleases dates the calendar relative to now.
func upcomingReleases(now time.Time) []release {
	day := now.UTC().Truncate(24 * time.Hour)
	out := make([]release, len(releaseCalendar))
	for i, r := range releaseCalendar {
		out[i] = release{
			ReleaseID:   r.sku,
			SneakerName: r.name,
			Brand:       r.brand,
			ReleaseDate: day.AddDate(0, 0, r.inDays).Add(15 * time.Hour),
			RetailPrice: r.price,
			StoreLinks:  map[string]string{"snkrs": "https://www.nike.com/launch?s=" + strings.ToLower(r.sku)},
		}
	}
	return out
}

func validHeatType(typ string) bool {
	for _, t := range heatTypes {
		if t == typ {
			return true
		}
	}
	return false
}

func (s *Server) handleSubmitHeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string  `json:"type"`
		Lat  float64 `json:"lat"`
		Lng  float64 `json:"lng"`
		SKU  string  `json:"sku"`
		Name string  `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !validHeatType(req.Type) {
		writeError(w, http.StatusBadRequest, "type must be one of drop, restock, find")
		return
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		writeError(w, http.StatusBadRequest, "lat/lng out of range")
		return
	}

	userID := userFrom(r)
	title := strings.TrimSpace(req.Name)
	if title == "" {
		title = strings.TrimSpace(req.SKU + " " + req.Type)
	}
	ev := heatEvent{
		EventID:   uuid.NewString(),
		Type:      req.Type,
		Title:     title,
		Lat:       req.Lat,
		Lng:       req.Lng,
		SKU:       req.SKU,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	s.state.AddEvent(ev)
	s.state.Credit(userID, heatReward, "SPOT")

	s.broadcaster.Publish(events.NewEvent, events.Activity{
		EventID:   ev.EventID,
		Type:      ev.Type,
		Lat:       ev.Lat,
		Lng:       ev.Lng,
		SKU:       ev.SKU,
		Name:      ev.Title,
		UserID:    ev.UserID,
		Timestamp: ev.Timestamp,
	})
	s.broadcaster.PublishTo(userID, events.LacesEarned, events.LacesCredit{Amount: heatReward, Reason: "SPOT"})
	writeJSON(w, http.StatusCreated, map[string]any{"event_id": ev.EventID, "reward": heatReward})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Leaderboard(leaderboardSize))
}

func (s *Server) handleReleases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, upcomingReleases(time.Now()))
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.RetailerStats())
}
