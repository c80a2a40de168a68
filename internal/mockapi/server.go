// Package mockapi is an in-memory Dharma backend for local development and
// integration tests. It serves the REST endpoints and the /ws event channel.
package mockapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/myspacecornelius/Dharma/internal/events"
)

type ctxKey int

const userKey ctxKey = iota

// Options configures a Server.
type Options struct {
	Environment string
	SessionTTL  time.Duration
	APIKeys     []string // empty accepts any non-empty key
	MaxClients  int
	Logger      *log.Logger
}

type Server struct {
	state       *State
	sessions    *Sessions
	broadcaster *Broadcaster
	logger      *log.Logger
	environment string
	upgrader    websocket.Upgrader
	router      *mux.Router
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if opts.Environment == "" {
		opts.Environment = "development"
	}
	logger := opts.Logger.WithPrefix("mockapi")
	s := &Server{
		state:       NewState(),
		sessions:    NewSessions(opts.SessionTTL, opts.APIKeys...),
		broadcaster: NewBroadcaster(opts.MaxClients, logger),
		logger:      logger,
		environment: opts.Environment,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/posts", s.handlePosts).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/session", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWS)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireSession)
	api.HandleFunc("/auth/session", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/commands/parse", s.handleParse).Methods(http.MethodPost)
	api.HandleFunc("/monitors", s.handleListMonitors).Methods(http.MethodGet)
	api.HandleFunc("/monitors", s.handleStartMonitor).Methods(http.MethodPost)
	api.HandleFunc("/monitors/{id}", s.handleStopMonitor).Methods(http.MethodDelete)
	api.HandleFunc("/checkout/tasks", s.handleListTasks).Methods(http.MethodGet)
	api.HandleFunc("/checkout/tasks/batch", s.handleCreateTasks).Methods(http.MethodPost)
	api.HandleFunc("/metrics/dashboard", s.handleMetrics).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/laces/balance", s.handleBalance).Methods(http.MethodGet)
	api.HandleFunc("/laces/transactions", s.handleTransactions).Methods(http.MethodGet)
	api.HandleFunc("/heatmap/events/nearby", s.handleNearby).Methods(http.MethodGet)
	api.HandleFunc("/community/heat", s.handleSubmitHeat).Methods(http.MethodPost)
	api.HandleFunc("/community/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)

	r.Handle("/releases/upcoming", s.requireSession(http.HandlerFunc(s.handleReleases))).Methods(http.MethodGet)
	r.Handle("/analytics/summary", s.requireSession(http.HandlerFunc(s.handleAnalytics))).Methods(http.MethodGet)
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) State() *State             { return s.state }
func (s *Server) Broadcaster() *Broadcaster { return s.broadcaster }
func (s *Server) Sessions() *Sessions       { return s.sessions }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.broadcaster.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// Close releases background resources.
func (s *Server) Close() {
	s.broadcaster.CloseAll()
	s.sessions.Stop()
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.sessions.Lookup(bearer(r))
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	})
}

func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func userFrom(r *http.Request) string {
	id, _ := r.Context().Value(userKey).(string)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"redis":       "connected",
		"environment": s.environment,
		"timestamp":   time.Now().UTC(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey   string `json:"api_key"`
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	token, userID, ok := s.sessions.Issue(req.APIKey)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}
	s.state.EnsureUser(userID)
	s.logger.Info("session created", "user", userID, "device", req.DeviceID)
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "user_id": userID})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Revoke(bearer(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessions.Lookup(r.URL.Query().Get("token"))
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade", "err", err)
		return
	}
	c, err := s.broadcaster.AddClient(conn, userID)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), time.Now().Add(time.Second))
		conn.Close()
		return
	}
	s.logger.Info("channel client connected", "user", userID, "remote", r.RemoteAddr)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.logger.Info("channel client disconnected", "user", userID)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	writeJSON(w, http.StatusOK, parsePrompt(req.Prompt))
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"monitors": s.state.Monitors()})
}

func (s *Server) handleStartMonitor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SKU        string `json:"sku"`
		Retailer   string `json:"retailer"`
		IntervalMS int    `json:"interval_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.SKU) == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "sku is required"})
		return
	}
	if req.Retailer == "" {
		req.Retailer = "shopify"
	}
	if req.IntervalMS <= 0 {
		req.IntervalMS = 200
	}
	m := s.state.AddMonitor(req.SKU, req.Retailer, req.IntervalMS)
	s.broadcaster.Publish(events.MonitorUpdate, events.MonitorStatus{
		MonitorID: m.MonitorID,
		SKU:       m.SKU,
		Status:    m.Status,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "monitor_id": m.MonitorID})
}

func (s *Server) handleStopMonitor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.state.RemoveMonitor(id) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	s.broadcaster.Publish(events.MonitorUpdate, events.MonitorStatus{MonitorID: id, Status: "stopped"})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.state.Tasks()})
}

func (s *Server) handleCreateTasks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count     int    `json:"count"`
		ProfileID string `json:"profile_id"`
		Mode      string `json:"mode"`
		Retailer  string `json:"retailer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Count <= 0 || req.Count > 100 {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "count must be between 1 and 100"})
		return
	}
	if req.Mode == "" {
		req.Mode = "request"
	}
	if req.Retailer == "" {
		req.Retailer = "shopify"
	}
	ids := s.state.AddTasks(req.Count, req.ProfileID, req.Mode, req.Retailer)
	for _, id := range ids {
		s.broadcaster.Publish(events.TaskUpdate, events.TaskProgress{TaskID: id, Message: "Queued", Status: "pending"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task_ids": ids})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := s.state.Metrics()
	if r.Method == http.MethodPost {
		var q struct {
			Timeframe    string `json:"timeframe"`
			IncludeCosts bool   `json:"include_costs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		m.Timeframe = q.Timeframe
		if q.IncludeCosts {
			m.Costs = &costSummary{Proxy: 3.2, Total: 3.2}
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	m.Host = sampleHost(ctx)
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Balance(userFrom(r)))
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": s.state.Transactions(userFrom(r), limit)})
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}
	radius := 10.0
	if v := q.Get("radius_km"); v != "" {
		if radius, err1 = strconv.ParseFloat(v, 64); err1 != nil || radius <= 0 {
			writeError(w, http.StatusBadRequest, "invalid radius_km")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.state.Nearby(lat, lng, radius, q.Get("event_type"))})
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, seedPosts)
}

type post struct {
	ID          int    `json:"id"`
	ContentText string `json:"content_text"`
	User        struct {
		DisplayName string `json:"display_name"`
		AvatarURL   string `json:"avatar_url"`
	} `json:"user"`
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
}

var seedPosts = func() []post {
	raw := []struct{ name, text, place string }{
		{"kai", "Restock spotted at the Broadway flagship, sizes 9-11.", "SoHo"},
		{"mira", "Line forming early for Saturday's drop.", "Williamsburg"},
		{"devon", "Verified: Dunk Low panda back on shelves.", "Flatiron"},
	}
	out := make([]post, len(raw))
	for i, p := range raw {
		out[i].ID = i + 1
		out[i].ContentText = p.text
		out[i].User.DisplayName = p.name
		out[i].Location.Name = p.place
	}
	return out
}()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
