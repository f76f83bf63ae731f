package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aquawatch/internal/alerts"
	"aquawatch/internal/config"
	"aquawatch/internal/dispatch"
	"aquawatch/internal/history"
	"aquawatch/internal/model"
	"aquawatch/internal/pairing"
)

// ConnectionStatus mirrors the stream client's connectivity flag.
type ConnectionStatus interface {
	Connected() bool
}

// Server exposes read-only store snapshots to the rendering layer, plus the
// two mutations it is allowed: acknowledging an alert and opening a pairing
// session. All other state flows one way, sync layer to views.
type Server struct {
	cfg        *config.Manager
	history    *history.Store
	alerts     *alerts.Store
	dispatcher *dispatch.Dispatcher
	pairing    *pairing.Manager
	conn       ConnectionStatus
	logger     *slog.Logger
	version    string
}

type statusResponse struct {
	Status    string `json:"status"`
	Time      string `json:"time"`
	Version   string `json:"version"`
	Connected bool   `json:"connected"`
	Sites     int    `json:"sites"`
}

func Start(ctx context.Context, cfg *config.Manager, historyStore *history.Store, alertStore *alerts.Store, dispatcher *dispatch.Dispatcher, pairingMgr *pairing.Manager, conn ConnectionStatus, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:        cfg,
		history:    historyStore,
		alerts:     alertStore,
		dispatcher: dispatcher,
		pairing:    pairingMgr,
		conn:       conn,
		logger:     logger,
		version:    version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/predictions/latest", server.handleLatest)
	mux.HandleFunc("/predictions/window", server.handleWindow)
	mux.HandleFunc("/sites/summary", server.handleSummary)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/alerts/counts", server.handleAlertCounts)
	mux.HandleFunc("/alerts/", server.handleAlertAction)
	mux.HandleFunc("/pairing/session", server.handlePairingSession)
	mux.HandleFunc("/pairing/url", server.handlePairingURL)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	connected := false
	if s.conn != nil {
		connected = s.conn.Connected()
	}
	resp := statusResponse{
		Status:    "ok",
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Version:   s.version,
		Connected: connected,
		Sites:     len(s.history.Sites()),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	siteID := r.URL.Query().Get("site_id")
	p, ok := s.history.Latest(siteID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	siteID := r.URL.Query().Get("site_id")
	count := s.cfg.Get().History.TrendPoints
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}
	window := s.history.Window(siteID, count)
	writeJSON(w, http.StatusOK, map[string]any{
		"site_id":     siteID,
		"predictions": window,
		"count":       len(window),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	summary := s.history.Summary()
	writeJSON(w, http.StatusOK, map[string]any{
		"sites": summary,
		"count": len(summary),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	siteID := q.Get("site_id")
	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var pred func(model.Alert) bool
	switch q.Get("filter") {
	case "unacknowledged":
		pred = func(a model.Alert) bool { return !a.Acknowledged }
	case "critical":
		pred = func(a model.Alert) bool { return a.Severity.Normalize() == model.SeverityCritical }
	case "warning":
		pred = func(a model.Alert) bool { return a.Severity.Normalize() == model.SeverityWarning }
	case "info":
		pred = func(a model.Alert) bool { return a.Severity.Normalize() == model.SeverityInfo }
	}
	list := s.alerts.Filter(siteID, limit, pred)

	type alertView struct {
		model.Alert
		Recent bool `json:"recent"`
	}
	views := make([]alertView, 0, len(list))
	for _, a := range list {
		views = append(views, alertView{Alert: a, Recent: s.alerts.Recent(a.ID)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": views,
		"count":  len(views),
	})
}

func (s *Server) handleAlertCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	siteID := r.URL.Query().Get("site_id")
	writeJSON(w, http.StatusOK, s.alerts.CountsFor(siteID))
}

// handleAlertAction serves POST /alerts/{id}/acknowledge.
func (s *Server) handleAlertAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/alerts/")
	idStr, action, ok := strings.Cut(rest, "/")
	if !ok || action != "acknowledge" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.dispatcher.Acknowledge(r.Context(), id); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"status": "rolled_back"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handlePairingSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		session, err := s.pairing.Request(r.Context())
		if err != nil {
			if errors.Is(err, pairing.ErrPairingBlocked) {
				writeJSON(w, http.StatusConflict, map[string]any{"error": "pairing_blocked"})
				return
			}
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": "pairing_unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, sessionView(session, time.Now().UTC()))
		return
	case http.MethodGet:
		session, ok := s.pairing.Current()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, sessionView(session, time.Now().UTC()))
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePairingURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := s.pairing.Current()
	if !ok || session.Expired(time.Now().UTC()) {
		writeJSON(w, http.StatusGone, map[string]any{"error": "session_expired"})
		return
	}
	base := r.URL.Query().Get("base")
	if base == "" {
		base = s.cfg.Get().Pairing.PublicBase
	}
	if base == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url": pairing.PairingURL(session.ID, base),
	})
}

func sessionView(s model.PairingSession, now time.Time) map[string]any {
	return map[string]any{
		"session_id": s.ID,
		"created_at": s.CreatedAt.Format(time.RFC3339Nano),
		"expires_in": int(s.ExpiresIn(now).Seconds()),
		"expired":    s.Expired(now),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
