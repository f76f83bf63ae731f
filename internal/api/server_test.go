package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aquawatch/internal/alerts"
	"aquawatch/internal/config"
	"aquawatch/internal/dispatch"
	"aquawatch/internal/history"
	"aquawatch/internal/model"
	"aquawatch/internal/pairing"
)

type fixedConn bool

func (f fixedConn) Connected() bool { return bool(f) }

func newTestServer(connected bool) *Server {
	hist := history.NewStore(50)
	al := alerts.NewStore(50, time.Second)
	d := dispatch.New(hist, al, nil, nil, "SITE-01", 10, nil)
	pm := pairing.NewManager("http://127.0.0.1:1/api/pair/create-session", 5*time.Minute, fixedConn(connected), &http.Client{Timeout: 100 * time.Millisecond}, nil)
	return &Server{
		cfg:        config.NewStaticManager(nil),
		history:    hist,
		alerts:     al,
		dispatcher: d,
		pairing:    pm,
		conn:       fixedConn(connected),
		version:    "test",
	}
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(true)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code: %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Connected || resp.Version != "test" {
		t.Fatalf("response: %+v", resp)
	}
}

func TestHandleWindow(t *testing.T) {
	s := newTestServer(true)
	for i := 1; i <= 5; i++ {
		s.history.Append(model.Prediction{
			Timestamp: time.Unix(int64(i), 0).UTC(),
			Status:    model.StatusClear,
			Turbidity: float64(i),
			SiteID:    "SITE-01",
		})
	}
	rec := httptest.NewRecorder()
	s.handleWindow(rec, httptest.NewRequest(http.MethodGet, "/predictions/window?site_id=SITE-01&count=3", nil))
	var resp struct {
		Predictions []model.Prediction `json:"predictions"`
		Count       int                `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 3 || resp.Predictions[0].Turbidity != 3 {
		t.Fatalf("window response: %+v", resp)
	}
}

func TestHandleLatestNotFound(t *testing.T) {
	s := newTestServer(true)
	rec := httptest.NewRecorder()
	s.handleLatest(rec, httptest.NewRequest(http.MethodGet, "/predictions/latest?site_id=SITE-09", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status code: %d", rec.Code)
	}
}

func TestHandleAlertsFilter(t *testing.T) {
	s := newTestServer(true)
	s.alerts.Ingest(model.Alert{ID: 1, SiteID: "SITE-01", Severity: model.SeverityCritical})
	s.alerts.Ingest(model.Alert{ID: 2, SiteID: "SITE-01", Severity: model.SeverityInfo})
	s.alerts.Acknowledge(2)

	rec := httptest.NewRecorder()
	s.handleAlerts(rec, httptest.NewRequest(http.MethodGet, "/alerts?site_id=SITE-01&filter=unacknowledged", nil))
	var resp struct {
		Alerts []struct {
			model.Alert
			Recent bool `json:"recent"`
		} `json:"alerts"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Alerts[0].ID != 1 {
		t.Fatalf("filter response: %+v", resp)
	}
	if !resp.Alerts[0].Recent {
		t.Fatalf("fresh alert not flagged recent")
	}
}

func TestHandleAcknowledgeRoute(t *testing.T) {
	s := newTestServer(true)
	s.alerts.Ingest(model.Alert{ID: 3, SiteID: "SITE-01", Severity: model.SeverityWarning})

	rec := httptest.NewRecorder()
	s.handleAlertAction(rec, httptest.NewRequest(http.MethodPost, "/alerts/3/acknowledge", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code: %d", rec.Code)
	}
	a, _ := s.alerts.Get(3)
	if !a.Acknowledged {
		t.Fatalf("alert not acknowledged via api")
	}

	rec = httptest.NewRecorder()
	s.handleAlertAction(rec, httptest.NewRequest(http.MethodPost, "/alerts/x/acknowledge", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status code: %d", rec.Code)
	}
}

func TestHandlePairingBlocked(t *testing.T) {
	s := newTestServer(false)
	rec := httptest.NewRecorder()
	s.handlePairingSession(rec, httptest.NewRequest(http.MethodPost, "/pairing/session", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status code: %d", rec.Code)
	}
}

func TestHandlePairingURLWithoutSession(t *testing.T) {
	s := newTestServer(true)
	rec := httptest.NewRecorder()
	s.handlePairingURL(rec, httptest.NewRequest(http.MethodGet, "/pairing/url?base=https://host.ngrok.app/", nil))
	if rec.Code != http.StatusGone {
		t.Fatalf("status code: %d", rec.Code)
	}
}
