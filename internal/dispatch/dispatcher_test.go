package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"aquawatch/internal/alerts"
	"aquawatch/internal/backend"
	"aquawatch/internal/history"
	"aquawatch/internal/model"
)

func testStores() (*history.Store, *alerts.Store) {
	return history.NewStore(50), alerts.NewStore(50, time.Second)
}

func TestHandlePredictionRouting(t *testing.T) {
	hist, al := testStores()
	d := New(hist, al, nil, nil, "SITE-01", 10, nil)

	d.HandlePrediction(model.Prediction{SiteID: "SITE-01", Status: model.StatusModerate})
	if _, ok := hist.Latest("SITE-01"); !ok {
		t.Fatalf("prediction not stored")
	}
	d.HandlePrediction(model.Prediction{Status: model.StatusClear})
	if len(hist.Sites()) != 1 {
		t.Fatalf("prediction without site id was stored")
	}
}

func TestHandleAlertDeduplicates(t *testing.T) {
	hist, al := testStores()
	d := New(hist, al, nil, nil, "SITE-01", 10, nil)

	a := model.Alert{ID: 5, SiteID: "SITE-01", Severity: model.SeverityCritical}
	d.HandleAlert(a)
	d.HandleAlert(a)
	if got := al.CountsFor("SITE-01").Total; got != 1 {
		t.Fatalf("alert count after duplicate delivery: %d", got)
	}
}

func TestEnvelopeRouting(t *testing.T) {
	hist, al := testStores()
	d := New(hist, al, nil, nil, "SITE-01", 10, nil)

	pred, _ := json.Marshal(model.Prediction{SiteID: "SITE-03", Status: model.StatusClear})
	d.handleEnvelope(model.Envelope{Type: model.EventPrediction, Data: pred})
	if _, ok := hist.Latest("SITE-03"); !ok {
		t.Fatalf("envelope prediction not routed")
	}

	d.handleEnvelope(model.Envelope{Type: "mystery", Data: pred})
	d.handleEnvelope(model.Envelope{Type: model.EventAlert, Data: []byte(`"garbage"`)})
	if got := al.CountsFor("").Total; got != 0 {
		t.Fatalf("bad envelopes mutated alert store: %d", got)
	}
}

func TestAcknowledgeOptimisticSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	hist, al := testStores()
	d := New(hist, al, backend.NewClient(srv.URL, time.Second, nil), nil, "SITE-01", 10, nil)
	al.Ingest(model.Alert{ID: 9, SiteID: "SITE-01", Severity: model.SeverityWarning})

	if err := d.Acknowledge(context.Background(), 9); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	a, _ := al.Get(9)
	if !a.Acknowledged {
		t.Fatalf("alert not acknowledged")
	}
}

func TestAcknowledgeRollsBackOnBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hist, al := testStores()
	d := New(hist, al, backend.NewClient(srv.URL, time.Second, nil), nil, "SITE-01", 10, nil)
	al.Ingest(model.Alert{ID: 9, SiteID: "SITE-01", Severity: model.SeverityWarning})

	if err := d.Acknowledge(context.Background(), 9); err == nil {
		t.Fatalf("expected error from rejected acknowledge")
	}
	a, _ := al.Get(9)
	if a.Acknowledged {
		t.Fatalf("local acknowledge not rolled back")
	}
}

func TestAcknowledgeUnknownIDIsNoop(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	hist, al := testStores()
	d := New(hist, al, backend.NewClient(srv.URL, time.Second, nil), nil, "SITE-01", 10, nil)
	if err := d.Acknowledge(context.Background(), 404); err != nil {
		t.Fatalf("unknown id errored: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("unknown id reached the backend")
	}
}

func TestBootstrapSeedsAndDeduplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/predictions/history":
			// Newest first, matching the backend's ordering.
			w.Write([]byte(`[
				{"timestamp":"2026-03-01T12:00:10Z","status":"clear","turbidity":2,"site_id":"SITE-01"},
				{"timestamp":"2026-03-01T12:00:00Z","status":"clear","turbidity":1,"site_id":"SITE-01"}
			]`))
		case "/api/predictions/sites/summary":
			w.Write([]byte(`[
				{"timestamp":"2026-03-01T12:00:10Z","status":"clear","site_id":"SITE-01"},
				{"timestamp":"2026-03-01T12:00:05Z","status":"pollutant","site_id":"SITE-02"}
			]`))
		case "/api/alerts/":
			w.Write([]byte(`[
				{"id":1,"timestamp":"2026-03-01T12:00:00Z","severity":"critical","message":"m","site_id":"SITE-01","acknowledged":false}
			]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	hist, al := testStores()
	d := New(hist, al, backend.NewClient(srv.URL, time.Second, nil), nil, "SITE-01", 10, nil)

	// Simulate an alert already delivered over the stream before the
	// refetch; bootstrap must not duplicate it.
	al.Ingest(model.Alert{ID: 1, SiteID: "SITE-01", Severity: model.SeverityCritical, Message: "m"})

	d.Bootstrap(context.Background())

	win := hist.Window("SITE-01", 0)
	if len(win) != 2 {
		t.Fatalf("seeded history length: %d", len(win))
	}
	if win[0].Turbidity != 1 || win[1].Turbidity != 2 {
		t.Fatalf("seeded history not in chronological order: %v, %v", win[0].Turbidity, win[1].Turbidity)
	}
	if _, ok := hist.Latest("SITE-02"); !ok {
		t.Fatalf("summary site not seeded")
	}
	if got := al.CountsFor("SITE-01").Total; got != 1 {
		t.Fatalf("bootstrap duplicated alerts: %d", got)
	}

	// A second bootstrap leaves the already-seeded history alone.
	d.Bootstrap(context.Background())
	if got := len(hist.Window("SITE-01", 0)); got != 2 {
		t.Fatalf("repeat bootstrap grew history: %d", got)
	}
}
