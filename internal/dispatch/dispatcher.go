package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"aquawatch/internal/alerts"
	"aquawatch/internal/archive"
	"aquawatch/internal/backend"
	"aquawatch/internal/history"
	"aquawatch/internal/model"
	"aquawatch/internal/stream"
)

// Dispatcher routes feed events into the stores and reconciles local
// mutations with the backend. It is the single writer for both stores;
// rendering code only ever reads snapshots.
type Dispatcher struct {
	history *history.Store
	alerts  *alerts.Store
	backend *backend.Client
	archive archive.Store
	logger  *slog.Logger

	siteID     string
	fetchLimit int
}

func New(historyStore *history.Store, alertStore *alerts.Store, backendClient *backend.Client, archiveStore archive.Store, siteID string, fetchLimit int, logger *slog.Logger) *Dispatcher {
	if fetchLimit <= 0 {
		fetchLimit = 50
	}
	return &Dispatcher{
		history:    historyStore,
		alerts:     alertStore,
		backend:    backendClient,
		archive:    archiveStore,
		logger:     logger,
		siteID:     siteID,
		fetchLimit: fetchLimit,
	}
}

// StreamHandlers wires the dispatcher into a stream client. Connection
// changes trigger a bootstrap refetch so state dropped during an outage is
// recovered; alert de-duplication absorbs the overlap.
func (d *Dispatcher) StreamHandlers(ctx context.Context, onConnectionChange func(bool)) stream.Handlers {
	return stream.Handlers{
		OnPrediction: d.HandlePrediction,
		OnAlert:      d.HandleAlert,
		OnConnectionChange: func(connected bool) {
			if connected {
				go d.Bootstrap(ctx)
			}
			if onConnectionChange != nil {
				onConnectionChange(connected)
			}
		},
	}
}

// HandlePrediction appends one reading to its site history.
func (d *Dispatcher) HandlePrediction(p model.Prediction) {
	if p.SiteID == "" {
		if d.logger != nil {
			d.logger.Debug("dropping prediction without site id")
		}
		return
	}
	d.history.Append(p)
	if d.archive != nil {
		_ = d.archive.SavePrediction(context.Background(), p)
	}
}

// HandleAlert ingests one alert; duplicates from redelivery are dropped by
// the store.
func (d *Dispatcher) HandleAlert(a model.Alert) {
	if !d.alerts.Ingest(a) {
		return
	}
	if d.logger != nil {
		d.logger.Info("alert received",
			"id", a.ID,
			"site_id", a.SiteID,
			"severity", a.Severity.Normalize(),
		)
	}
	if d.archive != nil {
		_ = d.archive.SaveAlert(context.Background(), a)
	}
}

// Start consumes envelopes from an alternative feed source until ctx is
// cancelled. Unrecognized types are dropped.
func (d *Dispatcher) Start(ctx context.Context, in <-chan model.Envelope) {
	go func() {
		for {
			select {
			case env := <-in:
				d.handleEnvelope(env)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (d *Dispatcher) handleEnvelope(env model.Envelope) {
	switch env.Type {
	case model.EventPrediction:
		var p model.Prediction
		if err := json.Unmarshal(env.Data, &p); err != nil {
			if d.logger != nil {
				d.logger.Debug("dropping bad prediction payload", "err", err)
			}
			return
		}
		d.HandlePrediction(p)
	case model.EventAlert:
		var a model.Alert
		if err := json.Unmarshal(env.Data, &a); err != nil {
			if d.logger != nil {
				d.logger.Debug("dropping bad alert payload", "err", err)
			}
			return
		}
		d.HandleAlert(a)
	default:
		if d.logger != nil {
			d.logger.Debug("dropping unrecognized feed event", "type", env.Type)
		}
	}
}

// Bootstrap refetches history, the multi-site summary, and recent alerts
// over REST. Used at startup and after every reconnect; failures leave the
// current in-memory state untouched.
func (d *Dispatcher) Bootstrap(ctx context.Context) {
	if d.backend == nil {
		return
	}
	if d.history.Len(d.siteID) == 0 {
		// The backend returns newest-first; the buffer wants arrival order.
		fetched := d.backend.History(ctx, d.siteID, d.fetchLimit)
		for i := len(fetched) - 1; i >= 0; i-- {
			d.history.Append(fetched[i])
		}
	}
	for _, p := range d.backend.SitesSummary(ctx) {
		if _, ok := d.history.Latest(p.SiteID); ok {
			continue
		}
		d.history.Append(p)
	}
	for _, a := range d.backend.Alerts(ctx, d.siteID, d.fetchLimit) {
		d.alerts.Ingest(a)
	}
}

// Acknowledge applies the acknowledgment locally, then reconciles with the
// backend. A rejected PATCH rolls the local flag back so the store never
// drifts from server state. Idempotent; unknown ids are a no-op.
func (d *Dispatcher) Acknowledge(ctx context.Context, id int64) error {
	if !d.alerts.Acknowledge(id) {
		return nil
	}
	if d.backend == nil {
		return nil
	}
	if err := d.backend.AcknowledgeAlert(ctx, id); err != nil {
		d.alerts.Unacknowledge(id)
		if d.logger != nil {
			d.logger.Warn("acknowledge rolled back", "id", id, "err", err)
		}
		return err
	}
	return nil
}
