package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aquawatch/internal/model"
)

// Client talks to the prediction backend's REST surface. Every fetch
// degrades to an empty result on transport failure or non-success status;
// callers render what they have and the connectivity indicator carries the
// bad news.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:   strings.TrimSuffix(baseURL, "/"),
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// LatestPrediction fetches the newest reading for a site.
func (c *Client) LatestPrediction(ctx context.Context, siteID string) (model.Prediction, bool) {
	var p model.Prediction
	q := url.Values{"site_id": {siteID}}
	if !c.getJSON(ctx, "/api/predictions/latest?"+q.Encode(), &p) {
		return model.Prediction{}, false
	}
	return p, true
}

// History fetches up to limit recent readings for a site.
func (c *Client) History(ctx context.Context, siteID string, limit int) []model.Prediction {
	q := url.Values{"site_id": {siteID}, "limit": {strconv.Itoa(limit)}}
	var out []model.Prediction
	if !c.getJSON(ctx, "/api/predictions/history?"+q.Encode(), &out) {
		return nil
	}
	return out
}

// SitesSummary fetches the latest reading per active site.
func (c *Client) SitesSummary(ctx context.Context) []model.Prediction {
	var out []model.Prediction
	if !c.getJSON(ctx, "/api/predictions/sites/summary", &out) {
		return nil
	}
	return out
}

// Alerts fetches up to limit recent alerts for a site.
func (c *Client) Alerts(ctx context.Context, siteID string, limit int) []model.Alert {
	q := url.Values{"site_id": {siteID}, "limit": {strconv.Itoa(limit)}}
	var out []model.Alert
	if !c.getJSON(ctx, "/api/alerts/?"+q.Encode(), &out) {
		return nil
	}
	return out
}

// AcknowledgeAlert marks an alert acknowledged server-side. The response
// body, if any, is ignored; only the status matters.
func (c *Client) AcknowledgeAlert(ctx context.Context, id int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		fmt.Sprintf("%s/api/alerts/%d/acknowledge", c.base, id), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("acknowledge alert %d: status %d", id, resp.StatusCode)
	}
	return nil
}

// getJSON fetches path relative to the base URL and decodes into out.
// Returns false on any failure, leaving out untouched beyond partial decode.
func (c *Client) getJSON(ctx context.Context, path string, out any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.Debug("backend fetch failed", "path", path, "err", err)
		}
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.logger != nil {
			c.logger.Debug("backend fetch non-success", "path", path, "status", resp.StatusCode)
		}
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		if c.logger != nil {
			c.logger.Debug("backend fetch bad payload", "path", path, "err", err)
		}
		return false
	}
	return true
}
