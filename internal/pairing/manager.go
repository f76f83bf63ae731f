package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"aquawatch/internal/model"
)

var (
	// ErrPairingBlocked means pairing was attempted while the stream is
	// disconnected. No network call is made.
	ErrPairingBlocked = errors.New("pairing blocked: stream disconnected")

	// ErrPairingUnavailable means the backend was unreachable or answered
	// with a non-success status. Retrying with a fresh Request is safe.
	ErrPairingUnavailable = errors.New("pairing unavailable")
)

// ConnectionGate reports whether the backend relationship is live. The
// stream client satisfies this.
type ConnectionGate interface {
	Connected() bool
}

// Manager obtains and tracks one backend-issued pairing session at a time.
// A new Request supersedes the previous session; responses from superseded
// requests are discarded by sequence number.
type Manager struct {
	endpoint string
	ttl      time.Duration
	gate     ConnectionGate
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	seq     uint64
	session *model.PairingSession
}

func NewManager(endpoint string, ttl time.Duration, gate ConnectionGate, client *http.Client, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Manager{
		endpoint: endpoint,
		ttl:      ttl,
		gate:     gate,
		client:   client,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

// Request obtains a fresh session from the backend, superseding any tracked
// one. Fails fast with ErrPairingBlocked while disconnected and with
// ErrPairingUnavailable on transport or status failure; either way the
// manager holds no partial state and Request may simply be called again.
func (m *Manager) Request(ctx context.Context) (model.PairingSession, error) {
	if m.gate != nil && !m.gate.Connected() {
		return model.PairingSession{}, ErrPairingBlocked
	}

	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, nil)
	if err != nil {
		return model.PairingSession{}, fmt.Errorf("%w: %v", ErrPairingUnavailable, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return model.PairingSession{}, fmt.Errorf("%w: %v", ErrPairingUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.PairingSession{}, fmt.Errorf("%w: status %d", ErrPairingUnavailable, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.PairingSession{}, fmt.Errorf("%w: %v", ErrPairingUnavailable, err)
	}
	var sr sessionResponse
	if err := json.Unmarshal(body, &sr); err != nil || sr.SessionID == "" {
		return model.PairingSession{}, fmt.Errorf("%w: bad session response", ErrPairingUnavailable)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.seq {
		// A later Request superseded this one while it was in flight.
		if m.logger != nil {
			m.logger.Debug("discarding stale pairing response", "seq", seq, "latest", m.seq)
		}
		if m.session != nil {
			return *m.session, nil
		}
		return model.PairingSession{}, ErrPairingUnavailable
	}
	s := model.PairingSession{ID: sr.SessionID, CreatedAt: m.now(), TTL: m.ttl}
	m.session = &s
	return s, nil
}

// Current returns the tracked session, if one exists. Callers check expiry
// themselves via the session's Expired/ExpiresIn.
func (m *Manager) Current() (model.PairingSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return model.PairingSession{}, false
	}
	return *m.session, true
}

// Discard drops the tracked session. Closing the pairing flow calls this so
// a stale id is never reused.
func (m *Manager) Discard() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
}

// PairingURL builds the scannable link for a session. One trailing slash on
// base is stripped; no network call is made.
func PairingURL(sessionID, base string) string {
	base = strings.TrimSuffix(base, "/")
	return base + "/pair?session=" + sessionID
}
