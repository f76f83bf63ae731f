package alerts

import (
	"sync"
	"time"

	"aquawatch/internal/model"
)

// Counts summarizes one site's alert load for badges and filters.
type Counts struct {
	Total          int `json:"total"`
	Critical       int `json:"critical"`
	Warning        int `json:"warning"`
	Info           int `json:"info"`
	Unacknowledged int `json:"unacknowledged"`
}

// Store holds alerts newest-first with id-keyed de-duplication. Reconnects
// and polling may redeliver the same alert; the second copy is dropped.
type Store struct {
	mu       sync.RWMutex
	buf      []model.Alert
	byID     map[int64]int
	recent   map[int64]time.Time
	limit    int
	recentIn time.Duration
	now      func() time.Time
}

func NewStore(limit int, recentWindow time.Duration) *Store {
	if limit <= 0 {
		limit = 1000
	}
	if recentWindow <= 0 {
		recentWindow = 5 * time.Second
	}
	return &Store{
		byID:     make(map[int64]int),
		recent:   make(map[int64]time.Time),
		limit:    limit,
		recentIn: recentWindow,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Ingest adds an alert unless its id is already present. Returns true when
// the alert was stored.
func (s *Store) Ingest(a model.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.ID]; ok {
		return false
	}
	if len(s.buf) >= s.limit {
		oldest := s.buf[len(s.buf)-1]
		delete(s.byID, oldest.ID)
		delete(s.recent, oldest.ID)
		copy(s.buf[1:], s.buf[:len(s.buf)-1])
		s.buf[0] = a
	} else {
		s.buf = append(s.buf, model.Alert{})
		copy(s.buf[1:], s.buf[:len(s.buf)-1])
		s.buf[0] = a
	}
	s.reindex()
	s.recent[a.ID] = s.now()
	return true
}

// reindex rebuilds the id index after a head insert. Caller holds the lock.
func (s *Store) reindex() {
	for i, a := range s.buf {
		s.byID[a.ID] = i
	}
}

// Acknowledge flips the alert to acknowledged. Unknown or already
// acknowledged ids are a no-op, not an error. Returns true when the flag
// changed.
func (s *Store) Acknowledge(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok || s.buf[i].Acknowledged {
		return false
	}
	s.buf[i].Acknowledged = true
	return true
}

// Unacknowledge reverts a local acknowledge. Used only by the dispatcher's
// rollback path when the backend rejects the acknowledgment.
func (s *Store) Unacknowledge(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok || !s.buf[i].Acknowledged {
		return false
	}
	s.buf[i].Acknowledged = false
	return true
}

// Get returns the alert with the given id.
func (s *Store) Get(id int64) (model.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return model.Alert{}, false
	}
	return s.buf[i], true
}

// List returns up to limit alerts for a site, newest first. Empty siteID
// matches all sites; limit <= 0 means no cap.
func (s *Store) List(siteID string, limit int) []model.Alert {
	return s.Filter(siteID, limit, nil)
}

// Filter returns up to limit alerts for a site matching pred, newest first.
func (s *Store) Filter(siteID string, limit int, pred func(model.Alert) bool) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0)
	for _, a := range s.buf {
		if siteID != "" && a.SiteID != siteID {
			continue
		}
		if pred != nil && !pred(a) {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// CountsFor tallies a site's alerts by severity and acknowledgment state.
// Unrecognized severities count as info; the stored value is untouched.
func (s *Store) CountsFor(siteID string) Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c Counts
	for _, a := range s.buf {
		if siteID != "" && a.SiteID != siteID {
			continue
		}
		c.Total++
		switch a.Severity.Normalize() {
		case model.SeverityCritical:
			c.Critical++
		case model.SeverityWarning:
			c.Warning++
		default:
			c.Info++
		}
		if !a.Acknowledged {
			c.Unacknowledged++
		}
	}
	return c
}

// Recent reports whether the alert arrived within the highlight window.
// Cosmetic state only; expired entries are pruned lazily.
func (s *Store) Recent(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.recent[id]
	if !ok {
		return false
	}
	if s.now().Sub(ts) > s.recentIn {
		delete(s.recent, id)
		return false
	}
	return true
}

// Clear drops all alerts and highlight state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	s.byID = make(map[int64]int)
	s.recent = make(map[int64]time.Time)
}
