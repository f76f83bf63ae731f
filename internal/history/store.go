package history

import (
	"sync"

	"aquawatch/internal/model"
)

// Store keeps a bounded window of recent predictions per site. Arrival order
// is preserved; the store never re-sorts by timestamp. Readers always get
// copies, so chart code cannot observe or mutate internals.
type Store struct {
	mu       sync.RWMutex
	sites    map[string]*ring
	capacity int
}

// ring is a fixed-size circular buffer. head indexes the oldest entry; once
// full, a push overwrites it and advances head, so eviction is constant time.
type ring struct {
	buf  []model.Prediction
	head int
	n    int
}

func (r *ring) push(p model.Prediction) {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = p
		r.n++
		return
	}
	r.buf[r.head] = p
	r.head = (r.head + 1) % len(r.buf)
}

// at returns the i-th entry in arrival order, 0 being the oldest.
func (r *ring) at(i int) model.Prediction {
	return r.buf[(r.head+i)%len(r.buf)]
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 200
	}
	return &Store{
		sites:    make(map[string]*ring),
		capacity: capacity,
	}
}

// Append records one prediction for its site, evicting the oldest entry
// once the site buffer is at capacity.
func (s *Store) Append(p model.Prediction) {
	if p.SiteID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sites[p.SiteID]
	if !ok {
		r = &ring{buf: make([]model.Prediction, s.capacity)}
		s.sites[p.SiteID] = r
	}
	r.push(p)
}

// Window returns the most recent count predictions for a site in
// chronological order (oldest first). Unknown sites yield an empty slice.
func (s *Store) Window(siteID string, count int) []model.Prediction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.sites[siteID]
	if r == nil {
		return []model.Prediction{}
	}
	if count <= 0 || count > r.n {
		count = r.n
	}
	out := make([]model.Prediction, count)
	start := r.n - count
	for i := 0; i < count; i++ {
		out[i] = r.at(start + i)
	}
	return out
}

// Latest returns the newest prediction for a site, if any.
func (s *Store) Latest(siteID string) (model.Prediction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.sites[siteID]
	if r == nil || r.n == 0 {
		return model.Prediction{}, false
	}
	return r.at(r.n - 1), true
}

// Summary returns the latest prediction per known site. Sites that have
// never reported are absent, never synthesized.
func (s *Store) Summary() map[string]model.Prediction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Prediction, len(s.sites))
	for siteID, r := range s.sites {
		if r.n == 0 {
			continue
		}
		out[siteID] = r.at(r.n - 1)
	}
	return out
}

// Sites returns the known site keys.
func (s *Store) Sites() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sites))
	for siteID, r := range s.sites {
		if r.n == 0 {
			continue
		}
		out = append(out, siteID)
	}
	return out
}

// Len reports the buffered count for a site.
func (s *Store) Len(siteID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.sites[siteID]
	if r == nil {
		return 0
	}
	return r.n
}
