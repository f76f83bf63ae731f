package model

import "time"

// Status is the water-quality classification attached to a prediction.
type Status string

const (
	StatusClear     Status = "clear"
	StatusModerate  Status = "moderate"
	StatusPollutant Status = "pollutant"
)

// Normalize maps any unrecognized classification to StatusClear for display.
// The stored value is never rewritten; callers keep the original alongside.
func (s Status) Normalize() Status {
	switch s {
	case StatusClear, StatusModerate, StatusPollutant:
		return s
	}
	return StatusClear
}

// Severity is the alert severity level.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Normalize maps any unrecognized severity to SeverityInfo for display.
func (s Severity) Normalize() Severity {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return s
	}
	return SeverityInfo
}

// Prediction is one classified sensor reading for a site. Immutable once
// received; the stores only ever copy it.
type Prediction struct {
	ID              int64     `json:"id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Status          Status    `json:"status"`
	Confidence      float64   `json:"confidence"`
	Turbidity       float64   `json:"turbidity"`
	PH              float64   `json:"ph"`
	ComplianceScore float64   `json:"compliance_score"`
	SiteID          string    `json:"site_id"`
}

// Alert is a discrete operator notification derived from predictions.
// ID is server-assigned and is the de-duplication key.
type Alert struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	SiteID       string    `json:"site_id"`
	Acknowledged bool      `json:"acknowledged"`
}

// PairingSession is a short-lived token that lets a second device join the
// dashboard's backend session via a scannable link. Consumption is tracked
// server-side; the client only observes creation and expiry.
type PairingSession struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	TTL       time.Duration
}

// ExpiresIn reports the time remaining before the session lapses.
// Negative once expired.
func (s PairingSession) ExpiresIn(now time.Time) time.Duration {
	return s.CreatedAt.Add(s.TTL).Sub(now)
}

// Expired reports whether the session has exceeded its TTL.
func (s PairingSession) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > s.TTL
}
